// Package coalescer implements the local-change coalescing scheduler
// (spec.md §4.7): file-backed resources watch their backing file and
// collapse bursts of change events into a single delayed reconciliation
// attempt, grounded on the debounce-over-fsnotify-events shape used
// elsewhere in the example pack for watching files.
package coalescer

import (
	"context"
	"sync"
	"time"

	"github.com/tembleque/usersync"
)

// DefaultDebounce is the ~50ms window spec.md §4.7 specifies.
const DefaultDebounce = 50 * time.Millisecond

// Trigger is the subset of Engine the coalescer drives. It is an
// interface so tests can substitute a fake without a real Engine.
type Trigger interface {
	TriggerLocalChange(ctx context.Context) error
}

// Coalescer debounces usersync.FileService change notifications for one
// resource into single-shot calls to Trigger.TriggerLocalChange. Repeated
// scheduling within the debounce window collapses to one execution,
// spec.md §8 property 6.
type Coalescer struct {
	resource usersync.Resource
	fs       usersync.FileService
	engine   Trigger
	debounce time.Duration
	onError  func(error)

	mu           sync.Mutex
	timer        *time.Timer
	unsubscribe  func()
	stopped      bool
	pendingCount int // counts schedule calls since the last fire; no logic reads it
}

// New builds a Coalescer for resource, watching fs and driving engine.
// onError, if non-nil, is called with any error TriggerLocalChange
// returns; it is never blocking-critical, since the engine itself is
// always left in a consistent state regardless.
func New(resource usersync.Resource, fs usersync.FileService, engine Trigger, debounce time.Duration, onError func(error)) *Coalescer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coalescer{resource: resource, fs: fs, engine: engine, debounce: debounce, onError: onError}
}

// Start subscribes to file-change events and begins debouncing them.
func (c *Coalescer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil || c.stopped {
		return
	}
	c.unsubscribe = c.fs.OnDidFilesChange(c.resource, c.schedule)
}

// Stop cancels any pending debounce timer and unsubscribes from file
// events. A stopped Coalescer cannot be restarted; build a new one.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// schedule is the FileService change listener: it (re)arms a single-shot timer.
// Events arriving before the timer fires are treated as one change
// (spec.md §5, "happens-before" ordering guarantee).
func (c *Coalescer) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.pendingCount++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.fire)
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.pendingCount = 0
	c.mu.Unlock()

	if err := c.engine.TriggerLocalChange(context.Background()); err != nil && c.onError != nil {
		c.onError(err)
	}
}
