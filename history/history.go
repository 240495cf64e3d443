// Package history journals completed sync operations for observability.
// It is adapted from the teacher's MementoCaretaker: the same
// save/list/query shape, with the undo/rollback half dropped, since
// applied writes are never rolled back once committed.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tembleque/usersync"
)

// Record is one completed sync operation.
type Record struct {
	ID       string           `json:"id"`
	Resource usersync.Resource `json:"resource"`
	Status   usersync.Status   `json:"status"`
	Ref      string            `json:"ref"`
	At       time.Time         `json:"at"`
}

// Criteria filters Query results.
type Criteria struct {
	Resource usersync.Resource
	Since    time.Time
	Limit    int
}

// Recorder is an append-only, query-only journal, grounded on the
// teacher's MementoCaretaker interface with Delete/rollback removed.
type Recorder interface {
	usersync.HistoryRecorder
	Query(ctx context.Context, criteria Criteria) ([]Record, error)
}

// InMemoryRecorder is a Recorder backed by a slice guarded by a mutex.
// It is meant for demos and tests; a real deployment would swap in a
// persistent implementation behind the same interface.
type InMemoryRecorder struct {
	mu      sync.Mutex
	records []Record
	cap     int
}

// NewInMemoryRecorder builds a Recorder retaining at most capacity
// records, oldest evicted first. A capacity <= 0 means unbounded.
func NewInMemoryRecorder(capacity int) *InMemoryRecorder {
	return &InMemoryRecorder{cap: capacity}
}

// RecordSync implements usersync.HistoryRecorder. It never returns an
// error to the engine; a full journal is a degraded observability
// feature, not a sync failure.
func (r *InMemoryRecorder) RecordSync(resource usersync.Resource, status usersync.Status, ref string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, Record{
		ID:       uuid.NewString(),
		Resource: resource,
		Status:   status,
		Ref:      ref,
		At:       at,
	})
	if r.cap > 0 && len(r.records) > r.cap {
		r.records = r.records[len(r.records)-r.cap:]
	}
}

// Query returns records matching criteria, newest first.
func (r *InMemoryRecorder) Query(ctx context.Context, criteria Criteria) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if criteria.Resource != "" && rec.Resource != criteria.Resource {
			continue
		}
		if !criteria.Since.IsZero() && rec.At.Before(criteria.Since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

var _ Recorder = (*InMemoryRecorder)(nil)
