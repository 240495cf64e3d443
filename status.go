package usersync

import (
	"fmt"
	"sync"

	"github.com/tembleque/usersync/logging"
)

// Status is one of the three states an Engine can be observed in,
// spec.md §3/§4.1.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusSyncing      Status = "syncing"
	StatusHasConflicts Status = "hasConflicts"
)

// allowedTransitions enumerates every legal status edge. Anything not
// listed here is a programming error in the engine, not a runtime
// condition callers can trigger.
var allowedTransitions = map[Status]map[Status]bool{
	StatusIdle:         {StatusSyncing: true},
	StatusSyncing:      {StatusIdle: true, StatusHasConflicts: true},
	StatusHasConflicts: {StatusSyncing: true, StatusIdle: true},
}

// statusMachine owns the observable {status, conflicts} pair and the
// listeners subscribed to their changes. It is safe for concurrent use;
// each mutation happens under one lock. setConflicts and transitionTo are
// separate calls, so a new conflict list can be observed while the status
// is still Syncing, just before it becomes HasConflicts.
type statusMachine struct {
	mu        sync.Mutex
	status    Status
	conflicts []Conflict

	statusListeners    []func(Status)
	conflictsListeners []func([]Conflict)

	telemetry Telemetry
	logger    *logging.Logger
}

func newStatusMachine(telemetry Telemetry, logger *logging.Logger) *statusMachine {
	return &statusMachine{status: StatusIdle, telemetry: telemetry, logger: logger}
}

// Status returns the current status.
func (m *statusMachine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Conflicts returns a copy of the current conflict list.
func (m *statusMachine) Conflicts() []Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Conflict, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

// OnStatusChange registers a listener invoked once per status transition,
// synchronously from inside the state-mutating call (spec.md §5:
// "observers must treat them as reentrant-safe signals").
func (m *statusMachine) OnStatusChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusListeners = append(m.statusListeners, fn)
}

// OnConflictsChange registers a listener invoked whenever the conflict
// list is replaced.
func (m *statusMachine) OnConflictsChange(fn func([]Conflict)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictsListeners = append(m.conflictsListeners, fn)
}

// transitionTo moves to a new status. Equal-to-current transitions are
// silent no-ops (spec.md §4.1). Entering HasConflicts fires a
// conflictsDetected telemetry ping before the listeners see the new
// status; leaving HasConflicts fires conflictsResolved and clears the
// conflict list first, so the old list is never observed next to the new
// status (spec.md §3 invariant 4, §5 ordering guarantee).
func (m *statusMachine) transitionTo(next Status) {
	m.mu.Lock()

	if m.status == next {
		m.mu.Unlock()
		return
	}
	if !allowedTransitions[m.status][next] {
		m.mu.Unlock()
		panic(fmt.Sprintf("usersync: illegal status transition %s -> %s", m.status, next))
	}

	prev := m.status

	if next == StatusHasConflicts {
		m.telemetry.ConflictsDetected()
	}
	if prev == StatusHasConflicts && next != StatusHasConflicts {
		m.conflicts = nil
		m.telemetry.ConflictsResolved()
	}

	m.status = next
	listeners := append([]func(Status){}, m.statusListeners...)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("status transition", "from", prev, "to", next)
	}
	for _, l := range listeners {
		l(next)
	}
}

// setConflicts replaces the conflict list atomically. It is a no-op if the
// new list is element-wise equal to the current one (spec.md §3,
// "Conflict" list replacement rule). Callers are expected to have already
// transitioned to HasConflicts (or be doing so) before the list is
// non-empty; setConflicts itself does not change status.
func (m *statusMachine) setConflicts(next []Conflict) {
	m.mu.Lock()
	if conflictListsEqual(m.conflicts, next) {
		m.mu.Unlock()
		return
	}
	m.conflicts = append([]Conflict{}, next...)
	listeners := append([]func([]Conflict){}, m.conflictsListeners...)
	out := append([]Conflict{}, m.conflicts...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(out)
	}
}
