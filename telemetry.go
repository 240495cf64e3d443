package usersync

import "time"

// Telemetry receives the pings spec.md §4.1 and §7 require the engine to
// emit. Implementations should be cheap and non-blocking; the engine calls
// them synchronously from inside its state-mutating operations.
type Telemetry interface {
	// ConflictsDetected fires exactly once per transition into
	// HasConflicts.
	ConflictsDetected()
	// ConflictsResolved fires exactly once per transition out of
	// HasConflicts.
	ConflictsResolved()
	// Incompatible fires when a remote envelope's version exceeds the
	// strategy's declared version, or fails to parse (spec.md §7).
	Incompatible(resource Resource)
	// RecordSyncDuration reports how long an operation took. The engine
	// reports it for Sync only, with op "sync".
	RecordSyncDuration(resource Resource, op string, d time.Duration)
	// RecordRetry reports one precondition-failure retry, so operators
	// can see how often the optimistic-concurrency loop is looping.
	RecordRetry(resource Resource, reason string)
}

// NoOpTelemetry discards every ping. It is the default Telemetry for an
// Engine that does not configure one.
type NoOpTelemetry struct{}

func (NoOpTelemetry) ConflictsDetected()                                 {}
func (NoOpTelemetry) ConflictsResolved()                                 {}
func (NoOpTelemetry) Incompatible(Resource)                              {}
func (NoOpTelemetry) RecordSyncDuration(Resource, string, time.Duration) {}
func (NoOpTelemetry) RecordRetry(Resource, string)                       {}

var _ Telemetry = NoOpTelemetry{}
