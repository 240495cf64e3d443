package usersync

import (
	"fmt"

	"github.com/tembleque/usersync/logging"
)

// EngineOption configures an Engine at construction time, grounded on
// the teacher's functional-options constructor pattern.
type EngineOption func(*Engine)

// WithFileService makes the engine file-backed: strategies gain access
// to GetLocalFileContent/UpdateLocalFileContent, and Stop will clean up
// the preview scratch file.
func WithFileService(fs FileService) EngineOption {
	return func(e *Engine) { e.fileService = fs }
}

// WithTelemetry overrides the default no-op Telemetry.
func WithTelemetry(t Telemetry) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.telemetry = t
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistoryRecorder attaches a journal of completed sync operations.
func WithHistoryRecorder(r HistoryRecorder) EngineOption {
	return func(e *Engine) { e.historyRecorder = r }
}

// WithRetryCap overrides the default safety cap on performSync's
// precondition-retry loop. A value <= 0 makes the loop unbounded,
// matching spec.md §4.5's literal baseline contract.
func WithRetryCap(cap int) EngineOption {
	return func(e *Engine) { e.retryCap = cap }
}

// WithBackoff overrides the delay performSync waits between retries. A
// zero-value BackoffConfig disables backoff (immediate retry).
func WithBackoff(cfg BackoffConfig) EngineOption {
	return func(e *Engine) { e.backoffConfig = cfg }
}

// NewEngine constructs an Engine for one resource. strategy, remoteStore,
// lastSyncStore, enablement, and machineIDProvider are required;
// localBackupStore may be nil only if the strategy never calls
// EngineHandle.BackupLocal.
func NewEngine(
	resource Resource,
	strategy Strategy,
	remoteStore RemoteStore,
	localBackupStore LocalBackupStore,
	lastSyncStore LastSyncStore,
	enablement EnablementService,
	machineIDProvider MachineIDProvider,
	opts ...EngineOption,
) (*Engine, error) {
	if strategy == nil {
		return nil, fmt.Errorf("usersync: strategy is required")
	}
	if remoteStore == nil {
		return nil, fmt.Errorf("usersync: remote store is required")
	}
	if lastSyncStore == nil {
		return nil, fmt.Errorf("usersync: last-sync store is required")
	}
	if enablement == nil {
		return nil, fmt.Errorf("usersync: enablement service is required")
	}
	if machineIDProvider == nil {
		return nil, fmt.Errorf("usersync: machine id provider is required")
	}

	e := &Engine{
		resource:          resource,
		strategy:          strategy,
		remoteStore:       remoteStore,
		localBackupStore:  localBackupStore,
		lastSyncStore:     lastSyncStore,
		enablement:        enablement,
		machineIDProvider: machineIDProvider,
		telemetry:         NoOpTelemetry{},
		logger:            logging.Default(),
		retryCap:          8,
		backoffConfig:     DefaultBackoffConfig,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.statusMachine = newStatusMachine(e.telemetry, e.logger.WithComponent(string(resource)))
	return e, nil
}
