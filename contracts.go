package usersync

import (
	"context"
	"errors"
	"time"
)

// FileService error sentinels. Implementations must return errors that
// satisfy errors.Is against these, so EngineHandle.UpdateLocalFileContent
// can translate them into a LocalPreconditionFailed SyncError (spec.md
// §4.9) instead of the engine special-casing each implementation.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileModifiedSince = errors.New("file modified since last read")
)

// RemoteStore is the collaborator through which the engine reads and
// writes a resource's envelope on the server, spec.md §4.9 and §6.
// Writes are optimistic: WriteResource fails with a
// syncerrors.CodePreconditionFailed error whenever the caller's expected
// ref is stale, and never partially applies.
type RemoteStore interface {
	// ReadResource returns the current envelope and its ref, or a nil
	// SyncData if the resource does not exist remotely.
	ReadResource(ctx context.Context, resource Resource) (RemoteUserData, error)

	// WriteResource stores content under resource, conditioned on
	// expectedRef matching the server's current ref (empty expectedRef
	// means "resource must not currently exist"). It returns the new ref.
	WriteResource(ctx context.Context, resource Resource, content []byte, expectedRef string) (string, error)

	// ResolveContent returns the raw envelope bytes stored at ref,
	// regardless of whether ref is still the latest.
	ResolveContent(ctx context.Context, resource Resource, ref string) ([]byte, error)

	// GetAllRefs lists every historical handle for resource, oldest first.
	GetAllRefs(ctx context.Context, resource Resource) ([]SyncResourceHandle, error)
}

// LocalBackupStore records an envelope of the local content the engine is
// about to overwrite, before it writes, so a user can recover a prior
// local state (spec.md §4.9, "backup-before-write discipline").
type LocalBackupStore interface {
	Backup(ctx context.Context, resource Resource, content []byte) (SyncResourceHandle, error)
	ResolveContent(ctx context.Context, resource Resource, ref string) ([]byte, error)
	GetAllRefs(ctx context.Context, resource Resource) ([]SyncResourceHandle, error)
}

// LastSyncStore persists the common-ancestor snapshot the three-way merge
// reads on every sync and writes after every successful apply.
type LastSyncStore interface {
	// Read returns errors.ErrNotFound if no sync has ever completed for
	// resource, or an error wrapping errors.ErrCorrupt if the persisted
	// record could not be parsed.
	Read(ctx context.Context, resource Resource) (LastSyncUserData, error)
	Write(ctx context.Context, resource Resource, data LastSyncUserData) error
	// Delete removes the last-sync record, if present.
	Delete(ctx context.Context, resource Resource) error
}

// HistoryRecorder journals completed sync operations for observability.
// It never influences engine behavior: RecordSync returns no error, so
// recording cannot fail a sync (spec.md §5, "applied writes are never rolled back" —
// the journal is append-only, not a rollback mechanism).
type HistoryRecorder interface {
	RecordSync(resource Resource, status Status, ref string, at time.Time)
}

// FileService is the engine's only path to the local filesystem
// (spec.md §4.9). ReadFile/WriteFile carry an explicit precondition: the
// caller passes back the same snapshot version it last read, and a
// concurrent external edit surfaces as a distinguishable
// FileModifiedSince error so the engine can retry the whole sync instead
// of silently clobbering an edit the user just made.
type FileService interface {
	// ReadFile returns the file's content and an opaque version stamp.
	// It returns FileNotFound if the file does not exist.
	ReadFile(ctx context.Context, resource Resource) (content []byte, version string, err error)

	// WriteFile writes content, requiring the file's current version to
	// equal expectedVersion (empty expectedVersion means "file must not
	// exist"). It returns FileModifiedSince if that precondition fails.
	WriteFile(ctx context.Context, resource Resource, content []byte, expectedVersion string) (newVersion string, err error)

	// Delete removes the file, if present.
	Delete(ctx context.Context, resource Resource) error

	// OnDidFilesChange registers a listener invoked whenever resource's
	// backing file changes on disk (spec.md §4.7), once per change event;
	// the calls are not coalesced. It returns an unsubscribe function.
	OnDidFilesChange(resource Resource, fn func()) (unsubscribe func())
}

// EnablementService reports whether a resource participates in sync at
// all; the engine treats a disabled resource as always up to date and
// never calls the strategy for it (spec.md §4.3).
type EnablementService interface {
	IsEnabled(resource Resource) bool
}

// MachineIDProvider supplies the identifier the engine stamps into every
// envelope it writes, so a machine can recognize its own last write
// (spec.md §3, IsLastSyncFromCurrentMachine).
type MachineIDProvider interface {
	MachineID(ctx context.Context) (string, error)
}
