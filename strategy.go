package usersync

import (
	"context"
	"errors"
	"net/url"

	syncerrors "github.com/tembleque/usersync/errors"
)

// Strategy holds the resource-specific merge logic the engine drives.
// Everything the engine itself needs to move a resource through its
// status machine and retry loop is generic; everything about what
// "content" actually means, and how two versions of it merge, lives here
// (spec.md §4.8). A Strategy never talks to the network or the
// filesystem directly: it is handed an EngineHandle for that.
type Strategy interface {
	// Resource identifies which resource this strategy implements.
	Resource() Resource

	// Version is stamped into every envelope this strategy writes, and
	// compared against envelopes it reads: a remote envelope whose
	// version exceeds this one is Incompatible (spec.md §7).
	Version() uint32

	// GeneratePreview produces the three-way merge of remote, the local
	// file, and the last-synced snapshot. It must return promptly and
	// stop doing work once ctx is done; if cancellation is requested
	// mid-generation the engine discards whatever it returns.
	GeneratePreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error)

	// GeneratePullPreview produces a preview that discards local state in
	// favor of remote (spec.md §6, Pull).
	GeneratePullPreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error)

	// GeneratePushPreview produces a preview that overwrites remote with
	// local state unconditionally (spec.md §6, Push).
	GeneratePushPreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error)

	// GenerateReplacePreview produces a preview that adopts content as
	// the new local state, regardless of what remote or last-sync say
	// (spec.md §6, Replace).
	GenerateReplacePreview(ctx context.Context, handle EngineHandle, content []byte, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error)

	// UpdatePreviewWithConflict re-derives a preview after the caller has
	// supplied resolvedContent for the single conflicting resource named
	// by conflictResource (spec.md §6, AcceptConflict).
	UpdatePreviewWithConflict(ctx context.Context, handle EngineHandle, preview SyncPreview, conflictResource *url.URL, resolvedContent []byte) (SyncPreview, error)

	// ApplyPreview commits a conflict-free preview: writes the local file
	// (if HasLocalChanged), writes remote (if HasRemoteChanged), and
	// returns the LastSyncUserData snapshot the engine should persist.
	// The engine passes forceApplyLocal true only from Push; Sync, Pull,
	// Replace and AcceptConflict pass false. When it is true the local
	// write proceeds even if HasLocalChanged is false.
	ApplyPreview(ctx context.Context, handle EngineHandle, preview SyncPreview, forceApplyLocal bool) (LastSyncUserData, error)
}

// EngineHandle is the only way a Strategy touches the outside world. It
// exists so strategies stay pure merge logic, testable without a real
// filesystem or network, and so the engine enforces write discipline
// (backup-before-write, precondition translation) in one place instead of
// per strategy (spec.md §4.9).
type EngineHandle interface {
	// GetLocalFileContent reads the resource's current on-disk content
	// and an opaque snapshot version. It returns ErrFileNotFound if the
	// resource has no local file yet.
	GetLocalFileContent(ctx context.Context) (content []byte, version string, err error)

	// UpdateLocalFileContent writes content, requiring the file's current
	// version to equal expectedVersion. On mismatch it returns a
	// *syncerrors.SyncError with Code CodeLocalPreconditionFailed rather
	// than the raw FileService error, so callers never need to know which
	// FileService implementation is in play.
	UpdateLocalFileContent(ctx context.Context, content []byte, expectedVersion string) (newVersion string, err error)

	// BackupLocal records content as a local-backup handle before it is
	// written, per the write-discipline invariant.
	BackupLocal(ctx context.Context, content []byte) (SyncResourceHandle, error)

	// UpdateRemoteUserData writes content to the remote store,
	// conditioned on expectedRef, and returns the new ref.
	UpdateRemoteUserData(ctx context.Context, content []byte, expectedRef string) (newRef string, err error)

	// UpdateLastSyncUserData persists data as the new common-ancestor
	// snapshot for future merges.
	UpdateLastSyncUserData(ctx context.Context, data LastSyncUserData) error

	// MachineID returns the identifier stamped into this machine's
	// envelopes.
	MachineID(ctx context.Context) (string, error)
}

// translateFileError converts a FileService-shaped error into the
// SyncError vocabulary strategies and the engine share.
func translateFileError(op syncerrors.Operation, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFileModifiedSince), errors.Is(err, ErrFileNotFound):
		return syncerrors.LocalPreconditionFailed(op, err)
	default:
		return syncerrors.NewWithComponent(op, "file-service", err)
	}
}
