package usersync

import "context"

// SyncPreview is the strategy's three-way-merge result, pending
// application. The engine only inspects the flags and the two user-data
// snapshots; everything else is opaque and round-trips through
// ApplyPreview / UpdatePreviewWithConflict unexamined (spec.md §3).
type SyncPreview struct {
	HasLocalChanged              bool
	HasRemoteChanged             bool
	HasConflicts                 bool
	IsLastSyncFromCurrentMachine bool

	Conflicts []Conflict

	RemoteUserData   RemoteUserData
	LastSyncUserData LastSyncUserData

	// Extra carries strategy-specific payload, e.g. a file-backed
	// strategy's loaded local content snapshot and merge candidate.
	Extra any
}

// previewFuture is the engine's single in-flight cancellable preview,
// spec.md §3 invariant 1 and §4.2. Cancel aborts generation; Value is set
// once generation has produced a result (nil while running, and nil again
// once the future itself has been cleared).
type previewFuture struct {
	id     string
	cancel context.CancelFunc
	value  *SyncPreview
}
