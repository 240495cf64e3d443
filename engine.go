// Package usersync implements the per-resource synchronization engine:
// a three-way reconciliation driver between a local store and a remote
// store shared across a user's machines, with a cancellable preview
// lifecycle, optimistic-concurrency retry, and a UI-facing
// conflict-resolution sub-protocol. The engine never touches the network
// or the filesystem itself; every side effect is a call through one of
// the collaborator interfaces in contracts.go, or, for strategies, the
// EngineHandle in strategy.go.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	syncerrors "github.com/tembleque/usersync/errors"
	"github.com/tembleque/usersync/logging"
)

// Engine drives one resource's synchronization state machine. Construct
// one with NewEngine; an Engine is safe for concurrent use by multiple
// goroutines, though the status gate in Sync ensures only one
// reconciliation is ever in flight per instance.
type Engine struct {
	resource Resource
	strategy Strategy

	remoteStore       RemoteStore
	localBackupStore  LocalBackupStore
	lastSyncStore     LastSyncStore
	fileService       FileService
	enablement        EnablementService
	machineIDProvider MachineIDProvider
	historyRecorder   HistoryRecorder

	telemetry     Telemetry
	logger        *logging.Logger
	statusMachine *statusMachine

	retryCap      int
	backoffConfig BackoffConfig

	mu                  sync.Mutex
	preview             *previewFuture
	localChangeHandlers []func()
}

// Status returns the engine's current observable status.
func (e *Engine) Status() Status { return e.statusMachine.Status() }

// Conflicts returns a copy of the current conflict list.
func (e *Engine) Conflicts() []Conflict { return e.statusMachine.Conflicts() }

// OnStatusChange registers a listener invoked once per status
// transition.
func (e *Engine) OnStatusChange(fn func(Status)) { e.statusMachine.OnStatusChange(fn) }

// OnConflictsChange registers a listener invoked whenever the conflict
// list is replaced.
func (e *Engine) OnConflictsChange(fn func([]Conflict)) { e.statusMachine.OnConflictsChange(fn) }

// OnLocalChange registers a listener invoked when TriggerLocalChange
// observes a local edit that also changed relative to remote, signalling
// the outer orchestrator that a real sync is warranted (spec.md §4.7).
func (e *Engine) OnLocalChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localChangeHandlers = append(e.localChangeHandlers, fn)
}

func (e *Engine) fireLocalChange() {
	e.mu.Lock()
	handlers := append([]func(){}, e.localChangeHandlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// Sync is the normal periodic entry point (spec.md §4.3). If the
// resource is disabled it ensures Idle and returns. If a sync is already
// in flight or conflicts are outstanding it is a silent no-op.
func (e *Engine) Sync(ctx context.Context, manifest Manifest, headers map[string]string) error {
	if !e.enablement.IsEnabled(e.resource) {
		return e.Stop(ctx)
	}

	switch e.statusMachine.Status() {
	case StatusSyncing, StatusHasConflicts:
		return nil
	}

	if len(headers) > 0 {
		ctx = WithHeaders(ctx, headers)
	}

	start := time.Now()
	e.statusMachine.transitionTo(StatusSyncing)

	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}

	remote, err := e.resolveRemoteForSync(ctx, manifest, lastSync)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}

	status, err := e.performSync(ctx, remote, lastSync)
	e.telemetry.RecordSyncDuration(e.resource, "sync", time.Since(start))
	if err != nil {
		e.logger.LogSyncError(ctx, err, "sync failed")
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}

	e.statusMachine.transitionTo(status)
	if e.historyRecorder != nil {
		e.historyRecorder.RecordSync(e.resource, status, remote.Ref, start)
	}
	return nil
}

// Pull force-overwrites local state from remote (spec.md §4.3). If the
// resource is disabled it ensures Idle and returns, making no remote
// request.
func (e *Engine) Pull(ctx context.Context) error {
	if !e.enablement.IsEnabled(e.resource) {
		return e.Stop(ctx)
	}
	if err := e.Stop(ctx); err != nil {
		return err
	}
	e.statusMachine.transitionTo(StatusSyncing)

	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	remote, err := e.fetchRemote(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}

	preview, err := e.generate(ctx, e.strategy.GeneratePullPreview, remote, lastSync)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	if err := e.applyAndPersist(ctx, *preview, false); err != nil {
		e.clearPreview()
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	e.clearPreview()
	e.statusMachine.transitionTo(StatusIdle)
	return nil
}

// Push force-overwrites remote state from local (spec.md §4.3),
// symmetric to Pull. If the resource is disabled it ensures Idle and
// returns, making no remote request.
func (e *Engine) Push(ctx context.Context) error {
	if !e.enablement.IsEnabled(e.resource) {
		return e.Stop(ctx)
	}
	if err := e.Stop(ctx); err != nil {
		return err
	}
	e.statusMachine.transitionTo(StatusSyncing)

	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	remote, err := e.fetchRemote(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}

	preview, err := e.generate(ctx, e.strategy.GeneratePushPreview, remote, lastSync)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	if err := e.applyAndPersist(ctx, *preview, true); err != nil {
		e.clearPreview()
		e.statusMachine.transitionTo(StatusIdle)
		return err
	}
	e.clearPreview()
	e.statusMachine.transitionTo(StatusIdle)
	return nil
}

// Replace adopts the content stored at handle as the new local state
// (spec.md §4.3). It returns false, nil (not an error) if the handle's
// content fails to parse as a SyncData envelope. If the resource is
// disabled it ensures Idle and returns, making no remote request.
func (e *Engine) Replace(ctx context.Context, handle *url.URL) (bool, error) {
	if !e.enablement.IsEnabled(e.resource) {
		return false, e.Stop(ctx)
	}

	authority, err := HandleAuthorityOf(handle)
	if err != nil {
		return false, err
	}
	ref, err := HandleRef(handle)
	if err != nil {
		return false, err
	}
	resource, err := HandleResource(handle)
	if err != nil {
		return false, err
	}
	if resource != e.resource {
		return false, fmt.Errorf("usersync: handle %q names resource %q, engine owns %q", handle, resource, e.resource)
	}

	var raw []byte
	switch authority {
	case AuthorityRemoteBackup:
		raw, err = e.remoteStore.ResolveContent(ctx, e.resource, ref)
	case AuthorityLocalBackup:
		raw, err = e.localBackupStore.ResolveContent(ctx, e.resource, ref)
	}
	if err != nil {
		return false, syncerrors.NewWithComponent(syncerrors.OpReplace, "backup-store", err)
	}
	data, err := ParseSyncData(raw)
	if err != nil {
		return false, nil
	}
	content := []byte(data.Content)

	if err := e.Stop(ctx); err != nil {
		return false, err
	}
	e.statusMachine.transitionTo(StatusSyncing)

	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return false, err
	}
	remote, err := e.fetchRemote(ctx)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return false, err
	}

	preview, err := e.generate(ctx, func(ctx context.Context, h EngineHandle, r RemoteUserData, l LastSyncUserData) (SyncPreview, error) {
		return e.strategy.GenerateReplacePreview(ctx, h, content, r, l)
	}, remote, lastSync)
	if err != nil {
		e.statusMachine.transitionTo(StatusIdle)
		return false, err
	}
	if err := e.applyAndPersist(ctx, *preview, false); err != nil {
		e.clearPreview()
		e.statusMachine.transitionTo(StatusIdle)
		return false, err
	}
	e.clearPreview()
	e.statusMachine.transitionTo(StatusIdle)
	return true, nil
}

// AcceptConflict incorporates a user's resolution for one conflicting
// resource into the current preview (spec.md §4.3). It only acts if the
// current preview still has conflicts; otherwise it is a silent no-op.
// If the resource is disabled it ensures Idle and returns, making no
// remote request.
func (e *Engine) AcceptConflict(ctx context.Context, conflictResource *url.URL, content []byte) error {
	if !e.enablement.IsEnabled(e.resource) {
		return e.Stop(ctx)
	}

	pf := e.currentPreview()
	if pf == nil || pf.value == nil || !pf.value.HasConflicts {
		return nil
	}

	handle := &engineHandle{engine: e}
	updated, err := e.strategy.UpdatePreviewWithConflict(ctx, handle, *pf.value, conflictResource, content)
	if err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpAcceptConflict, "strategy", err)
	}

	e.mu.Lock()
	if e.preview == pf {
		pf.value = &updated
	}
	e.mu.Unlock()
	e.statusMachine.setConflicts(updated.Conflicts)

	if updated.HasConflicts {
		return nil
	}

	if err := e.applyAndPersist(ctx, updated, false); err != nil {
		e.clearPreview()
		return syncerrors.NewWithComponent(syncerrors.OpAcceptConflict, "strategy", err)
	}
	e.clearPreview()
	e.statusMachine.transitionTo(StatusIdle)
	return nil
}

// Stop cancels any in-flight preview and returns to Idle (spec.md
// §4.3). File-backed variants also delete their on-disk preview scratch
// file, ignoring not-found.
func (e *Engine) Stop(ctx context.Context) error {
	pf := e.clearPreviewReturningIt()
	if pf != nil && pf.cancel != nil {
		pf.cancel()
	}
	e.statusMachine.transitionTo(StatusIdle)

	if e.fileService != nil {
		if err := e.fileService.Delete(ctx, e.previewScratchResource()); err != nil && !errors.Is(err, ErrFileNotFound) {
			return syncerrors.NewWithComponent(syncerrors.OpStop, "file-service", err)
		}
	}
	return nil
}

func (e *Engine) previewScratchResource() Resource {
	return Resource(fmt.Sprintf("%s.preview", e.resource))
}

// GenerateSyncPreview is a read-only peek: it produces a fresh preview
// without applying it, and without touching the engine's own preview
// future or status. It returns nil, nil if the resource is disabled.
func (e *Engine) GenerateSyncPreview(ctx context.Context) (*SyncPreview, error) {
	if !e.enablement.IsEnabled(e.resource) {
		return nil, nil
	}
	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := e.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}
	handle := &engineHandle{engine: e}
	preview, err := e.strategy.GeneratePreview(ctx, handle, remote, lastSync)
	if err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpGeneratePreview, "strategy", err)
	}
	return &preview, nil
}

// HasPreviouslySynced reports whether a last-sync record exists.
func (e *Engine) HasPreviouslySynced(ctx context.Context) (bool, error) {
	_, existed, err := e.fetchLastSync(ctx)
	return existed, err
}

// GetRemoteSyncResourceHandles lists every historical handle in the
// remote store, wrapped as remote-backup handle URIs.
func (e *Engine) GetRemoteSyncResourceHandles(ctx context.Context) ([]SyncResourceHandle, error) {
	handles, err := e.remoteStore.GetAllRefs(ctx, e.resource)
	if err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpListHandles, "remote-store", err)
	}
	return handles, nil
}

// GetLocalSyncResourceHandles lists every historical handle in the local
// backup store, wrapped as local-backup handle URIs.
func (e *Engine) GetLocalSyncResourceHandles(ctx context.Context) ([]SyncResourceHandle, error) {
	handles, err := e.localBackupStore.GetAllRefs(ctx, e.resource)
	if err != nil {
		return nil, syncerrors.NewWithComponent(syncerrors.OpListHandles, "local-backup-store", err)
	}
	return handles, nil
}

// GetMachineID returns the originating machine id stamped into the
// envelope a remote-backup handle names. It is only defined for
// remote-backup handles; a local-backup handle returns "", nil, and a
// handle with an unrecognized authority returns an error.
func (e *Engine) GetMachineID(ctx context.Context, handle *url.URL) (string, error) {
	authority, err := HandleAuthorityOf(handle)
	if err != nil {
		return "", err
	}
	if authority != AuthorityRemoteBackup {
		return "", nil
	}
	ref, err := HandleRef(handle)
	if err != nil {
		return "", err
	}
	resource, err := HandleResource(handle)
	if err != nil {
		return "", err
	}
	raw, err := e.remoteStore.ResolveContent(ctx, resource, ref)
	if err != nil {
		return "", syncerrors.NewWithComponent(syncerrors.OpResolveContent, "remote-store", err)
	}
	data, err := ParseSyncData(raw)
	if err != nil {
		return "", err
	}
	if data.MachineID == nil {
		return "", nil
	}
	return *data.MachineID, nil
}

// ResolveContent returns the raw envelope bytes a handle names,
// regardless of whether it is still the latest version.
func (e *Engine) ResolveContent(ctx context.Context, handle *url.URL) ([]byte, error) {
	authority, err := HandleAuthorityOf(handle)
	if err != nil {
		return nil, err
	}
	ref, err := HandleRef(handle)
	if err != nil {
		return nil, err
	}
	resource, err := HandleResource(handle)
	if err != nil {
		return nil, err
	}
	switch authority {
	case AuthorityRemoteBackup:
		return e.remoteStore.ResolveContent(ctx, resource, ref)
	case AuthorityLocalBackup:
		return e.localBackupStore.ResolveContent(ctx, resource, ref)
	default:
		return nil, nil
	}
}

// ResetLocal deletes the last-sync record, ignoring not-found.
func (e *Engine) ResetLocal(ctx context.Context) error {
	if err := e.lastSyncStore.Delete(ctx, e.resource); err != nil && !errors.Is(err, syncerrors.ErrNotFound) {
		return syncerrors.NewWithComponent(syncerrors.OpResetLocal, "last-sync-store", err)
	}
	return nil
}

// TriggerLocalChange is invoked by the local-change coalescer once its
// debounce window elapses (spec.md §4.7).
func (e *Engine) TriggerLocalChange(ctx context.Context) error {
	if !e.enablement.IsEnabled(e.resource) {
		return nil
	}

	if e.statusMachine.Status() == StatusHasConflicts {
		pf := e.currentPreview()
		if pf == nil || pf.value == nil {
			return nil
		}
		remote := pf.value.RemoteUserData
		lastSync := pf.value.LastSyncUserData
		e.clearPreview()

		e.statusMachine.transitionTo(StatusSyncing)
		status, err := e.performSync(ctx, remote, lastSync)
		if err != nil {
			e.statusMachine.transitionTo(StatusIdle)
			return err
		}
		e.statusMachine.transitionTo(status)
		return nil
	}

	if e.statusMachine.Status() == StatusSyncing {
		return nil
	}

	lastSync, err := e.fetchLastSyncOrEmpty(ctx)
	if err != nil {
		return err
	}
	remote := RemoteUserData{Ref: lastSync.Ref}
	if data, derr := lastSync.SyncDataOrNil(); derr == nil {
		remote.SyncData = data
	}

	handle := &engineHandle{engine: e}
	preview, err := e.strategy.GeneratePreview(ctx, handle, remote, lastSync)
	if err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpGeneratePreview, "strategy", err)
	}
	if preview.HasRemoteChanged {
		e.fireLocalChange()
	}
	return nil
}

// doSync is the reconciliation step (spec.md §4.6): generate a fresh
// preview, and either surface HasConflicts or apply it.
func (e *Engine) doSync(ctx context.Context, remote RemoteUserData, lastSync LastSyncUserData) (Status, error) {
	preview, err := e.generate(ctx, e.strategy.GeneratePreview, remote, lastSync)
	if err != nil {
		return "", err
	}

	if preview.HasConflicts {
		e.statusMachine.setConflicts(preview.Conflicts)
		return StatusHasConflicts, nil
	}

	if err := e.applyAndPersist(ctx, *preview, false); err != nil {
		e.clearPreview()
		return "", err
	}
	e.clearPreview()
	return StatusIdle, nil
}

// performSync is the optimistic-concurrency retry loop (spec.md §4.5).
func (e *Engine) performSync(ctx context.Context, remote RemoteUserData, lastSync LastSyncUserData) (Status, error) {
	attempts := 0
	for {
		if remote.SyncData != nil && remote.SyncData.Version > e.strategy.Version() {
			e.telemetry.Incompatible(e.resource)
			return "", syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf(
				"remote schema version %d exceeds supported version %d", remote.SyncData.Version, e.strategy.Version()))
		}

		status, err := e.doSync(ctx, remote, lastSync)
		if err == nil {
			return status, nil
		}

		switch {
		case syncerrors.IsLocalPreconditionFailed(err):
			attempts++
			if e.exceededRetryCap(attempts) {
				return "", syncerrors.TooManyRetries(syncerrors.OpSync, attempts)
			}
			e.telemetry.RecordRetry(e.resource, "local-precondition-failed")
			e.logger.Debug("retrying sync after local precondition failure", "attempt", attempts)
			e.backoff(ctx, attempts)
			continue

		case syncerrors.IsPreconditionFailed(err):
			attempts++
			if e.exceededRetryCap(attempts) {
				return "", syncerrors.TooManyRetries(syncerrors.OpSync, attempts)
			}
			e.telemetry.RecordRetry(e.resource, "precondition-failed")
			e.logger.Debug("retrying sync after remote precondition failure", "attempt", attempts)

			freshRemote, ferr := e.fetchRemote(ctx)
			if ferr != nil {
				return "", ferr
			}
			freshLastSync, ferr := e.fetchLastSyncOrEmpty(ctx)
			if ferr != nil {
				return "", ferr
			}
			remote, lastSync = freshRemote, freshLastSync
			e.backoff(ctx, attempts)
			continue

		default:
			return "", err
		}
	}
}

// resolveRemoteForSync implements the latest-remote short-circuit
// (spec.md §4.4).
func (e *Engine) resolveRemoteForSync(ctx context.Context, manifest Manifest, lastSync LastSyncUserData) (RemoteUserData, error) {
	existed := lastSync.Ref != "" || lastSync.Content != nil
	if manifest != nil && existed {
		ref, ok := manifest[e.resource]
		matchesLastSync := (ok && ref == lastSync.Ref) || (!ok && lastSync.Content == nil)
		if matchesLastSync {
			data, err := lastSync.SyncDataOrNil()
			if err == nil {
				return RemoteUserData{Ref: lastSync.Ref, SyncData: data}, nil
			}
		}
	}
	return e.fetchRemote(ctx)
}

func (e *Engine) fetchRemote(ctx context.Context) (RemoteUserData, error) {
	remote, err := e.remoteStore.ReadResource(ctx, e.resource)
	if err != nil {
		if syncerrors.IsIncompatible(err) {
			e.telemetry.Incompatible(e.resource)
		}
		var se *syncerrors.SyncError
		if errors.As(err, &se) {
			return RemoteUserData{}, se
		}
		return RemoteUserData{}, syncerrors.NewWithComponent(syncerrors.OpSync, "remote-store", err)
	}
	return remote, nil
}

// fetchLastSync reports whether a last-sync record exists, distinct from
// whatever value it holds when absent.
func (e *Engine) fetchLastSync(ctx context.Context) (LastSyncUserData, bool, error) {
	data, err := e.lastSyncStore.Read(ctx, e.resource)
	if err != nil {
		if errors.Is(err, syncerrors.ErrNotFound) {
			return LastSyncUserData{}, false, nil
		}
		if errors.Is(err, syncerrors.ErrCorrupt) {
			return LastSyncUserData{}, false, syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
		}
		return LastSyncUserData{}, false, syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}
	return data, true, nil
}

// fetchLastSyncOrEmpty folds "not found" and "corrupt" into an empty
// record instead of an error (spec.md §7).
func (e *Engine) fetchLastSyncOrEmpty(ctx context.Context) (LastSyncUserData, error) {
	data, _, err := e.fetchLastSync(ctx)
	if err != nil {
		if errors.Is(err, syncerrors.ErrCorrupt) {
			e.logger.Warn("last-sync record is corrupt, treating as no prior sync", "resource", e.resource, "error", err)
			return LastSyncUserData{}, nil
		}
		return LastSyncUserData{}, err
	}
	return data, nil
}

// applyAndPersist commits a conflict-free preview and persists the
// resulting last-sync snapshot. Preview creation strictly precedes
// application; application strictly precedes the last-sync write
// (spec.md §5, ordering guarantee) because this method calls
// ApplyPreview and only then writes the last-sync record. A strategy
// error that already carries a SyncError code (for example a remote or
// local precondition failure) is returned unchanged so performSync can
// retry on it.
func (e *Engine) applyAndPersist(ctx context.Context, preview SyncPreview, forcePush bool) error {
	handle := &engineHandle{engine: e}
	data, err := e.strategy.ApplyPreview(ctx, handle, preview, forcePush)
	if err != nil {
		var se *syncerrors.SyncError
		if errors.As(err, &se) && se.Code != "" {
			return err
		}
		return syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "strategy", err)
	}
	if err := e.lastSyncStore.Write(ctx, e.resource, data); err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "last-sync-store", err)
	}
	return nil
}

// generate runs a strategy preview generator under a fresh cancellable
// preview future, stores the future while it runs so Stop can cancel it,
// and clears it again on any error. A preview that finishes after its
// future was cancelled or replaced is discarded and reported as Canceled.
func (e *Engine) generate(
	ctx context.Context,
	gen func(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error),
	remote RemoteUserData,
	lastSync LastSyncUserData,
) (*SyncPreview, error) {
	pf, genCtx := e.newPreview(ctx)
	handle := &engineHandle{engine: e}

	preview, err := gen(genCtx, handle, remote, lastSync)
	if err != nil {
		e.clearPreview()
		if genCtx.Err() != nil {
			return nil, syncerrors.Canceled(syncerrors.OpGeneratePreview)
		}
		return nil, syncerrors.NewWithComponent(syncerrors.OpGeneratePreview, "strategy", err)
	}

	e.mu.Lock()
	if e.preview != pf || genCtx.Err() != nil {
		if e.preview == pf {
			e.preview = nil
		}
		e.mu.Unlock()
		return nil, syncerrors.Canceled(syncerrors.OpGeneratePreview)
	}
	pf.value = &preview
	e.mu.Unlock()
	return &preview, nil
}

func (e *Engine) newPreview(parent context.Context) (*previewFuture, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	pf := &previewFuture{id: newCorrelationID(), cancel: cancel}
	e.mu.Lock()
	e.preview = pf
	e.mu.Unlock()
	return pf, ctx
}

func (e *Engine) clearPreview() {
	e.mu.Lock()
	e.preview = nil
	e.mu.Unlock()
}

// clearPreviewReturningIt atomically clears and returns the previous
// preview future, so Stop can cancel it after releasing the lock.
func (e *Engine) clearPreviewReturningIt() *previewFuture {
	e.mu.Lock()
	pf := e.preview
	e.preview = nil
	e.mu.Unlock()
	return pf
}

func (e *Engine) currentPreview() *previewFuture {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}
