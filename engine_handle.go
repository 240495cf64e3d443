package usersync

import (
	"context"
	"errors"
	"fmt"

	syncerrors "github.com/tembleque/usersync/errors"
)

// engineHandle is the concrete EngineHandle every strategy call receives.
// It exists purely to route strategy-initiated writes back through the
// engine's collaborators and error translation, per spec.md §9's
// "engine handle, not inheritance" design note.
type engineHandle struct {
	engine *Engine
}

func (h *engineHandle) GetLocalFileContent(ctx context.Context) ([]byte, string, error) {
	if h.engine.fileService == nil {
		return nil, "", syncerrors.NewWithComponent(syncerrors.OpSync, "file-service",
			fmt.Errorf("resource %q is not file-backed", h.engine.resource))
	}
	content, version, err := h.engine.fileService.ReadFile(ctx, h.engine.resource)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, "", ErrFileNotFound
		}
		return nil, "", syncerrors.NewWithComponent(syncerrors.OpSync, "file-service", err)
	}
	return content, version, nil
}

func (h *engineHandle) UpdateLocalFileContent(ctx context.Context, content []byte, expectedVersion string) (string, error) {
	if h.engine.fileService == nil {
		return "", syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "file-service",
			fmt.Errorf("resource %q is not file-backed", h.engine.resource))
	}
	newVersion, err := h.engine.fileService.WriteFile(ctx, h.engine.resource, content, expectedVersion)
	if err != nil {
		return "", translateFileError(syncerrors.OpApplyPreview, err)
	}
	return newVersion, nil
}

func (h *engineHandle) BackupLocal(ctx context.Context, content []byte) (SyncResourceHandle, error) {
	if h.engine.localBackupStore == nil {
		return SyncResourceHandle{}, syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "local-backup-store",
			fmt.Errorf("no local backup store configured"))
	}
	handle, err := h.engine.localBackupStore.Backup(ctx, h.engine.resource, content)
	if err != nil {
		return SyncResourceHandle{}, syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "local-backup-store", err)
	}
	return handle, nil
}

func (h *engineHandle) UpdateRemoteUserData(ctx context.Context, content []byte, expectedRef string) (string, error) {
	ref, err := h.engine.remoteStore.WriteResource(ctx, h.engine.resource, content, expectedRef)
	if err != nil {
		return "", classifyRemoteWriteError(err)
	}
	return ref, nil
}

func (h *engineHandle) UpdateLastSyncUserData(ctx context.Context, data LastSyncUserData) error {
	if err := h.engine.lastSyncStore.Write(ctx, h.engine.resource, data); err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "last-sync-store", err)
	}
	return nil
}

func (h *engineHandle) MachineID(ctx context.Context) (string, error) {
	return h.engine.machineIDProvider.MachineID(ctx)
}

// classifyRemoteWriteError passes an already-classified SyncError
// through unchanged (RemoteStore implementations are expected to return
// CodePreconditionFailed themselves) and wraps anything else.
func classifyRemoteWriteError(err error) error {
	var se *syncerrors.SyncError
	if errors.As(err, &se) {
		return se
	}
	return syncerrors.NewWithComponent(syncerrors.OpApplyPreview, "remote-store", err)
}

var _ EngineHandle = (*engineHandle)(nil)
