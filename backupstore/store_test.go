package backupstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembleque/usersync"
	syncerrors "github.com/tembleque/usersync/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backups.db")
	store, err := New(DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBackupThenResolveContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handle, err := store.Backup(ctx, usersync.ResourceSettings, []byte("snapshot-1"))
	require.NoError(t, err)
	require.NotNil(t, handle.URI)

	ref, err := usersync.HandleRef(handle.URI)
	require.NoError(t, err)

	content, err := store.ResolveContent(ctx, usersync.ResourceSettings, ref)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-1", string(content))
}

func TestResolveContentUnknownRefReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ResolveContent(context.Background(), usersync.ResourceSettings, "missing-ref")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerrors.ErrNotFound)
}

func TestGetAllRefsOrdersOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Backup(ctx, usersync.ResourceSettings, []byte("v"))
		require.NoError(t, err)
	}

	handles, err := store.GetAllRefs(ctx, usersync.ResourceSettings)
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for i := 1; i < len(handles); i++ {
		assert.False(t, handles[i].Created.Before(handles[i-1].Created))
	}
}

func TestBackupsAreScopedByResource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Backup(ctx, usersync.ResourceSettings, []byte("settings-backup"))
	require.NoError(t, err)
	_, err = store.Backup(ctx, usersync.ResourceKeybindings, []byte("keybindings-backup"))
	require.NoError(t, err)

	settingsHandles, err := store.GetAllRefs(ctx, usersync.ResourceSettings)
	require.NoError(t, err)
	assert.Len(t, settingsHandles, 1)

	keybindingsHandles, err := store.GetAllRefs(ctx, usersync.ResourceKeybindings)
	require.NoError(t, err)
	assert.Len(t, keybindingsHandles, 1)
}
