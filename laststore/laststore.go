// Package laststore implements usersync.LastSyncStore against the local
// filesystem: one JSON file per resource under a sync home directory,
// grounded on the same os-backed atomic-write conventions as filesvc.
package laststore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tembleque/usersync"
	syncerrors "github.com/tembleque/usersync/errors"
)

// Store is an os-backed usersync.LastSyncStore. Each resource's record
// lives at <home>/<resource>/lastSync<Resource>.json, spec.md §6's
// persisted state layout.
type Store struct {
	home string

	mu sync.Mutex
}

// NewStore builds a Store rooted at home. The directory is created lazily,
// on first write, per resource.
func NewStore(home string) *Store {
	return &Store{home: home}
}

func (s *Store) path(resource usersync.Resource) string {
	name := fmt.Sprintf("lastSync%s.json", titleCase(string(resource)))
	return filepath.Join(s.home, filepath.FromSlash(string(resource)), name)
}

// titleCase upper-cases the first rune of resource, e.g. "settings" ->
// "Settings", matching spec.md §6's <Resource> file-name segment.
func titleCase(resource string) string {
	if resource == "" {
		return resource
	}
	return strings.ToUpper(resource[:1]) + resource[1:]
}

// Read implements usersync.LastSyncStore.
func (s *Store) Read(ctx context.Context, resource usersync.Resource) (usersync.LastSyncUserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(resource))
	if err != nil {
		if os.IsNotExist(err) {
			return usersync.LastSyncUserData{}, syncerrors.ErrNotFound
		}
		return usersync.LastSyncUserData{}, syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}

	var data usersync.LastSyncUserData
	if err := json.Unmarshal(raw, &data); err != nil {
		return usersync.LastSyncUserData{}, fmt.Errorf("%s: %w", resource, syncerrors.ErrCorrupt)
	}
	return data, nil
}

// Write implements usersync.LastSyncStore.
func (s *Store) Write(ctx context.Context, resource usersync.Resource, data usersync.LastSyncUserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}

	path := s.path(resource)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}
	return nil
}

// Delete implements usersync.LastSyncStore. Deleting an absent record is
// not an error.
func (s *Store) Delete(ctx context.Context, resource usersync.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(resource)); err != nil && !os.IsNotExist(err) {
		return syncerrors.NewWithComponent(syncerrors.OpSync, "last-sync-store", err)
	}
	return nil
}

var _ usersync.LastSyncStore = (*Store)(nil)
