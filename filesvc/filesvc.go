// Package filesvc implements usersync.FileService against the local
// filesystem: one file per resource under a sync home directory, with
// snapshot-based conditional writes and fsnotify-driven change
// notification. It is the only package here that uses fsnotify; the
// coalescer package receives its events through OnDidFilesChange.
package filesvc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tembleque/usersync"
)

// Service is an os-backed usersync.FileService. Each resource maps to
// <home>/<resource>/content.
type Service struct {
	home string

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	listeners map[usersync.Resource][]func()
}

// NewService starts watching home for changes and returns a Service;
// OnDidFilesChange adds each subscribed resource's directory to the same
// watcher. Callers should call Close when done.
func NewService(home string) (*Service, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(home); err != nil {
		watcher.Close()
		return nil, err
	}

	s := &Service{
		home:      home,
		watcher:   watcher,
		listeners: make(map[usersync.Resource][]func()),
	}
	go s.dispatch()
	return s, nil
}

// Close stops the underlying watcher.
func (s *Service) Close() error { return s.watcher.Close() }

func (s *Service) resourceDir(resource usersync.Resource) string {
	return filepath.Join(s.home, filepath.FromSlash(string(resource)))
}

func (s *Service) resourcePath(resource usersync.Resource) string {
	return filepath.Join(s.resourceDir(resource), "content")
}

func (s *Service) dispatch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.notify(event.Name)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Service) notify(path string) {
	s.mu.Lock()
	var fns []func()
	for resource, handlers := range s.listeners {
		if path == s.resourcePath(resource) || filepath.Dir(path) == s.resourceDir(resource) {
			fns = append(fns, handlers...)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

// ReadFile implements usersync.FileService.
func (s *Service) ReadFile(ctx context.Context, resource usersync.Resource) ([]byte, string, error) {
	path := s.resourcePath(resource)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", usersync.ErrFileNotFound
		}
		return nil, "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	return content, versionOf(info), nil
}

// WriteFile implements usersync.FileService.
func (s *Service) WriteFile(ctx context.Context, resource usersync.Resource, content []byte, expectedVersion string) (string, error) {
	path := s.resourcePath(resource)
	info, statErr := os.Stat(path)

	switch {
	case statErr == nil && expectedVersion == "":
		return "", usersync.ErrFileModifiedSince
	case statErr == nil && versionOf(info) != expectedVersion:
		return "", usersync.ErrFileModifiedSince
	case statErr != nil && !os.IsNotExist(statErr):
		return "", statErr
	case statErr != nil && expectedVersion != "":
		return "", usersync.ErrFileModifiedSince
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}

	newInfo, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return versionOf(newInfo), nil
}

// Delete implements usersync.FileService.
func (s *Service) Delete(ctx context.Context, resource usersync.Resource) error {
	if err := os.Remove(s.resourcePath(resource)); err != nil {
		if os.IsNotExist(err) {
			return usersync.ErrFileNotFound
		}
		return err
	}
	return nil
}

// OnDidFilesChange implements usersync.FileService.
func (s *Service) OnDidFilesChange(resource usersync.Resource, fn func()) func() {
	dir := s.resourceDir(resource)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		s.watcher.Add(dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[resource] = append(s.listeners[resource], fn)
	idx := len(s.listeners[resource]) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		handlers := s.listeners[resource]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

func versionOf(info os.FileInfo) string {
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size())
}

var _ usersync.FileService = (*Service)(nil)
