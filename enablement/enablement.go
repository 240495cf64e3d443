// Package enablement provides a resource-enablement flag service: which
// resources currently participate in synchronization.
package enablement

import (
	"sync"

	"github.com/tembleque/usersync"
)

// Service is an in-memory EnablementService. Every resource is enabled
// by default unless explicitly disabled.
type Service struct {
	mu       sync.RWMutex
	disabled map[usersync.Resource]bool
}

// NewService builds a Service with the given resources initially
// disabled; every other resource starts enabled.
func NewService(initiallyDisabled ...usersync.Resource) *Service {
	s := &Service{disabled: make(map[usersync.Resource]bool, len(initiallyDisabled))}
	for _, r := range initiallyDisabled {
		s.disabled[r] = true
	}
	return s
}

// IsEnabled implements usersync.EnablementService.
func (s *Service) IsEnabled(resource usersync.Resource) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[resource]
}

// SetEnabled toggles a resource's participation in sync at runtime.
func (s *Service) SetEnabled(resource usersync.Resource, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		delete(s.disabled, resource)
	} else {
		s.disabled[resource] = true
	}
}

var _ usersync.EnablementService = (*Service)(nil)
