// Package machineid provisions and persists the identifier a machine
// stamps into every envelope it writes.
package machineid

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider generates a machine id on first use and caches it for the
// lifetime of the process, persisting it to a file so restarts see the
// same id.
type Provider struct {
	path string

	mu sync.Mutex
	id string
}

// NewProvider builds a Provider backed by a file at path. The file's
// parent directory is created on first write if missing.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// MachineID implements usersync.MachineIDProvider.
func (p *Provider) MachineID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	if raw, err := os.ReadFile(p.path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			p.id = id
			return p.id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p.path, []byte(id), 0o644); err != nil {
		return "", err
	}
	p.id = id
	return p.id, nil
}

// Static is a MachineIDProvider returning a fixed id, useful in tests.
type Static string

// MachineID implements usersync.MachineIDProvider.
func (s Static) MachineID(ctx context.Context) (string, error) { return string(s), nil }
