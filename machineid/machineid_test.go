package machineid

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProviderGeneratesAndCachesID(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(filepath.Join(dir, "machine-id"))

	id1, err := p.MachineID(context.Background())
	if err != nil {
		t.Fatalf("MachineID: %v", err)
	}
	if id1 == "" {
		t.Fatalf("expected a non-empty machine id")
	}

	id2, err := p.MachineID(context.Background())
	if err != nil {
		t.Fatalf("MachineID (cached): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("MachineID changed between calls: %q != %q", id1, id2)
	}
}

func TestProviderPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine-id")

	first := NewProvider(path)
	id, err := first.MachineID(context.Background())
	if err != nil {
		t.Fatalf("MachineID: %v", err)
	}

	second := NewProvider(path)
	reloaded, err := second.MachineID(context.Background())
	if err != nil {
		t.Fatalf("MachineID on new provider: %v", err)
	}
	if reloaded != id {
		t.Fatalf("reloaded id %q != original %q", reloaded, id)
	}
}

func TestProviderCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "machine-id")

	p := NewProvider(path)
	if _, err := p.MachineID(context.Background()); err != nil {
		t.Fatalf("MachineID: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected machine id file to exist: %v", err)
	}
}

func TestStaticReturnsFixedID(t *testing.T) {
	s := Static("fixed-id")
	id, err := s.MachineID(context.Background())
	if err != nil {
		t.Fatalf("MachineID: %v", err)
	}
	if id != "fixed-id" {
		t.Fatalf("id = %q, want fixed-id", id)
	}
}
