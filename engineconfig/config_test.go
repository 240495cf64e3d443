package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromBytesJSON(t *testing.T) {
	loader := NewLoader(WithValidator(BasicValidator{}))
	data := []byte(`{"version":"2","debounce_delay":100000000,"retry_safety_cap":5}`)

	if err := loader.LoadFromBytes(data, "json"); err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	current := loader.Current()
	if current.Version != "2" {
		t.Fatalf("Version = %q, want 2", current.Version)
	}
	if current.RetrySafetyCap != 5 {
		t.Fatalf("RetrySafetyCap = %d, want 5", current.RetrySafetyCap)
	}
	if current.DebounceDelay != 100*time.Millisecond {
		t.Fatalf("DebounceDelay = %s, want 100ms", current.DebounceDelay)
	}
}

func TestLoadFromBytesYAML(t *testing.T) {
	loader := NewLoader()
	data := []byte("version: \"3\"\nretry_safety_cap: 10\n")

	if err := loader.LoadFromBytes(data, "yaml"); err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if loader.Current().RetrySafetyCap != 10 {
		t.Fatalf("RetrySafetyCap = %d, want 10", loader.Current().RetrySafetyCap)
	}
}

func TestLoadFromFileDetectsFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("version: \"9\"\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	loader := NewLoader()
	if err := loader.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loader.Current().Version != "9" {
		t.Fatalf("Version = %q, want 9", loader.Current().Version)
	}
}

func TestValidatorRejectsInvalidSettings(t *testing.T) {
	loader := NewLoader(WithValidator(BasicValidator{}))
	data := []byte(`{"retry_safety_cap": -1}`)

	if err := loader.LoadFromBytes(data, "json"); err == nil {
		t.Fatalf("expected validation error for negative retry_safety_cap")
	}
	if loader.Current() != nil {
		t.Fatalf("expected current settings to remain nil after a failed validation")
	}
}

func TestWatcherNotifiedOnSuccessfulLoad(t *testing.T) {
	var oldSeen, newSeen *Settings
	watcher := funcWatcher(func(old, next *Settings) {
		oldSeen, newSeen = old, next
	})
	loader := NewLoader(WithWatcher(watcher))

	if err := loader.LoadFromBytes([]byte(`{"version":"1"}`), "json"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if oldSeen != nil {
		t.Fatalf("expected nil old settings on first load")
	}
	if newSeen == nil || newSeen.Version != "1" {
		t.Fatalf("newSeen = %+v, want version 1", newSeen)
	}

	if err := loader.LoadFromBytes([]byte(`{"version":"2"}`), "json"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if oldSeen == nil || oldSeen.Version != "1" {
		t.Fatalf("oldSeen = %+v, want version 1", oldSeen)
	}
	if newSeen.Version != "2" {
		t.Fatalf("newSeen = %+v, want version 2", newSeen)
	}
}

func TestTransformerRunsBeforeValidation(t *testing.T) {
	transformer := funcTransformer(func(s *Settings) (*Settings, error) {
		s.RetrySafetyCap = 3
		return s, nil
	})
	loader := NewLoader(WithTransformer(transformer), WithValidator(BasicValidator{}))

	if err := loader.LoadFromBytes([]byte(`{"retry_safety_cap": -1}`), "json"); err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if loader.Current().RetrySafetyCap != 3 {
		t.Fatalf("RetrySafetyCap = %d, want 3 (transformed before validation)", loader.Current().RetrySafetyCap)
	}
}

func TestDefaultSettingsPassBasicValidator(t *testing.T) {
	if err := (BasicValidator{}).Validate(DefaultSettings()); err != nil {
		t.Fatalf("DefaultSettings() failed validation: %v", err)
	}
}

type funcWatcher func(old, next *Settings)

func (f funcWatcher) OnSettingsChanged(old, next *Settings) { f(old, next) }

type funcTransformer func(s *Settings) (*Settings, error)

func (f funcTransformer) Transform(s *Settings) (*Settings, error) { return f(s) }
