// Package engineconfig loads engine tunables (debounce delay, retry safety
// cap, per-call timeout, backoff parameters) from YAML or JSON, grounded on
// the teacher's synckit.ConfigLoader: the same validator/watcher/transformer
// hook shape and format auto-detection, applied to a much smaller settings
// struct.
package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the tunables engineconfig loads and validates.
type Settings struct {
	Version string `json:"version" yaml:"version"`

	DebounceDelay    time.Duration `json:"debounce_delay" yaml:"debounce_delay"`
	RetrySafetyCap   int           `json:"retry_safety_cap" yaml:"retry_safety_cap"`
	CallTimeout      time.Duration `json:"call_timeout" yaml:"call_timeout"`
	BackoffBase      time.Duration `json:"backoff_base" yaml:"backoff_base"`
	BackoffMax       time.Duration `json:"backoff_max" yaml:"backoff_max"`
	BackoffJitter    float64       `json:"backoff_jitter" yaml:"backoff_jitter"`
	DisabledResources []string     `json:"disabled_resources,omitempty" yaml:"disabled_resources,omitempty"`
}

// Validator checks a loaded Settings before it becomes current.
type Validator interface {
	Validate(s *Settings) error
	Name() string
}

// Watcher observes settings changes after a successful load.
type Watcher interface {
	OnSettingsChanged(old, new *Settings)
}

// Transformer can rewrite a Settings during loading, before validation.
type Transformer interface {
	Transform(s *Settings) (*Settings, error)
}

// Loader loads, validates, and holds the current engine Settings.
type Loader struct {
	mu           sync.RWMutex
	current      *Settings
	validators   []Validator
	watchers     []Watcher
	transformers []Transformer
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithValidator registers a Validator run on every load.
func WithValidator(v Validator) LoaderOption {
	return func(l *Loader) { l.validators = append(l.validators, v) }
}

// WithWatcher registers a Watcher notified after every successful load.
func WithWatcher(w Watcher) LoaderOption {
	return func(l *Loader) { l.watchers = append(l.watchers, w) }
}

// WithTransformer registers a Transformer applied before validation.
func WithTransformer(t Transformer) LoaderOption {
	return func(l *Loader) { l.transformers = append(l.transformers, t) }
}

// NewLoader builds a Loader with the given options.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFromFile reads path, auto-detecting YAML or JSON from its extension.
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return l.LoadFromBytes(data, detectFormat(path))
}

// LoadFromBytes parses raw bytes in the given format ("yaml" or "json").
func (l *Loader) LoadFromBytes(data []byte, format string) error {
	settings := DefaultSettings()

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, settings); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}

	return l.apply(settings)
}

func (l *Loader) apply(settings *Settings) error {
	for _, t := range l.transformers {
		transformed, err := t.Transform(settings)
		if err != nil {
			return fmt.Errorf("transform config: %w", err)
		}
		settings = transformed
	}

	for _, v := range l.validators {
		if err := v.Validate(settings); err != nil {
			return fmt.Errorf("validator %s: %w", v.Name(), err)
		}
	}

	l.mu.Lock()
	old := l.current
	l.current = settings
	l.mu.Unlock()

	for _, w := range l.watchers {
		w.OnSettingsChanged(old, settings)
	}
	return nil
}

// Current returns the most recently loaded Settings, or nil if none loaded.
func (l *Loader) Current() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func detectFormat(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "yaml"
	}
	switch strings.ToLower(path[idx+1:]) {
	case "json":
		return "json"
	default:
		return "yaml"
	}
}

// DefaultSettings returns production-ready defaults matching the engine's
// own zero-config behavior (retry cap 8, exponential backoff enabled).
func DefaultSettings() *Settings {
	return &Settings{
		Version:        "1",
		DebounceDelay:  50 * time.Millisecond,
		RetrySafetyCap: 8,
		CallTimeout:    30 * time.Second,
		BackoffBase:    50 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		BackoffJitter:  0.2,
	}
}

// BasicValidator enforces the invariants the engine assumes hold.
type BasicValidator struct{}

// Name implements Validator.
func (BasicValidator) Name() string { return "basic" }

// Validate implements Validator.
func (BasicValidator) Validate(s *Settings) error {
	if s.RetrySafetyCap < 0 {
		return fmt.Errorf("retry_safety_cap must be >= 0, got %d", s.RetrySafetyCap)
	}
	if s.DebounceDelay < 0 {
		return fmt.Errorf("debounce_delay must be >= 0, got %s", s.DebounceDelay)
	}
	if s.BackoffJitter < 0 || s.BackoffJitter > 1 {
		return fmt.Errorf("backoff_jitter must be in [0,1], got %f", s.BackoffJitter)
	}
	if s.BackoffBase > 0 && s.BackoffMax < s.BackoffBase {
		return fmt.Errorf("backoff_max (%s) must be >= backoff_base (%s)", s.BackoffMax, s.BackoffBase)
	}
	return nil
}
