package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces the bursts of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// Loader handles configuration loading, watching, and hot-reloading.
// A file that fails to parse or validate on reload is reported on Errors
// and the previous configuration stays in effect.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
	errChan  chan error
}

// NewLoader creates a configuration loader for path.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:    path,
		logger:  slog.Default().With("component", "config"),
		errChan: make(chan error, 1),
	}
}

// Path returns the watched file.
func (l *Loader) Path() string { return l.path }

// Load reads, overrides and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// LoadOrDefault is Load that falls back to the defaults when the file is
// broken. The error is still returned so the caller can log it.
func (l *Loader) LoadOrDefault() (*Config, error) {
	cfg, err := l.Load()
	if err == nil {
		return cfg, nil
	}
	cfg = DefaultConfig()
	cfg.ApplyEnvOverrides()
	if verr := cfg.Validate(); verr != nil {
		cfg = DefaultConfig()
	}
	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, err
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked after a successful reload. Register
// callbacks before calling Watch.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors returns a channel of reload failures. Errors are dropped when
// nobody is receiving.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done. The containing directory is watched so that editors that replace
// the file on save are handled.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.report(fmt.Errorf("watch config: %w", err))
		}
	}
}

// Reload re-reads the file immediately.
func (l *Loader) Reload() error {
	return l.reloadErr()
}

func (l *Loader) reload() {
	if err := l.reloadErr(); err != nil {
		l.report(err)
	}
}

func (l *Loader) reloadErr() error {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		// A rename-on-save leaves a gap; the Create event follows.
		return nil
	}
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate new config: %w", err)
	}

	l.mu.Lock()
	l.config = cfg
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	l.logger.Info("configuration reloaded", "path", l.path)
	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

func (l *Loader) report(err error) {
	l.logger.Warn("keeping previous configuration", "error", err)
	select {
	case l.errChan <- err:
	default:
	}
}

// loadConfigFromFile reads and parses a config file based on its
// extension. A missing file yields the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, nil
}

// autoDetectAndParse tries TOML, JSON and YAML in turn.
func autoDetectAndParse(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	*cfg = *DefaultConfig()
	if err := json.Unmarshal(data, cfg); err == nil {
		return nil
	}
	*cfg = *DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}
