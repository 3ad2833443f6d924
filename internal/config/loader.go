package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// settle is how long the watcher waits after the last file event before
// reloading. Editors often emit several writes for one save.
const settle = 150 * time.Millisecond

// Loader owns the live configuration. It re-reads the file on demand or when
// the file changes, and keeps the previous config whenever a new one fails
// to parse, validate or pass a gate.
type Loader struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  *Config
	digest   [sha256.Size]byte
	gates    []func(*Config) error
	onChange []func(*Config)
}

// NewLoader performs the initial load. An unreadable or invalid file is an
// error here.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger}
	cfg, sum, err := l.read()
	if err != nil {
		return nil, err
	}
	l.current, l.digest = cfg, sum
	return l, nil
}

// Path returns the file being served.
func (l *Loader) Path() string { return l.path }

// Config returns the config currently in effect.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Gate adds a check every reloaded config must pass before it replaces the
// current one, e.g. that its routing table compiles.
func (l *Loader) Gate(fn func(*Config) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gates = append(l.gates, fn)
}

// OnChange registers fn to run after each accepted reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the file and applies it, even when its content has not
// changed since the last load.
func (l *Loader) Reload() (*Config, error) {
	cfg, sum, err := l.read()
	if err != nil {
		return nil, err
	}
	if err := l.apply(cfg, sum); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch reloads the config whenever the file changes on disk and returns a
// stop function. The parent directory is watched so saves that replace the
// file by rename are seen too.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(l.path)
	done := make(chan struct{})
	go func() {
		defer w.Close()
		timer := time.NewTimer(settle)
		timer.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				timer.Reset(settle)
			case <-timer.C:
				l.reloadIfChanged()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", "err", err)
			case <-done:
				timer.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

func (l *Loader) reloadIfChanged() {
	cfg, sum, err := l.read()
	if err != nil {
		l.logger.Error("config reload rejected", "path", l.path, "err", err)
		return
	}
	l.mu.RLock()
	same := sum == l.digest
	l.mu.RUnlock()
	if same {
		return
	}
	if err := l.apply(cfg, sum); err != nil {
		l.logger.Error("config reload rejected", "path", l.path, "err", err)
	}
}

func (l *Loader) apply(cfg *Config, sum [sha256.Size]byte) error {
	l.mu.Lock()
	gates := append([]func(*Config) error(nil), l.gates...)
	l.mu.Unlock()
	for _, gate := range gates {
		if err := gate(cfg); err != nil {
			return fmt.Errorf("config rejected: %w", err)
		}
	}

	l.mu.Lock()
	l.current, l.digest = cfg, sum
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	l.logger.Info("config reloaded", "path", l.path, "version", cfg.Version, "scenarios", len(cfg.Routing.Scenarios))
	return nil
}

func (l *Loader) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, fmt.Errorf("failed to read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
