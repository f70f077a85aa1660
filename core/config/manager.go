package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Manager owns the live configuration. Readers call Get on the hot path;
// the pointer swaps atomically on reload so no reader ever observes a
// half-written config. File watching is opt-in via Watch.
type Manager struct {
	path      string
	logger    *slog.Logger
	configPtr unsafe.Pointer
	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
}

// NewManager builds a manager seeded with defaults. path may name a
// nonexistent file; Load then keeps the defaults.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:      path,
		logger:    logger,
		stopWatch: make(chan struct{}),
	}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(Default()))
	return m
}

// Get returns the current configuration. The returned value is shared and
// must be treated as read-only.
func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Load layers the config file and environment overrides over the defaults,
// validates, swaps the live pointer and notifies watchers.
func (m *Manager) Load() error {
	cfg := Default()

	if err := m.loadFile(m.path, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", m.path, err)
	}
	m.applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)
	return nil
}

// Reload is Load under the name the watch loop uses.
func (m *Manager) Reload() error {
	return m.Load()
}

func (m *Manager) loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	// Unmarshal into a fresh overlay and merge, so a partial file only
	// touches the keys it names. Explicit zero values count as unset.
	overlay := &Config{}
	if err := yaml.Unmarshal(data, overlay); err != nil {
		return err
	}
	DeepMerge(cfg, overlay)
	return nil
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("STARNEST_N_INITIAL"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sampler.NInitial = n
		}
	}
	if v := os.Getenv("STARNEST_SEED"); v != "" {
		if n, err := parseInt64(v); err == nil {
			cfg.Sampler.Seed = n
		}
	}
	if v := os.Getenv("STARNEST_WORKERS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Sampler.Workers = n
		}
	}
	if v := os.Getenv("STARNEST_TERMINATION_FACTOR"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Sampler.TerminationFactor = f
		}
	}
	if v := os.Getenv("STARNEST_OUTPUT_PREFIX"); v != "" {
		cfg.Output.Prefix = v
	}
	if v := os.Getenv("STARNEST_OUTPUT_MARGINALS"); v != "" {
		cfg.Output.Marginals = strings.ToLower(v) == "true"
	}
}

// OnChange registers a callback invoked after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

// Watch reloads the configuration whenever the file changes on disk. The
// parent directory is watched since editors replace files instead of
// writing in place. Runs until Close.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config watch %s: %w", m.path, err)
	}

	go func() {
		defer watcher.Close()
		base := filepath.Base(m.path)
		for {
			select {
			case <-m.stopWatch:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if err := m.Reload(); err != nil {
					m.logger.Error("config reload failed",
						slog.String("path", m.path),
						slog.Any("error", err),
					)
					continue
				}
				m.logger.Info("config reloaded", slog.String("path", m.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("config watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}

// Close stops the watch loop. Safe to call more than once.
func (m *Manager) Close() error {
	m.watchOnce.Do(func() {
		close(m.stopWatch)
	})
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
