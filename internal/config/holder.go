package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/agentic-research/dmpath/internal/metrics"
)

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	metrics  *metrics.Collector
	watcher  *fsnotify.Watcher
	onChange []func(old, new *Config)
	stopOnce sync.Once
	stopCh   chan struct{}
	done     sync.WaitGroup
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger, m *metrics.Collector) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &Holder{
		config:  cfg,
		path:    absPath,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
	}, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute path of the watched file.
func (h *Holder) Path() string { return h.path }

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.metrics.ConfigReloadErrors.Inc()
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	callbacks := append([]func(old, new *Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range callbacks {
		fn(oldCfg, newCfg)
	}

	h.metrics.ConfigReloads.Inc()
	h.metrics.ConfigLastReload.Set(float64(time.Now().Unix()))
	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called after a successful reload.
func (h *Holder) OnChange(fn func(old, new *Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	h.done.Add(1)
	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGHUP)

	h.done.Add(1)
	go func() {
		defer h.done.Done()
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals and waits for the watch
// goroutines to exit. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			_ = h.watcher.Close()
		}
	})
	h.done.Wait()
}

func (h *Holder) watchLoop() {
	defer h.done.Done()
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Only react to our config file
			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}
	if old.Feeds != new.Feeds {
		h.logger.Info().
			Str("old", old.Feeds.File).
			Str("new", new.Feeds.File).
			Msg("feed definitions changed")
	}
	if old.Engine.TickInterval != new.Engine.TickInterval {
		h.logger.Info().
			Dur("old", old.Engine.TickInterval).
			Dur("new", new.Engine.TickInterval).
			Msg("tick interval changed")
	}
	if old.HTTP.Addr != new.HTTP.Addr || old.Store.DSN != new.Store.DSN {
		h.logger.Warn().Msg("http.addr and store.dsn changes need a restart")
	}
}
