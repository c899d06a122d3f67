package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc receives the freshly loaded configuration after a file change.
// Subscribers apply the subset of settings that are safe to change at
// runtime (currently the rate-limit policy numbers).
type ReloadFunc func(cfg *Config)

// Watcher watches the configuration directory and reloads on changes.
// Editors often emit several events for one save, so reloads are debounced.
type Watcher struct {
	mu          sync.Mutex
	subscribers []ReloadFunc

	basePath string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	quit     chan struct{}
}

// NewWatcher creates a watcher over the given config directory. It does
// nothing until Start is called.
func NewWatcher(basePath string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if basePath == "" {
		basePath = "config"
	}
	return &Watcher{
		basePath: basePath,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Subscribe registers a callback invoked after every successful reload.
func (w *Watcher) Subscribe(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start begins watching. A missing config directory is not an error; the
// deployment may be configured purely via environment variables.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	if err := fw.Add(w.basePath); err != nil {
		w.logger.Info("config directory not watchable, hot reload disabled",
			zap.String("path", w.basePath),
			zap.Error(err),
		)
		fw.Close()
		w.watcher = nil
		return nil
	}

	go w.run()
	w.logger.Info("config watcher started", zap.String("path", w.basePath))
	return nil
}

func (w *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-w.quit:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.basePath)
	if err != nil {
		// Keep running on the previous configuration.
		w.logger.Error("config reload failed, keeping previous configuration", zap.Error(err))
		return
	}

	w.mu.Lock()
	subs := append([]ReloadFunc(nil), w.subscribers...)
	w.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	w.logger.Info("configuration reloaded", zap.Strings("sources", cfg.LoadedFrom))
}

// Stop ends watching.
func (w *Watcher) Stop() {
	close(w.quit)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func isConfigFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
