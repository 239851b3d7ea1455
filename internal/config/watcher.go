package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when a YAML file in the loader's directory
// changes. Hot reload only runs in development; elsewhere the watcher just holds
// the initial configuration.
type Watcher struct {
	loader   *Loader
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)

	fs     *fsnotify.Watcher
	stopCh chan struct{}
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

func NewWatcher(loader *Loader, initial *Config, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		loader:   loader,
		logger:   logger.Named("config"),
		debounce: defaultDebounce,
		current:  initial,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if !initial.IsDevelopment() {
		close(w.done)
		w.logger.Info("Configuration hot reloading disabled", zap.String("environment", string(initial.Environment)))
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so editors that replace files are still seen.
	if err := fsw.Add(loader.BasePath()); err != nil {
		_ = fsw.Close()
		if errors.Is(err, fs.ErrNotExist) {
			close(w.done)
			w.logger.Warn("Configuration directory missing, hot reloading disabled", zap.String("dir", loader.BasePath()))
			return w, nil
		}
		return nil, fmt.Errorf("failed to watch %s: %w", loader.BasePath(), err)
	}
	w.fs = fsw
	go w.loop()

	w.logger.Info("Configuration hot reloading enabled", zap.String("dir", loader.BasePath()))
	return w, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	if w.fs == nil {
		return nil
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.done
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer w.fs.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

// reload keeps the previous configuration when the new one does not load.
func (w *Watcher) reload() {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Configuration reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.current
	if sameSettings(prev, next) {
		w.mu.Unlock()
		w.logger.Debug("Configuration unchanged after reload")
		return
	}
	w.current = next
	callbacks := append(([]func(*Config))(nil), w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded", zap.Strings("sources", next.LoadedFrom))
	for i, fn := range callbacks {
		w.notify(i, fn, next)
	}
}

func (w *Watcher) notify(i int, fn func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Configuration callback panicked", zap.Int("callback", i), zap.Any("panic", r))
		}
	}()
	fn(cfg)
}

func sameSettings(a, b *Config) bool {
	x, y := *a, *b
	x.LoadedFrom, y.LoadedFrom = nil, nil
	return reflect.DeepEqual(x, y)
}

func isConfigFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// LevelUpdater returns a callback that applies the reloaded log level to level.
func LevelUpdater(level zap.AtomicLevel, logger *zap.Logger) func(*Config) {
	return func(cfg *Config) {
		l, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			logger.Warn("Ignoring log level", zap.String("level", cfg.Logging.Level), zap.Error(err))
			return
		}
		if level.Level() != l {
			level.SetLevel(l)
			logger.Info("Log level changed", zap.Stringer("level", l))
		}
	}
}
