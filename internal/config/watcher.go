package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const debounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration when the file changes or on SIGHUP
type Watcher struct {
	configPath string
	logger     zerolog.Logger
	watcher    *fsnotify.Watcher
	reloadFunc func(*Config) error
	stop       chan struct{}
	done       chan struct{}
	started    bool
}

// NewWatcher creates a new config file watcher.
// The parent directory is watched so editors that replace the file are still seen.
func NewWatcher(configPath string, reloadFunc func(*Config) error, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(filepath.Dir(configPath)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		configPath: filepath.Clean(configPath),
		logger:     logger,
		watcher:    fsWatcher,
		reloadFunc: reloadFunc,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start starts watching for config changes
func (w *Watcher) Start() {
	w.started = true
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	go func() {
		defer close(w.done)
		defer w.watcher.Close()
		defer signal.Stop(sigChan)

		// Editors often emit several writes per save
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-w.stop:
				w.logger.Info().Msg("Config watcher stopped")
				return

			case sig := <-sigChan:
				w.logger.Info().
					Str("signal", sig.String()).
					Msg("Received signal, reloading configuration")
				w.reload()

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.configPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				w.logger.Debug().
					Str("file", event.Name).
					Str("op", event.Op.String()).
					Msg("Config file changed")

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error().Err(err).Msg("Config watcher error")
			}
		}
	}()

	w.logger.Info().
		Str("path", w.configPath).
		Msg("Config watcher started")
}

// Stop stops the watcher and waits for it to exit
func (w *Watcher) Stop() {
	if !w.started {
		w.watcher.Close()
		return
	}
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

// reload loads and applies the new configuration, keeping the current one on failure
func (w *Watcher) reload() {
	w.logger.Info().Msg("Reloading configuration...")

	newCfg, err := Load(w.configPath)
	if err != nil {
		w.logger.Error().
			Err(err).
			Msg("Failed to load new configuration - keeping current config")
		return
	}

	if err := w.reloadFunc(newCfg); err != nil {
		w.logger.Error().
			Err(err).
			Msg("Failed to apply new configuration - keeping current config")
		return
	}

	w.logger.Info().Msg("Configuration reloaded successfully")
}
