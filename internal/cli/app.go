package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/s33g/chatctx/internal/chat"
	"github.com/s33g/chatctx/internal/config"
	"github.com/s33g/chatctx/internal/logging"
	"github.com/s33g/chatctx/internal/provider"
	"github.com/s33g/chatctx/internal/storage"
	"github.com/s33g/chatctx/internal/thread"
)

// App holds the long-lived components shared by commands
type App struct {
	config        *config.Config
	configPath    string // Path to config file for reload
	configWatcher *config.Watcher
	configMu      sync.RWMutex
	store         thread.Store
	registry      *provider.Registry
	service       *chat.Service
	logger        zerolog.Logger
}

// NewApp opens the configured thread store and wires the chat service
func NewApp(ctx context.Context, cfg *config.Config, configPath string, logger zerolog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(cfg, logging.Component(logger, "provider"))

	return &App{
		config:     cfg,
		configPath: configPath,
		store:      store,
		registry:   registry,
		service:    chat.NewService(cfg, store, registry, logging.Component(logger, "chat")),
		logger:     logger,
	}, nil
}

// OpenStore opens the thread store selected by store.backend
func OpenStore(ctx context.Context, cfg *config.Config) (thread.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb, err := storage.DialRedis(ctx, cfg.Store.Redis)
		if err != nil {
			return nil, err
		}
		return thread.NewRedisStore(rdb, cfg.Defaults.ConversationTTL(), cfg.Defaults.MessageHistoryLimit), nil

	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		store, err := thread.NewSQLiteStore(ctx, db, cfg.Defaults.MessageHistoryLimit)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// WatchConfig starts hot reload of the config file
func (a *App) WatchConfig() {
	watcher, err := config.NewWatcher(a.configPath, a.Reload, a.logger)
	if err != nil {
		// Non-fatal - just log the error
		a.logger.Warn().Err(err).Msg("Failed to create config watcher - hot reload disabled")
		return
	}
	a.configWatcher = watcher
	a.configWatcher.Start()
}

// Close stops the watcher and closes the store
func (a *App) Close() error {
	if a.configWatcher != nil {
		a.configWatcher.Stop()
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close thread store: %w", err)
	}
	return nil
}

// Reload reloads the configuration
func (a *App) Reload(cfg *config.Config) error {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	// Reload chat service (and its provider registry)
	if err := a.service.Reload(cfg); err != nil {
		return fmt.Errorf("failed to reload chat service: %w", err)
	}

	// Update config
	a.config = cfg

	a.logger.Info().Msg("Configuration reloaded successfully")
	return nil
}

// GetConfig safely returns the current configuration
func (a *App) GetConfig() *config.Config {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}
