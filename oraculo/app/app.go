// Package app wires configuration into the running components shared by the
// HTTP server and the CLI.
package app

import (
	"context"
	"fmt"

	"oraculo/oraculo/config"
	"oraculo/oraculo/controllers"
	"oraculo/oraculo/prompts"
	"oraculo/oraculo/services/llm"
	"oraculo/oraculo/services/loaders"
	"oraculo/oraculo/services/retention"
	"oraculo/oraculo/services/session"
	"oraculo/oraculo/sources/psql"
	"oraculo/oraculo/sources/psql/dao"
	"oraculo/oraculo/sources/storage"
	"oraculo/oraculo/utils/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config  config.Config
	DB      *psql.Database
	Store   *session.Store
	Gateway *llm.Gateway
	Oraculo *controllers.OraculoController
	Health  *controllers.HealthController
	Janitor *retention.Janitor

	redis   *redis.Client
	browser *loaders.Browser
}

func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.DB = db

	var coord session.Coordinator = session.NewLocalCoordinator()
	if cfg.RedisURL != "" {
		client, err := session.NewRedisClient(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		coord = session.NewRedisCoordinator(client, cfg.SessionLockTTL)
		logging.AppLogger.Info("using redis session coordinator")
	}
	a.Store = session.NewStore(session.NewGormDurable(dao.NewConversationDAO(db.DB)), coord, session.Options{
		CacheSize:         cfg.SessionCacheSize,
		CacheTTL:          cfg.SessionCacheTTL,
		DegradedThreshold: cfg.DurableDegradedThreshold,
	})

	registry := llm.DefaultRegistry(cfg.OllamaBaseURL)
	overrides, err := config.LoadProvidersFile(cfg.ProvidersFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	for name, o := range overrides {
		if !registry.Override(name, o.Models, o.BaseURL) {
			logging.AppLogger.Warn("providers file names an unknown provider", zap.String("provider", name))
		}
	}
	a.Gateway = llm.NewGateway(registry, cfg.DefaultCredentials())

	opts := loaders.Options{}
	if cfg.MinIOEndpoint != "" {
		archive, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		opts.Archive = archive
	}
	if cfg.ScraperBrowser {
		browser, err := loaders.NewBrowser()
		if err != nil {
			logging.AppLogger.Warn("browser renderer unavailable", zap.Error(err))
		} else {
			a.browser = browser
			opts.Renderer = browser
		}
	}

	a.Oraculo = controllers.NewOraculoController(a.Store, a.Gateway, loaders.New(opts), prompts.Load(cfg.PromptsFile))
	a.Health = controllers.NewHealthController(a.Oraculo)
	a.Janitor = retention.New(a.Store, cfg.RetentionTTL, cfg.RetentionSchedule)
	return a, nil
}

// Close releases everything Build opened.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
