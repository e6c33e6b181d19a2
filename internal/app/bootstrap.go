// Package app assembles the asset cache from configuration. It is shared by
// the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/api"
	"github.com/Checker-Finance/assetcache/internal/assetsync"
	"github.com/Checker-Finance/assetcache/internal/coincap"
	"github.com/Checker-Finance/assetcache/internal/publisher"
	"github.com/Checker-Finance/assetcache/internal/rate"
	internalsecrets "github.com/Checker-Finance/assetcache/internal/secrets"
	"github.com/Checker-Finance/assetcache/internal/store"
	"github.com/Checker-Finance/assetcache/pkg/config"
	"github.com/Checker-Finance/assetcache/pkg/secrets"
	"github.com/Checker-Finance/assetcache/pkg/utils"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config      *config.Config
	Store       store.Backend
	Notifier    publisher.Notifier
	Remote      *coincap.Client
	Coordinator *assetsync.Coordinator
}

// Options disables optional parts for short-lived processes.
type Options struct {
	SkipEvents bool
}

// Bootstrap builds every component selected by cfg.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	keys, err := newKeySource(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.CoinCapRPS,
		Burst:             cfg.CoinCapBurst,
	})
	remote := coincap.NewClient(logger.Named("coincap"), coincap.Config{
		BaseURL:  cfg.CoinCapBaseURL,
		Timeout:  cfg.CoinCapTimeout,
		RetryMax: cfg.CoinCapRetryMax,
	}, keys, rateMgr)

	var notifier publisher.Notifier
	if !opts.SkipEvents {
		notifier, err = publisher.FromConfig(cfg, logger.Named("publisher"))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	coordOpts := []assetsync.Option{}
	if notifier != nil {
		coordOpts = append(coordOpts, assetsync.WithNotifier(notifier))
	}
	coord := assetsync.NewCoordinator(logger.Named("assetsync"), remote, st, st, coordOpts...)

	logger.Info("app.bootstrapped",
		zap.String("store", cfg.StoreDriver),
		zap.String("events", cfg.EventsDriver),
		zap.String("coincap", cfg.CoinCapBaseURL))

	return &App{
		Config:      cfg,
		Store:       st,
		Notifier:    notifier,
		Remote:      remote,
		Coordinator: coord,
	}, nil
}

// OpenStore opens the backend named by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	switch strings.ToLower(cfg.StoreDriver) {
	case "", config.StoreSQLite:
		st, err := store.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StorePostgres:
		logger.Info("store.postgres.connecting", zap.String("dsn", utils.MaskDSN(cfg.DatabaseURL)))
		st, err := store.NewPostgres(ctx, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreRedis:
		st, err := store.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.RedisPrefix, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newKeySource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (coincap.KeySource, error) {
	if cfg.CoinCapAPIKey != "" {
		logger.Info("coincap.api_key.static", zap.String("key", utils.MaskSecret(cfg.CoinCapAPIKey)))
		return coincap.StaticKey(cfg.CoinCapAPIKey), nil
	}
	if cfg.CoinCapAPIKeySecret == "" {
		logger.Warn("coincap.api_key.missing")
		return coincap.StaticKey(""), nil
	}

	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS Secrets Manager provider: %w", err)
	}
	return internalsecrets.NewAPIKeyResolver(
		logger.Named("secrets"),
		"",
		cfg.CoinCapAPIKeySecret,
		provider,
		secrets.NewCache[string](cfg.SecretCacheTTL),
	), nil
}

// HealthChecks lists the probes served on /health.
func (a *App) HealthChecks() map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{"store": a.Store}
	if a.Notifier != nil {
		checks["events"] = a.Notifier
	}
	return checks
}

func (a *App) Close() error {
	if a.Notifier != nil {
		if err := a.Notifier.Close(); err != nil {
			return err
		}
	}
	return a.Store.Close()
}
