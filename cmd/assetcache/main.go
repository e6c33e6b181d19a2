package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/assetcache/internal/api"
	"github.com/Checker-Finance/assetcache/internal/app"
	"github.com/Checker-Finance/assetcache/pkg/config"
	"github.com/Checker-Finance/assetcache/pkg/logger"
	"github.com/Checker-Finance/assetcache/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)
	if cfg.StoreDriver == config.StorePostgres {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Store, CoinCap client, notifier, coordinator ---
	a, err := app.Bootstrap(ctx, cfg, logger.L(), app.Options{})
	if err != nil {
		logg.Fatalw("failed to bootstrap", "error", err)
	}

	// --- Fiber HTTP Server ---
	server := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPReadTimeout,
		WriteTimeout:          cfg.HTTPWriteTimeout,
		IdleTimeout:           cfg.HTTPIdleTimeout,
		BodyLimit:             cfg.HTTPBodyLimit,
		DisableStartupMessage: cfg.Env != "dev",
	})
	handler := api.NewAssetHandler(logger.Component("api"), a.Coordinator)
	api.RegisterRoutes(server, a.HealthChecks(), handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := server.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[assetcache] running",
		"env", cfg.Env,
		"store", cfg.StoreDriver,
		"events", cfg.EventsDriver)

	<-ctx.Done()
	logg.Info("shutting down [assetcache]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := a.Close(); err != nil {
		logg.Warnw("app.close_failed", "error", err)
	}
}
