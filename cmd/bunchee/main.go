package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bunchee/internal/auth"
	"bunchee/internal/backend"
	"bunchee/internal/cache"
	"bunchee/internal/config"
	apphttp "bunchee/internal/http"
	"bunchee/internal/log"
	"bunchee/internal/services"
)

const statsCacheSize = 256

func main() {
	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, log.ComponentApp)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("Insecure configuration", "warning", w)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Failed to load timezone", log.FieldError, err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx := context.Background()
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	a := auth.New(cfg.SecretKey, cfg.SessionTTL)
	if err := a.EnsureAdmin(ctx, res.Store, cfg.AdminPassword); err != nil {
		logger.Error("Failed to seed admin user", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	stats := cache.NewStats(statsCacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(stats)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	opts := []services.Option{services.WithStatsCache(stats)}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewLedgerService(res.Store, loc, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close ledger resources", log.FieldError, err)
		}
	}()

	now := svc.Now()
	if err := svc.Warm(ctx, now.Year(), int(now.Month())); err != nil {
		logger.Warn("Failed to warm stats cache", log.FieldError, err)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:        svc,
		Auth:          a,
		Users:         res.Store,
		Ready:         res.Ready,
		Logger:        logger,
		SecureCookies: cfg.SecureCookies,
		RateLimit:     cfg.RateLimit,
	})

	// Graceful shutdown handling
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting bunchee server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone,
		"amqp", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		caches.Stop()
		_ = svc.Close()
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
