package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/cablemap/internal/config"
	"github.com/JonMunkholm/cablemap/internal/convert"
	"github.com/JonMunkholm/cablemap/internal/core"
	"github.com/JonMunkholm/cablemap/internal/export"
	"github.com/JonMunkholm/cablemap/internal/logging"
	"github.com/JonMunkholm/cablemap/internal/metrics"
	"github.com/JonMunkholm/cablemap/internal/store"
	"github.com/JonMunkholm/cablemap/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration", "config", cfg.String())

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"xlsx_enabled", cfg.Converter.RemoteURL != "",
	)

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		Driver: cfg.Database.Driver,
		URL:    cfg.Database.URL,
		Pool: store.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		},
		Redis: store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		},
	})
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("store ready", "driver", cfg.Database.Driver)

	router := core.NewRouter()
	convert.RegisterAll(router, convert.Options{
		RemoteURL:     cfg.Converter.RemoteURL,
		RemoteTimeout: cfg.Converter.Timeout,
	})
	for _, f := range router.Formats() {
		slog.Debug("format registered", "format", f.Format, "kind", f.Kind)
	}

	m := metrics.New()
	service := core.NewService(core.Collaborators{
		Router:    router,
		Persister: st,
		Store:     st,
		Exporters: export.All(),
		Limiter:   core.NewConversionLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		Observer:  m,
	}, core.WorkflowConfig{
		ProgressTick: cfg.Session.ProgressTick,
		ProgressCap:  cfg.Session.ProgressCap,
	})

	server := web.NewServer(service, st, m, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionReaper(jobCtx, core.ReaperConfig{
		IdleTimeout:   cfg.Session.IdleTimeout,
		CheckInterval: cfg.Session.ReapInterval,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.ConversionStatus(); status.Active > 0 {
			slog.Info("waiting for conversions to complete", "active", status.Active)
			if err := service.WaitForConversions(shutdownCtx); err != nil {
				slog.Warn("conversions did not complete in time", "error", err)
			} else {
				slog.Info("all conversions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		cancelJobs()
		st.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
