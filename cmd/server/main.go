package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"rosterlink/internal/app"
	"rosterlink/internal/platform/config"
	"rosterlink/internal/platform/httpserver"
	"rosterlink/internal/platform/logger"
	"rosterlink/internal/platform/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Error("shutdown cleanup failed", "error", err)
		}
	}()

	router := a.Router(metrics.New(), prometheus.DefaultGatherer)
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting rosterlink",
		"addr", cfg.Server.Addr,
		"plan", cfg.Plan.Path,
		"providers", a.Registry.IDs(),
		"audit_sink", cfg.AuditSink(),
	)
	if err := httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log); err != nil {
		log.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
}
