// Command aiviz serves the chart-config and insight generation API backed by
// a DashScope-compatible model endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/aiviz/internal/config"
	"github.com/kbukum/aiviz/internal/credential"
	"github.com/kbukum/aiviz/internal/generate"
	"github.com/kbukum/aiviz/internal/handler"
	"github.com/kbukum/aiviz/internal/logger"
	"github.com/kbukum/aiviz/internal/observability"
	"github.com/kbukum/aiviz/internal/quota"
	"github.com/kbukum/aiviz/internal/qwen"
	"github.com/kbukum/aiviz/internal/server"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "aiviz:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Version != "" {
		version = cfg.Version
	}

	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Init(ctx, cfg.Observability, cfg.Name, version)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	cfg.Qwen.OnRetry = func(int) { metrics.RecordUpstreamRetry(context.Background()) }
	invoker := qwen.New(cfg.Qwen, log)
	ledger := quota.New(cfg.Quota, log)
	resolver := credential.NewResolver(cfg.Qwen.APIKey)
	identity := credential.NewIdentityResolver(cfg.Auth.JWTSecret)
	orchestrator := generate.New(resolver, ledger, invoker, metrics, log)

	srv := server.New(cfg.Server, log)
	handler.New(orchestrator, identity, version).Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("aiviz ready", map[string]interface{}{
		"addr":    srv.Addr(),
		"model":   cfg.Qwen.Model,
		"version": version,
	})

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("telemetry shutdown failed")
	}

	log.Info("aiviz stopped")
	return nil
}
