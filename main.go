package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/procureflow/agent/config"
	"github.com/procureflow/agent/internal/adapter/backend"
	"github.com/procureflow/agent/internal/adapter/interpret"
	"github.com/procureflow/agent/internal/engine"
	"github.com/procureflow/agent/internal/intent"
	"github.com/procureflow/agent/internal/policy"
	"github.com/procureflow/agent/internal/resolver"
	"github.com/procureflow/agent/internal/service"
	"github.com/procureflow/agent/internal/store"
	"github.com/procureflow/agent/internal/stream"
	transport "github.com/procureflow/agent/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	logger.Info("starting agent",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"backend", cfg.BackendURL)

	// Store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Intent catalog
	registry := intent.DefaultRegistry()

	// Understanding adapter
	interpreter := interpret.NewInterpreter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)

	// Backend client
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout)

	// Policy gate
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Execution + streaming
	broadcaster := stream.NewBroadcaster(db, logger)
	eng := engine.New(db, backendClient, registry, broadcaster, logger)
	res := resolver.New(interpreter, registry, cfg.MaxClarifyRounds, logger)

	svc := service.New(db, res, registry, policyEngine, eng, cfg, logger)
	server := transport.NewServer(svc, broadcaster)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("agent started", "port", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("agent stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
