package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flowmatic/flowmatic/internal/definitions"
	"github.com/flowmatic/flowmatic/internal/engine"
	"github.com/flowmatic/flowmatic/internal/ledger"
	"github.com/flowmatic/flowmatic/internal/logging"
	"github.com/flowmatic/flowmatic/internal/scheduler"
	"github.com/flowmatic/flowmatic/internal/tools"
	"github.com/flowmatic/flowmatic/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "flowmatic:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.DefinitionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	led, err := ledger.NewLibSQLLedger("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()
	if err := led.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}

	router := tools.NewRouter()
	if err := tools.RegisterBuiltins(router, tools.BuiltinConfig{
		CRM:        tools.HTTPConfig{BaseURL: cfg.CRMBaseURL, APIKey: cfg.CRMAPIKey},
		Vision:     tools.HTTPConfig{BaseURL: cfg.VisionBaseURL, APIKey: cfg.VisionAPIKey},
		Quickbooks: tools.HTTPConfig{BaseURL: cfg.QuickbooksBaseURL, APIKey: cfg.QuickbooksAPIKey},
		Notify:     tools.HTTPConfig{BaseURL: cfg.NotifyBaseURL, APIKey: cfg.NotifyAPIKey},
		Logger:     logger,
	}); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	defs := definitions.NewStore(cfg.DefinitionsDir, router, logger)
	report, err := defs.Reload(ctx)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	logger.Info("definitions loaded",
		slog.Int("loaded", len(report.Loaded)),
		slog.Int("rejected", len(report.Rejected)))
	if len(report.Rejected) > 0 {
		logger.Warn("some definitions were rejected", slog.String("detail", report.Summary()))
	}

	eng := engine.New(defs, router, led, logger, engine.Options{
		PoolSize:      cfg.PoolSize,
		RetryAttempts: cfg.RetryAttempts,
	})
	defer eng.Shutdown()

	sched := scheduler.NewScheduler(defs, eng, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := mcp.NewFlowmaticServer(mcp.FlowmaticServerDeps{
		Engine: eng,
		Defs:   defs,
		Logger: logger,
	})

	logger.Info("flowmatic serving on stdio",
		slog.String("db", cfg.DBPath),
		slog.String("definitions", cfg.DefinitionsDir),
		slog.Int("tools", router.Count()),
		slog.Int("workflows", defs.Count()))

	return srv.Serve(ctx)
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
	// Logs go to stderr; stdout carries the MCP stdio transport.
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
