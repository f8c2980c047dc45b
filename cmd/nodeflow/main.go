package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/nodeflow/internal/editor"
	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/feeds"
	"github.com/rendis/nodeflow/internal/history"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/mcp"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := expressions.Default()
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	evaluator := engine.New(registry, logger)

	ed := editor.New(editor.Deps{
		Evaluator: evaluator,
		History:   history.NewManager(cfg.HistoryLimit),
		Hub:       hub,
		Logger:    logger,
	})

	validator, err := validation.NewGraphValidator()
	if err != nil {
		return err
	}

	feedScheduler := feeds.NewScheduler(ed, hub, logger)
	if cfg.FeedsEnabled {
		if err := feedScheduler.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = feedScheduler.Stop() }()
	}

	srv := mcp.NewFlowServer(mcp.FlowServerDeps{
		Editor:    ed,
		Validator: validator,
		Feeds:     feedScheduler,
		Hub:       hub,
		Logger:    logger,
	})

	notifier := mcp.NewNotifier(srv.MCPServer(), hub, logger)
	go func() {
		if err := notifier.Run(ctx); err != nil {
			logger.Error("notifier stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("nodeflow server starting",
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("feeds", cfg.FeedsEnabled),
	)
	return srv.Serve(ctx)
}

// newLogger builds the process logger: JSON on stderr (stdout carries the
// MCP transport) with correlation IDs injected from context.
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

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
