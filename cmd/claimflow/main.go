package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendis/claimflow/internal/actors"
	"github.com/rendis/claimflow/internal/logging"
	"github.com/rendis/claimflow/internal/orchestrator"
	"github.com/rendis/claimflow/internal/scheduler"
	"github.com/rendis/claimflow/internal/session"
	"github.com/rendis/claimflow/internal/store"
	"github.com/rendis/claimflow/internal/tools"
	"github.com/rendis/claimflow/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "claimflow:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening case registry: %w", err)
	}
	defer registry.Close()
	if err := registry.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating case registry: %w", err)
	}
	events := store.NewEventLog(registry)

	sessions, err := session.NewFileStore(cfg.SessionDir, logger)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	defs, err := actors.LoadDefinitions(cfg.ActorsConfig)
	if err != nil {
		return err
	}
	actorRegistry, err := actors.NewRegistry(defs)
	if err != nil {
		return err
	}

	invoker := NewSubprocessInvoker(cfg.ActorCommand, logger)

	orchCfg := orchestrator.Config{
		MaxRounds:         cfg.MaxRounds,
		StallThreshold:    cfg.StallThreshold,
		EnableHumanInLoop: cfg.EnableHumanInLoop,
		ActorTimeout:      time.Duration(cfg.ActorTimeoutSecs) * time.Second,
		TraceDir:          cfg.TraceDir,
	}
	build := func() (*orchestrator.Orchestrator, error) {
		return orchestrator.New(orchCfg, actorRegistry, invoker, sessions, logger,
			orchestrator.WithAuditor(registry))
	}
	runner := orchestrator.NewRunner(build, cfg.PoolSize)
	defer runner.Shutdown()

	sweeper, err := scheduler.NewSweeper(sessions, runner.Guard(), registry,
		cfg.SLASchedule, time.Duration(cfg.SLADeadlineHours)*time.Hour, logger)
	if err != nil {
		return fmt.Errorf("configuring sla sweeper: %w", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting sla sweeper: %w", err)
	}
	defer sweeper.Stop()

	repo := tools.NewRepository(cfg.DatasetsDir, cfg.SubmissionDir, logger)
	lookups := mcp.NewLookups(repo, nil, "", logger)

	srv := mcp.NewClaimsServer(mcp.ClaimsServerDeps{
		Runner:   runner,
		Sessions: sessions,
		Registry: registry,
		Events:   events,
		Lookups:  lookups,
		Logger:   logger,
	})

	logger.Info("claimflow server starting",
		"db_path", cfg.DBPath,
		"session_dir", cfg.SessionDir,
		"pool_size", cfg.PoolSize,
		"actors", actorRegistry.Len())

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	logger.Info("claimflow server stopped")
	return nil
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
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
