package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityEngine/internal/config"
	"liquidityEngine/internal/matcher"
	"liquidityEngine/internal/replay"
	"liquidityEngine/internal/state"
	"liquidityEngine/internal/storage"
	"liquidityEngine/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "engine",
		Short:        "AMM liquidity engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a directive log through the engine",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input directive JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN (overrides JSONL output)")
	replayCmd.Flags().Int("batch-size", 500, "directives per output batch")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input directive log is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keeper := state.NewKeeper()
	engine := matcher.NewSequencer(keeper, logger)

	var sink storage.Storage
	var pg *postgres.Store
	if cfg.PGDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		sink = pg
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	runner := replay.NewRunner(replay.RunConfig{
		InputPath:         cfg.In,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, engine, sink, logger)

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("postgres", pg != nil),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	if pg != nil {
		if err := snapshotPools(ctx, keeper, pg, logger); err != nil {
			return fmt.Errorf("snapshot pools: %w", err)
		}
	}
	return nil
}

// snapshotPools persists the final curve and book state of every pool
// touched during the replay.
func snapshotPools(ctx context.Context, keeper *state.Keeper, pg *postgres.Store, logger *zap.Logger) error {
	curves, levels := replay.SnapshotPools(keeper)
	if err := pg.UpsertCurves(ctx, curves); err != nil {
		return err
	}
	if err := pg.UpsertLevels(ctx, levels); err != nil {
		return err
	}
	logger.Info("snapshot complete", zap.Int("pools", len(curves)), zap.Int("levels", len(levels)))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
