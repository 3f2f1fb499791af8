// Command ingest is the chess ingestion CLI.
//
// Usage:
//
//	chess-ingest enqueue --platform chesscom --username YevgenChess
//	chess-ingest enqueue --platform lichess --username DrNykterstein
//	chess-ingest run --once
//	chess-ingest run --loop
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/db"
	"github.com/albapepper/chess-ingest/internal/ingest"
	"github.com/albapepper/chess-ingest/internal/ingestlog"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
	"github.com/albapepper/chess-ingest/internal/platform"
	"github.com/albapepper/chess-ingest/internal/platform/chesscom"
	"github.com/albapepper/chess-ingest/internal/platform/lichess"
	"github.com/albapepper/chess-ingest/internal/refresh"
	"github.com/albapepper/chess-ingest/internal/worker"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "chess-ingest",
		Short: "Chess.com / Lichess ingestion CLI",
	}

	root.AddCommand(enqueueCmd())
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// enqueue command
// --------------------------------------------------------------------------

func enqueueCmd() *cobra.Command {
	var platformFlag string
	var usernames []string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue seed jobs for one or more usernames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(func(ctx context.Context, cfg *config.Config, pool *db.Pool, processor *ingest.Processor) error {
				for _, username := range usernames {
					var err error
					switch platformFlag {
					case config.PlatformChesscom:
						err = processor.EnqueueSeedJobs(ctx, username)
					case config.PlatformLichess:
						err = processor.EnqueueLichessSeedJobs(ctx, username)
					default:
						err = fmt.Errorf("unsupported platform: %s", platformFlag)
					}
					if err != nil {
						return fmt.Errorf("enqueue seed jobs for %s: %w", username, err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&platformFlag, "platform", config.PlatformChesscom, "chesscom or lichess")
	cmd.Flags().StringArrayVar(&usernames, "username", nil, "username(s) to seed")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var once, runLoop bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDeps(func(ctx context.Context, cfg *config.Config, pool *db.Pool, processor *ingest.Processor) error {
				jobs := jobqueue.NewStore(pool.Pool, jobqueue.BackoffPolicy{Base: cfg.BaseBackoff, Max: cfg.MaxBackoff})
				loop := worker.New(jobs, processor, cfg, logger)

				if once || !runLoop {
					processed, err := loop.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !processed {
						logger.Info("no pending jobs")
					}
					return nil
				}

				go loop.RunSweeper(ctx)
				go refresh.Start(ctx, pool.Pool, jobs, cfg, logger)
				wake := worker.ListenForWakeups(ctx, cfg.DatabaseURL, logger)
				return loop.Run(ctx, wake)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process at most one job then exit")
	cmd.Flags().BoolVar(&runLoop, "loop", false, "run continuously with polling")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithDeps handles config loading, DB connection, platform adapter
// construction, and context cancellation shared by every subcommand.
func runWithDeps(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool, processor *ingest.Processor) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	sink := ingestlog.NewSink(pool.Pool, logger)
	chesscomCore := platform.NewClient(cfg.Chesscom.Timeout, cfg.Chesscom.UserAgent, 0, sink.Func())
	lichessCore := platform.NewClient(cfg.Lichess.Timeout, cfg.Lichess.UserAgent, 0, sink.Func())

	chesscomClient := chesscom.New(chesscomCore, cfg.Chesscom.BaseURL)
	lichessClient := lichess.New(lichessCore, cfg.Lichess.BaseURL)

	jobs := jobqueue.NewStore(pool.Pool, jobqueue.BackoffPolicy{Base: cfg.BaseBackoff, Max: cfg.MaxBackoff})
	processor := ingest.NewProcessor(pool.Pool, jobs, chesscomClient, lichessClient, cfg, logger)

	return fn(ctx, cfg, pool, processor)
}
