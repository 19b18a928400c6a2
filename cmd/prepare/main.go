package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/trackgraph/internal/config"
	"github.com/OFFIS-RIT/trackgraph/internal/queue"
	"github.com/OFFIS-RIT/trackgraph/internal/timing"
	"github.com/OFFIS-RIT/trackgraph/internal/util"
	"github.com/OFFIS-RIT/trackgraph/pkg/graph"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		Prefix: "prepare",
	})
	logger.Init(consoleLogger)

	ids := cfg.EventIDs
	if len(ids) == 0 {
		source, err := cfg.EventSource(ctx)
		if err != nil {
			logger.Fatal("Could not open event source", "err", err)
		}
		ids, err = source.ListEvents(ctx)
		if err != nil {
			logger.Fatal("Could not list events", "err", err)
		}
	}
	if len(ids) == 0 {
		logger.Warn("No events to prepare")
		return
	}
	logger.Info("Preparing events", "events", len(ids), "mode", cfg.PrepareMode)

	if cfg.PrepareMode == "enqueue" {
		enqueue(ctx, cfg, ids)
		return
	}

	var ledger *timing.Ledger
	if cfg.DatabaseURL != "" {
		pgConn, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()

		ledger = timing.New(pgConn)
		if err := ledger.EnsureSchema(ctx); err != nil {
			logger.Fatal("Unable to prepare outcome table", "err", err)
		}
		if eta, err := ledger.PredictBatchDuration(ctx, len(ids), cfg.Parallel); err != nil {
			logger.Warn("Could not predict batch duration", "err", err)
		} else if eta > 0 {
			logger.Info("Predicted batch duration", "duration", eta.Round(time.Second))
		}
	}

	builder, err := cfg.NewBuilder(ctx)
	if err != nil {
		logger.Fatal("Could not create graph builder", "err", err)
	}

	outcomes := builder.ProcessEvents(ctx, ids)
	for _, o := range outcomes {
		switch o.Status {
		case graph.StatusFailed:
			logger.Error("Event failed", "event_id", o.EventID, "err", o.Err)
		case graph.StatusSkipped:
			logger.Debug("Event skipped", "event_id", o.EventID)
		}
		if ledger != nil && o.Status != graph.StatusCancelled {
			if err := ledger.RecordOutcome(context.WithoutCancel(ctx), o); err != nil {
				logger.Warn("Could not record outcome", "event_id", o.EventID, "err", err)
			}
		}
	}

	summary := graph.Summarize(outcomes)
	logger.Info(
		"Preparation finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	if summary.Failed > 0 || summary.Cancelled > 0 {
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, cfg *config.Config, ids []int64) {
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.EventQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	limit := rate.Inf
	if cfg.EnqueueRate > 0 {
		limit = rate.Limit(cfg.EnqueueRate)
	}

	n, err := queue.EnqueueEvents(ctx, ch, ids, rate.NewLimiter(limit, 1))
	if err != nil {
		logger.Fatal("Enqueue stopped", "published", n, "events", len(ids), "err", err)
	}
	logger.Info("Events enqueued", "published", n, "queue", queue.EventQueue)
}
