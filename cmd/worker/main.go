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
	"github.com/OFFIS-RIT/trackgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
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

	// logger
	hostname, _ := os.Hostname()
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	builder, err := cfg.NewBuilder(ctx)
	if err != nil {
		logger.Fatal("Could not create graph builder", "err", err)
	}

	worker := &queue.EventWorker{
		Builder: builder,
		Queue:   queue.EventQueue,
		LeaseOptions: leaselock.Options{
			TTL:         5 * time.Minute,
			TokenPrefix: hostname + "-",
		},
	}

	// Init pgx client
	if cfg.DatabaseURL != "" {
		pgConn, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()

		leases := leaselock.New(pgConn)
		if err := leases.EnsureSchema(ctx); err != nil {
			logger.Fatal("Unable to prepare lease table", "err", err)
		}
		ledger := timing.New(pgConn)
		if err := ledger.EnsureSchema(ctx); err != nil {
			logger.Fatal("Unable to prepare outcome table", "err", err)
		}
		worker.Leases = leases
		worker.Ledger = ledger
	}

	// Init rabbitmq
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
	worker.Channel = ch

	// one unacked event per worker process
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		queue.EventQueue,
		fmt.Sprintf("%s_consumer_%s", queue.EventQueue, hostname),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.EventQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.EventQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.EventQueue)
				return
			}
			startTime := time.Now()
			// let the event in flight finish before shutting down
			outcome := worker.Handle(context.WithoutCancel(ctx), msg)

			processingDuration := time.Since(startTime)
			hours := int(processingDuration.Hours())
			minutes := int(processingDuration.Minutes()) % 60
			seconds := int(processingDuration.Seconds()) % 60
			logger.Info(
				"Processing time",
				"event_id", outcome.EventID,
				"status", outcome.Status,
				"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
			)
			logger.Debug("Waiting for next message")
		}
	}
}
