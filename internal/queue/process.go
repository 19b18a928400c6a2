package queue

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/trackgraph/pkg/graph"
	"github.com/OFFIS-RIT/trackgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Processor builds the record of one event.
type Processor interface {
	Process(ctx context.Context, eventID int64) graph.Outcome
}

// Leaser runs fn while holding the lease of an event.
type Leaser interface {
	WithEventLease(ctx context.Context, eventID int64, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Recorder stores the outcome of an event.
type Recorder interface {
	RecordOutcome(ctx context.Context, o graph.Outcome) error
}

// EventWorker consumes event messages. Leases and Ledger are optional.
type EventWorker struct {
	Builder      Processor
	Channel      Channel
	Queue        string
	Leases       Leaser
	LeaseOptions leaselock.Options
	Ledger       Recorder
}

// Handle processes one delivery and acks, retries or dead-letters it.
func (w *EventWorker) Handle(ctx context.Context, msg amqp091.Delivery) graph.Outcome {
	eventID, err := ParseEventMessage(msg.Body)
	if err != nil {
		logger.Error("[Queue] Dropping malformed message", "queue", w.Queue, "err", err)
		HandleFailure(ctx, w.Channel, msg, w.Queue, false)
		return graph.Outcome{Status: graph.StatusFailed, Err: err}
	}

	outcome := w.process(ctx, eventID)

	if w.Ledger != nil && outcome.Status != graph.StatusCancelled {
		if err := w.Ledger.RecordOutcome(ctx, outcome); err != nil {
			logger.Warn("[Queue] Failed to record outcome", "event_id", eventID, "err", err)
		}
	}

	switch outcome.Status {
	case graph.StatusProcessed, graph.StatusSkipped:
		if err := msg.Ack(false); err != nil {
			logger.Error("[Queue] Failed to ack message", "event_id", eventID, "err", err)
		}
		logger.Info("[Queue] Event done", "event_id", eventID, "status", outcome.Status, "duration", outcome.Duration)
	case graph.StatusCancelled:
		_ = msg.Nack(false, true)
	default:
		logger.Error("[Queue] Event failed", "event_id", eventID, "err", outcome.Err)
		HandleFailure(ctx, w.Channel, msg, w.Queue, outcome.Retryable())
	}

	return outcome
}

func (w *EventWorker) process(ctx context.Context, eventID int64) graph.Outcome {
	if w.Leases == nil {
		return w.Builder.Process(ctx, eventID)
	}

	start := time.Now()
	var outcome graph.Outcome
	err := w.Leases.WithEventLease(ctx, eventID, w.LeaseOptions, func(ctx context.Context) error {
		outcome = w.Builder.Process(ctx, eventID)
		return nil
	})
	switch {
	case err == nil:
		return outcome
	case errors.Is(err, context.Canceled):
		return graph.Outcome{EventID: eventID, Status: graph.StatusCancelled, Err: err, Duration: time.Since(start)}
	default:
		// a busy lease means another worker has the event, try again later
		return graph.Outcome{EventID: eventID, Status: graph.StatusFailed, Err: err, Duration: time.Since(start)}
	}
}
