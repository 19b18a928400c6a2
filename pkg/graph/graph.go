// Package graph assembles the labeled training graph of collision events:
// it loads the raw tables, builds the hit table and the requested edge sets,
// labels the candidate edges and stores one record per event.
package graph

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Status is the result class of one processed event.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome reports what happened to one event.
type Outcome struct {
	EventID  int64
	Status   Status
	Err      error
	Duration time.Duration

	Hits       int
	InputEdges int
	TrueEdges  map[common.TruthStrategy]int
}

// start returns a function that completes o with a status, an error and the
// time elapsed since start was called. Counters set on o in between are kept.
func (o *Outcome) start() func(Status, error) Outcome {
	begin := time.Now()
	return func(status Status, err error) Outcome {
		o.Status = status
		o.Err = err
		o.Duration = time.Since(begin)
		return *o
	}
}

// Retryable reports whether processing the event again may succeed.
func (o Outcome) Retryable() bool {
	return o.Status == StatusFailed && !errors.Is(o.Err, ErrConfig)
}

// ProcessEvents processes every event in ids with up to Parallel events in
// flight and returns one Outcome per id, in the order of ids.
//
// Events are independent: a failed event never stops its siblings. When ctx
// is cancelled no further events are started and the remaining ids are
// reported as cancelled; events already running are finished.
func (b *Builder) ProcessEvents(ctx context.Context, ids []int64) []Outcome {
	outcomes := make([]Outcome, len(ids))

	logger.Info("[Graph] Processing", "total_events", len(ids), "parallel", b.parallel)

	var eg errgroup.Group
	eg.SetLimit(b.parallel)
	for i, id := range ids {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{EventID: id, Status: StatusCancelled, Err: ctx.Err()}
			continue
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = Outcome{EventID: id, Status: StatusCancelled, Err: ctx.Err()}
				return nil
			}
			outcome := b.Process(context.WithoutCancel(ctx), id)
			if outcome.Status == StatusFailed {
				logger.Error("[Graph] Event failed", "event_id", id, "err", outcome.Err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = eg.Wait()

	s := Summarize(outcomes)
	logger.Info(
		"[Graph] Events processed",
		"processed", s.Processed,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"cancelled", s.Cancelled,
	)

	return outcomes
}

// Summary counts outcomes by status.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Cancelled int
	// Duration is the summed processing time of all events.
	Duration time.Duration
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
		s.Duration += o.Duration
	}
	return s
}
