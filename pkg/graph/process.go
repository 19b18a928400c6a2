package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OFFIS-RIT/trackgraph/internal/util"
	"github.com/OFFIS-RIT/trackgraph/pkg/common"
	"github.com/OFFIS-RIT/trackgraph/pkg/edges"
	"github.com/OFFIS-RIT/trackgraph/pkg/hits"
	"github.com/OFFIS-RIT/trackgraph/pkg/logger"
	"github.com/OFFIS-RIT/trackgraph/pkg/store"
)

var tracer = otel.Tracer("github.com/OFFIS-RIT/trackgraph/pkg/graph")

// stage runs fn inside a child span named after the stage.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// checkConfig rejects option combinations that can never produce a record.
func (b *Builder) checkConfig() error {
	if b.opts.InputEdges == "" {
		return nil
	}
	if err := edges.ValidateInputStrategy(b.opts.InputEdges); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if len(b.opts.truthStrategies()) == 0 {
		return fmt.Errorf("%w: %w", ErrConfig, ErrNoTrueEdges)
	}
	return nil
}

// Process builds and stores the record of one event. Errors are reported in
// the returned Outcome, never as a panic or a batch failure.
func (b *Builder) Process(ctx context.Context, eventID int64) Outcome {
	out := Outcome{EventID: eventID}
	done := out.start()

	ctx, span := tracer.Start(ctx, "graph.Process", trace.WithAttributes(attribute.Int64("event.id", eventID)))
	defer span.End()

	key := RecordKey(eventID)

	if !b.opts.Overwrite {
		exists, err := b.store.Exists(ctx, key)
		if err != nil {
			return done(StatusFailed, fmt.Errorf("%w: %w", ErrStore, err))
		}
		if exists {
			logger.Debug("[Graph] Record exists, skipping", "event_id", eventID)
			span.SetAttributes(attribute.Bool("event.skipped", true))
			return done(StatusSkipped, nil)
		}
	}

	if err := b.checkConfig(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return done(StatusFailed, err)
	}

	record, err := b.build(ctx, eventID, &out)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return done(StatusFailed, err)
	}

	err = stage(ctx, "graph.Store", func(ctx context.Context) error {
		data, err := store.Encode(record)
		if err != nil {
			return err
		}
		return util.RetryErrWithContext(ctx, b.maxRetries, b.backoff, func(ctx context.Context) error {
			return b.store.Put(ctx, key, data)
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return done(StatusFailed, fmt.Errorf("%w: %w", ErrStore, err))
	}

	return done(StatusProcessed, nil)
}

// build runs the assembly pipeline of one event and fills the counters of
// out along the way.
func (b *Builder) build(ctx context.Context, eventID int64, out *Outcome) (*common.LabeledGraph, error) {
	var raw *common.RawEvent
	err := stage(ctx, "graph.Load", func(ctx context.Context) error {
		var err error
		raw, err = b.source.LoadEvent(ctx, eventID, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}

	var table *common.HitTable
	err = stage(ctx, "graph.Assemble", func(ctx context.Context) error {
		var err error
		table, err = hits.Assemble(raw, hits.Options{
			EventID:   eventID,
			Noise:     b.opts.Noise,
			Skewed:    b.opts.Skewed,
			SelectPDG: b.opts.SelectPDG,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}
	out.Hits = table.Len()

	record := b.newRecord(table)

	_ = stage(ctx, "graph.TrueEdges", func(ctx context.Context) error {
		for _, strategy := range b.opts.truthStrategies() {
			build, _ := edges.TruthBuilderFor(strategy)
			record.TrueEdges[strategy] = build(table)
			if record.TruthStrategy == "" {
				record.TruthStrategy = strategy
			}
		}
		return nil
	})
	out.TrueEdges = make(map[common.TruthStrategy]int, len(record.TrueEdges))
	for strategy, e := range record.TrueEdges {
		out.TrueEdges[strategy] = e.Len()
	}

	if b.opts.InputEdges == "" {
		return record, nil
	}

	var input common.EdgeList
	err = stage(ctx, "graph.InputEdges", func(ctx context.Context) error {
		var err error
		input, err = edges.BuildInput(table, b.opts.InputEdges, edges.InputParams{
			Filtering:   b.opts.Filtering,
			MaxDeltaPhi: b.opts.MaxDeltaPhi,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	_ = stage(ctx, "graph.Reconcile", func(ctx context.Context) error {
		index, labels := edges.Reconcile(input, record.TrueEdges[record.TruthStrategy])
		record.EdgeIndex = &index
		record.YPID = labels
		return nil
	})
	out.InputEdges = record.EdgeIndex.Len()

	logger.Debug(
		"[Graph] Event assembled",
		"event_id", eventID,
		"hits", out.Hits,
		"input_edges", out.InputEdges,
		"truth", record.TruthStrategy,
	)

	return record, nil
}

// newRecord copies the node level columns of table into a record.
func (b *Builder) newRecord(t *common.HitTable) *common.LabeledGraph {
	n := t.Len()
	scale := b.opts.FeatureScale
	g := &common.LabeledGraph{
		EventID:   t.EventID,
		X:         make([][3]float32, n),
		PID:       make([]int64, n),
		PIDValid:  make([]bool, n),
		Layers:    make([]int64, n),
		HitID:     make([]int64, n),
		PT:        make([]float64, n),
		Vertex:    make([][3]float64, n),
		PDGCode:   make([]int64, n),
		PTheta:    make([]float64, n),
		PEta:      make([]float64, n),
		PPhi:      make([]float64, n),
		TrueEdges: make(map[common.TruthStrategy]common.EdgeList),
	}
	for i := range n {
		g.X[i] = [3]float32{
			float32(t.R[i] / scale[0]),
			float32(t.Phi[i] / scale[1]),
			float32(t.Isochrone[i] / scale[2]),
		}
		g.PID[i] = t.Particle[i].ID
		g.PIDValid[i] = t.Particle[i].Valid
		g.Layers[i] = t.LayerID[i]
		g.HitID[i] = t.HitID[i]
		g.PT[i] = t.PT[i]
		g.Vertex[i] = [3]float64{t.VX[i], t.VY[i], t.VZ[i]}
		g.PDGCode[i] = t.PDGCode[i]
		g.PTheta[i] = t.PTheta[i]
		g.PEta[i] = t.PEta[i]
		g.PPhi[i] = t.PPhi[i]
	}
	return g
}
