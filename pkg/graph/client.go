package graph

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/trackgraph/internal/util"
	"github.com/OFFIS-RIT/trackgraph/pkg/common"
	"github.com/OFFIS-RIT/trackgraph/pkg/loader"
	"github.com/OFFIS-RIT/trackgraph/pkg/store"
)

var (
	// ErrSource marks failures caused by missing or malformed raw data.
	ErrSource = errors.New("source data error")
	// ErrConfig marks failures caused by the builder configuration. Retrying
	// an event that failed with ErrConfig cannot succeed.
	ErrConfig = errors.New("configuration error")
	// ErrStore marks failures of the record store.
	ErrStore = errors.New("record store error")
	// ErrNoTrueEdges is wrapped in ErrConfig when input edges are requested
	// but no true edge set is built to label them.
	ErrNoTrueEdges = errors.New("input edges requested without any true edge set")
)

// DefaultFeatureScale divides r, phi and isochrone before they are stored as
// node features.
var DefaultFeatureScale = [3]float64{100, math.Pi, 100}

// Options selects what is built for every event.
//
// Layerwise, Modulewise, Orderwise and TimeOrdered each enable one true edge
// set. InputEdges names the candidate strategy; an empty value builds no
// input edges and no labels. Noise and Skewed control hit selection, see
// hits.Options. Without Overwrite, events whose record already exists are
// skipped.
type Options struct {
	Layerwise   bool
	Modulewise  bool
	Orderwise   bool
	TimeOrdered bool

	InputEdges  string
	Filtering   bool
	MaxDeltaPhi float64 `validate:"gte=0"`

	Noise     bool
	Skewed    bool
	SelectPDG []int64

	FeatureScale [3]float64 `validate:"dive,ne=0"`
	Overwrite    bool
}

// truthStrategies returns the enabled true edge sets in precedence order.
func (o Options) truthStrategies() []common.TruthStrategy {
	enabled := map[common.TruthStrategy]bool{
		common.TruthLayerwise:   o.Layerwise,
		common.TruthModulewise:  o.Modulewise,
		common.TruthOrderwise:   o.Orderwise,
		common.TruthTimeOrdered: o.TimeOrdered,
	}
	var out []common.TruthStrategy
	for _, s := range common.TruthPrecedence {
		if enabled[s] {
			out = append(out, s)
		}
	}
	return out
}

// Builder turns raw events into labeled graph records.
//
// A Builder should be created using NewBuilder. It is safe for concurrent
// use; ProcessEvents runs up to Parallel events at the same time.
type Builder struct {
	source     loader.EventSource
	store      store.RecordStore
	opts       Options
	parallel   int
	maxRetries int
	backoff    util.Backoff
}

// NewBuilderParams defines the configuration parameters for creating a new
// Builder.
//
// Parallel controls how many events are processed concurrently and defaults
// to 1. MaxRetries bounds the attempts of a record write and defaults to 3.
type NewBuilderParams struct {
	Source     loader.EventSource `validate:"required"`
	Store      store.RecordStore  `validate:"required"`
	Options    Options
	Parallel   int `validate:"gte=0"`
	MaxRetries int `validate:"gte=0"`
	Backoff    util.Backoff
}

// NewBuilder creates and returns a new Builder.
//
// Example:
//
//	files, err := io.NewIOFileLoader("data/raw", 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	records, err := fs.NewFSRecordStore("data/processed")
//	if err != nil {
//		log.Fatal(err)
//	}
//	b, err := graph.NewBuilder(graph.NewBuilderParams{
//		Source:   csv.NewEventReader(files),
//		Store:    records,
//		Options:  graph.Options{Layerwise: true, InputEdges: edges.InputAll},
//		Parallel: 8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	outcomes := b.ProcessEvents(ctx, []int64{1, 2, 3})
func NewBuilder(params NewBuilderParams) (*Builder, error) {
	if params.Options.FeatureScale == ([3]float64{}) {
		params.Options.FeatureScale = DefaultFeatureScale
	}
	if err := validator.New().Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 1
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := params.Backoff
	if backoff == (util.Backoff{}) {
		backoff = util.Backoff{Initial: 250 * time.Millisecond, Max: 4 * time.Second}
	}

	return &Builder{
		source:     params.Source,
		store:      params.Store,
		opts:       params.Options,
		parallel:   parallel,
		maxRetries: maxRetries,
		backoff:    backoff,
	}, nil
}

// RecordKey is the store key of the record of an event.
func RecordKey(eventID int64) string {
	return fmt.Sprintf("event%010d", eventID)
}
