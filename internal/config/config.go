// Package config reads the environment of the trackgraph commands and wires
// the event source, the record store and the graph builder from it.
package config

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/trackgraph/internal/storage"
	"github.com/OFFIS-RIT/trackgraph/internal/util"
	"github.com/OFFIS-RIT/trackgraph/pkg/graph"
	"github.com/OFFIS-RIT/trackgraph/pkg/loader"
	"github.com/OFFIS-RIT/trackgraph/pkg/loader/csv"
	ioloader "github.com/OFFIS-RIT/trackgraph/pkg/loader/io"
	s3loader "github.com/OFFIS-RIT/trackgraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/trackgraph/pkg/store"
	fsstore "github.com/OFFIS-RIT/trackgraph/pkg/store/fs"
	s3store "github.com/OFFIS-RIT/trackgraph/pkg/store/s3"
)

// Config is the complete runtime configuration. Exactly one of InputDir and
// InputBucket and one of OutputDir and OutputBucket must be set.
type Config struct {
	Options  graph.Options
	Parallel int `validate:"gte=1"`

	InputDir     string `validate:"required_without=InputBucket"`
	InputBucket  string
	InputPrefix  string
	OutputDir    string `validate:"required_without=OutputBucket"`
	OutputBucket string
	OutputPrefix string
	CacheEntries int

	EventIDs     []int64
	PrepareMode  string  `validate:"oneof=local enqueue"`
	EnqueueRate  float64 `validate:"gte=0"`
	WriteRetries int     `validate:"gte=0"`

	DatabaseURL string
	Debug       bool
	LogFormat   string `validate:"omitempty,oneof=text json logfmt"`

	s3 *s3.Client
}

// FromEnv reads the configuration from the environment.
func FromEnv() (*Config, error) {
	scale, err := util.GetEnvFloats("FEATURE_SCALE", graph.DefaultFeatureScale[:])
	if err != nil {
		return nil, err
	}
	if len(scale) != 3 {
		return nil, fmt.Errorf("FEATURE_SCALE needs 3 values, got %d", len(scale))
	}
	pdg, err := util.GetEnvInts("SELECT_PDG")
	if err != nil {
		return nil, err
	}
	ids, err := util.GetEnvInts("EVENT_IDS")
	if err != nil {
		return nil, err
	}

	c := &Config{
		Options: graph.Options{
			Layerwise:    util.GetEnvBool("LAYERWISE", true),
			Modulewise:   util.GetEnvBool("MODULEWISE", false),
			Orderwise:    util.GetEnvBool("ORDERWISE", false),
			TimeOrdered:  util.GetEnvBool("TIME_ORDERED", true),
			InputEdges:   util.GetEnvString("INPUT_EDGES", ""),
			Filtering:    util.GetEnvBool("FILTERING", false),
			MaxDeltaPhi:  util.GetEnvNumeric("MAX_DELTA_PHI", math.Pi/4),
			Noise:        util.GetEnvBool("NOISE", false),
			Skewed:       util.GetEnvBool("SKEWED", false),
			SelectPDG:    pdg,
			FeatureScale: [3]float64{scale[0], scale[1], scale[2]},
			Overwrite:    util.GetEnvBool("OVERWRITE", false),
		},
		Parallel: util.GetEnvInt("PARALLEL_EVENTS", 4),

		InputDir:     util.GetEnv("INPUT_DIR"),
		InputBucket:  util.GetEnv("INPUT_BUCKET"),
		InputPrefix:  util.GetEnv("INPUT_PREFIX"),
		OutputDir:    util.GetEnv("OUTPUT_DIR"),
		OutputBucket: util.GetEnv("OUTPUT_BUCKET"),
		OutputPrefix: util.GetEnv("OUTPUT_PREFIX"),
		CacheEntries: util.GetEnvInt("CACHE_ENTRIES", loader.DefaultCacheEntries),

		EventIDs:     ids,
		PrepareMode:  util.GetEnvString("PREPARE_MODE", "local"),
		EnqueueRate:  util.GetEnvNumeric("ENQUEUE_RATE", 0),
		WriteRetries: util.GetEnvInt("WRITE_RETRIES", 3),

		DatabaseURL: util.GetEnv("DATABASE_URL"),
		Debug:       util.GetEnvBool("DEBUG", false),
		LogFormat:   util.GetEnvString("LOG_FORMAT", "text"),
	}

	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) s3Client(ctx context.Context) (*s3.Client, error) {
	if c.s3 != nil {
		return c.s3, nil
	}
	client, err := storage.NewS3Client(ctx, storage.S3ClientParamsFromEnv())
	if err != nil {
		return nil, err
	}
	c.s3 = client
	return client, nil
}

// EventSource returns the CSV event reader over the configured input.
func (c *Config) EventSource(ctx context.Context) (loader.EventSource, error) {
	if c.InputBucket == "" {
		files, err := ioloader.NewIOFileLoader(c.InputDir, c.CacheEntries)
		if err != nil {
			return nil, err
		}
		return csv.NewEventReader(files), nil
	}
	client, err := c.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s3loader.NewS3FileLoader(s3loader.NewS3FileLoaderParams{
		Bucket:       c.InputBucket,
		Prefix:       c.InputPrefix,
		Client:       client,
		CacheEntries: c.CacheEntries,
	})
	if err != nil {
		return nil, err
	}
	return csv.NewEventReader(files), nil
}

// RecordStore returns the configured output store.
func (c *Config) RecordStore(ctx context.Context) (store.RecordStore, error) {
	if c.OutputBucket == "" {
		return fsstore.NewFSRecordStore(c.OutputDir)
	}
	client, err := c.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	return s3store.NewS3RecordStore(s3store.NewS3RecordStoreParams{
		Bucket: c.OutputBucket,
		Prefix: c.OutputPrefix,
		Client: client,
	}), nil
}

// NewBuilder wires source and store into a graph builder.
func (c *Config) NewBuilder(ctx context.Context) (*graph.Builder, error) {
	source, err := c.EventSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open event source: %w", err)
	}
	records, err := c.RecordStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return graph.NewBuilder(graph.NewBuilderParams{
		Source:     source,
		Store:      records,
		Options:    c.Options,
		Parallel:   c.Parallel,
		MaxRetries: c.WriteRetries,
	})
}
