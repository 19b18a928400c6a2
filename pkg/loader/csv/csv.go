package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
	"github.com/OFFIS-RIT/trackgraph/pkg/loader"
)

// ErrMissingColumn is returned when a raw table lacks a required column.
var ErrMissingColumn = errors.New("required column missing")

// ErrEmptyCell is returned when a required integer column has an empty cell.
var ErrEmptyCell = errors.New("required cell empty")

var eventFilePattern = regexp.MustCompile(`^event(\d+)-hits\.csv$`)

// EventReader reads events stored as one CSV file per raw table:
// event<id>-hits.csv, event<id>-tubes.csv, event<id>-particles.csv and
// event<id>-truth.csv.
type EventReader struct {
	files loader.FileLoader
}

// NewEventReader creates an EventReader reading through files.
func NewEventReader(files loader.FileLoader) *EventReader {
	return &EventReader{files: files}
}

// LoadEvent reads and parses the raw tables of one event.
func (r *EventReader) LoadEvent(ctx context.Context, eventID int64, readTruth bool) (*common.RawEvent, error) {
	ev := &common.RawEvent{EventID: eventID}

	t, err := r.table(ctx, eventID, "hits")
	if err != nil {
		return nil, err
	}
	if ev.Hits, err = parseHits(t); err != nil {
		return nil, fmt.Errorf("hits of event %d: %w", eventID, err)
	}

	if t, err = r.table(ctx, eventID, "tubes"); err != nil {
		return nil, err
	}
	if ev.Tubes, err = parseTubes(t); err != nil {
		return nil, fmt.Errorf("tubes of event %d: %w", eventID, err)
	}

	if !readTruth {
		return ev, nil
	}

	if t, err = r.table(ctx, eventID, "particles"); err != nil {
		return nil, err
	}
	if ev.Particles, err = parseParticles(t); err != nil {
		return nil, fmt.Errorf("particles of event %d: %w", eventID, err)
	}

	if t, err = r.table(ctx, eventID, "truth"); err != nil {
		return nil, err
	}
	if ev.Truth, err = parseTruth(t); err != nil {
		return nil, fmt.Errorf("truth of event %d: %w", eventID, err)
	}

	return ev, nil
}

// ListEvents returns the identifiers of all events that have a hits file,
// in ascending order.
func (r *EventReader) ListEvents(ctx context.Context) ([]int64, error) {
	names, err := r.files.List(ctx, "event")
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, name := range names {
		m := eventFilePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *EventReader) table(ctx context.Context, eventID int64, name string) (*table, error) {
	content, err := r.files.ReadFile(ctx, loader.EventFileName(eventID, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of event %d: %w", name, eventID, err)
	}
	t, err := parseTable(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s of event %d: %w", name, eventID, err)
	}
	return t, nil
}

// table is a parsed CSV file addressed by column name.
type table struct {
	columns map[string]int
	rows    [][]string
}

func parseTable(content []byte) (*table, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, err
	}

	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[strings.TrimSpace(name)] = i
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

func (t *table) require(names ...string) error {
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return nil
}

// cell returns the trimmed value of column name in row, or "" when the
// column does not exist or the row is short.
func (t *table) cell(row []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) int(row []string, line int, name string) (int64, error) {
	v := t.cell(row, name)
	if v == "" {
		return 0, fmt.Errorf("row %d column %s: %w", line, name, ErrEmptyCell)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// identifiers are sometimes written as floats, e.g. "3.0"
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("row %d column %s: %w", line, name, err)
		}
		if f < -(1<<63) || f >= 1<<63 {
			return 0, fmt.Errorf("row %d column %s: %w", line, name, strconv.ErrRange)
		}
		n = int64(f)
	}
	return n, nil
}

func (t *table) float(row []string, line int, name string) (float64, error) {
	v := t.cell(row, name)
	if v == "" {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d column %s: %w", line, name, err)
	}
	return f, nil
}

// parser accumulates the first conversion error of a row so that the field
// assignments stay readable.
type parser struct {
	t    *table
	row  []string
	line int
	err  error
}

func (p *parser) int(name string) int64 {
	if p.err != nil {
		return 0
	}
	n, err := p.t.int(p.row, p.line, name)
	p.err = err
	return n
}

// optInt reads an optional integer column. Empty cells and absent columns
// read as 0.
func (p *parser) optInt(name string) int64 {
	if p.t.cell(p.row, name) == "" {
		return 0
	}
	return p.int(name)
}

func (p *parser) float(name string) float64 {
	if p.err != nil {
		return 0
	}
	f, err := p.t.float(p.row, p.line, name)
	p.err = err
	return f
}

func (p *parser) particle(name string) common.ParticleRef {
	if p.t.cell(p.row, name) == "" {
		return common.ParticleRef{}
	}
	return common.Particle(p.int(name))
}

func parseHits(t *table) ([]common.HitRecord, error) {
	if err := t.require("hit_id", "x", "y", "z", "layer_id"); err != nil {
		return nil, err
	}
	out := make([]common.HitRecord, 0, len(t.rows))
	for i, row := range t.rows {
		p := parser{t: t, row: row, line: i + 1}
		h := common.HitRecord{
			HitID:    p.int("hit_id"),
			X:        p.float("x"),
			Y:        p.float("y"),
			Z:        p.float("z"),
			VolumeID: p.optInt("volume_id"),
			LayerID:  p.int("layer_id"),
			ModuleID: p.optInt("module_id"),
			SectorID: p.optInt("sector_id"),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, h)
	}
	return out, nil
}

func parseTubes(t *table) ([]common.TubeRecord, error) {
	if err := t.require("hit_id", "isochrone", "skewed"); err != nil {
		return nil, err
	}
	out := make([]common.TubeRecord, 0, len(t.rows))
	for i, row := range t.rows {
		p := parser{t: t, row: row, line: i + 1}
		tube := common.TubeRecord{
			HitID:     p.int("hit_id"),
			Isochrone: p.float("isochrone"),
			Skewed:    p.int("skewed"),
			SectorID:  p.optInt("sector_id"),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, tube)
	}
	return out, nil
}

func parseParticles(t *table) ([]common.ParticleRecord, error) {
	if err := t.require("particle_id", "vx", "vy", "vz", "pdgcode"); err != nil {
		return nil, err
	}
	out := make([]common.ParticleRecord, 0, len(t.rows))
	for i, row := range t.rows {
		p := parser{t: t, row: row, line: i + 1}
		particle := common.ParticleRecord{
			ParticleID: p.int("particle_id"),
			VX:         p.float("vx"),
			VY:         p.float("vy"),
			VZ:         p.float("vz"),
			PDGCode:    p.int("pdgcode"),
			NHits:      p.optInt("nhits"),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, particle)
	}
	return out, nil
}

func parseTruth(t *table) ([]common.TruthRecord, error) {
	if err := t.require("hit_id", "particle_id", "tpx", "tpy", "tpz"); err != nil {
		return nil, err
	}
	out := make([]common.TruthRecord, 0, len(t.rows))
	for i, row := range t.rows {
		p := parser{t: t, row: row, line: i + 1}
		rec := common.TruthRecord{
			HitID:    p.int("hit_id"),
			Particle: p.particle("particle_id"),
			TPX:      p.float("tpx"),
			TPY:      p.float("tpy"),
			TPZ:      p.float("tpz"),
			TT:       p.float("tT"),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, rec)
	}
	return out, nil
}
