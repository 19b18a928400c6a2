package store

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// Encode serializes a labeled graph. The body is gob encoded, which keeps
// NaN values intact, and zstd compressed.
func Encode(g *common.LabeledGraph) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(g); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*common.LabeledGraph, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var g common.LabeledGraph
	if err := gob.NewDecoder(zr).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &g, nil
}
