package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/trackgraph/pkg/store"
)

// FSRecordStore keeps one file per record in a local directory.
type FSRecordStore struct {
	root string
}

// NewFSRecordStore creates the directory if needed and returns a store
// writing into it.
func NewFSRecordStore(dir string) (*FSRecordStore, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FSRecordStore{root: root}, nil
}

func (s *FSRecordStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid record key %q", key)
	}
	return filepath.Join(s.root, key), nil
}

// Exists reports whether a record file exists for key.
func (s *FSRecordStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Put writes the record to a temporary file and renames it into place, so
// readers never observe a partially written record.
func (s *FSRecordStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move record into place: %w", err)
	}
	return nil
}

// Get reads the record stored under key.
func (s *FSRecordStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return data, err
}
