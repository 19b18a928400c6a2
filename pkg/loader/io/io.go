package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/trackgraph/pkg/loader"
)

// IOFileLoader loads raw event files directly from a local directory with
// caching.
type IOFileLoader struct {
	root  string
	cache *loader.Cache
}

// NewIOFileLoader creates a new filesystem-based file loader rooted at dir.
func NewIOFileLoader(dir string, cacheEntries int) (*IOFileLoader, error) {
	cache, err := loader.NewCache(cacheEntries)
	if err != nil {
		return nil, err
	}
	return &IOFileLoader{
		root:  dir,
		cache: cache,
	}, nil
}

// ReadFile reads the file content from the filesystem. Results are cached.
func (l *IOFileLoader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	path := filepath.Join(l.root, name)
	return l.cache.Get(ctx, path, func(ctx context.Context) ([]byte, error) {
		content, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", loader.ErrNotFound, path)
		}
		return content, err
	})
}

// List returns the sorted names of the regular files in the root directory
// that start with prefix.
func (l *IOFileLoader) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
