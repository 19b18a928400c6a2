package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record is stored under the key.
var ErrNotFound = errors.New("record not found")

// RecordStore persists encoded event records by key.
//
// Put replaces any record stored under the same key. Exists must not read
// the record body, it is used to skip already processed events cheaply.
type RecordStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
