package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/trackgraph/pkg/common"
)

// ErrNotFound is returned by a FileLoader when the requested file does not
// exist.
var ErrNotFound = errors.New("file not found")

// FileLoader reads raw event files by name. Names are relative to the root
// the loader was created for (a directory or a bucket prefix).
//
// Implementations may load files from disk, cloud storage, or other sources.
type FileLoader interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// EventSource provides the raw tables of collision events.
//
// LoadEvent returns the hits and tubes of an event, and when readTruth is
// set also its particles and truth records. Tables that were not read are
// nil in the returned RawEvent.
type EventSource interface {
	LoadEvent(ctx context.Context, eventID int64, readTruth bool) (*common.RawEvent, error)
	ListEvents(ctx context.Context) ([]int64, error)
}

// EventFileName returns the file name of one raw table of an event, e.g.
// "event0000000042-hits.csv".
func EventFileName(eventID int64, table string) string {
	return fmt.Sprintf("%s-%s.csv", EventPrefix(eventID), table)
}

// EventPrefix returns the common prefix of all files of an event.
func EventPrefix(eventID int64) string {
	return fmt.Sprintf("event%010d", eventID)
}
