// Package store defines the shared-document-store contract the session engine
// runs against. Any backing transport that can serve durable document reads,
// merge-patch writes, collection appends, and change notification satisfies it;
// the engine never assumes a particular database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by GetDocument when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// Record is one appended collection entry. IDs are assigned by the store and
// unique within their collection; append order across writers is unspecified.
type Record struct {
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	AppendedAt time.Time       `json:"appendedAt"`
}

// Adapter is the only surface the session engine uses to reach shared state,
// besides a wall clock.
//
// WriteDocument merges the patch into the document at path field by field
// (last write wins per field), creating the document if absent. Subscribe
// delivers the current document first, when one exists, then every subsequent
// write; slow consumers see the latest state, not every intermediate one.
// WatchCollection delivers appended records; with replay it first delivers the
// existing backlog. Both cancel functions are idempotent.
type Adapter interface {
	GetDocument(ctx context.Context, path string) (json.RawMessage, error)
	WriteDocument(ctx context.Context, path string, patch map[string]any) error
	AppendToCollection(ctx context.Context, path string, record any) (string, error)
	ListCollection(ctx context.Context, path string) ([]Record, error)
	Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, func(), error)
	WatchCollection(ctx context.Context, path string, replay bool) (<-chan Record, func(), error)
}
