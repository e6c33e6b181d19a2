// Package store holds the local asset cache and the last-update preference,
// with SQLite, Postgres, Redis and in-memory backends.
package store

import (
	"context"
	"errors"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

// ErrClosed is returned by operations on a closed or unconfigured store.
var ErrClosed = errors.New("store is closed")

// LocalStore is the durable asset cache. Writes are always full replacements,
// so every record shares a single SavedTimestamp.
type LocalStore interface {
	// GetAll returns every cached record ordered by numeric rank ascending.
	GetAll(ctx context.Context) ([]model.CachedRecord, error)
	// GetByID returns nil, nil when the id is not cached.
	GetByID(ctx context.Context, id string) (*model.CachedRecord, error)
	// ReplaceAll deletes every record and inserts records atomically.
	ReplaceAll(ctx context.Context, records []model.CachedRecord) error
	// SharedSavedTimestamp returns the snapshot timestamp, false when the cache is empty.
	SharedSavedTimestamp(ctx context.Context) (int64, bool, error)
}

// PreferenceStore holds the last-update marker independently of the records.
type PreferenceStore interface {
	ReadMarker(ctx context.Context) (int64, bool, error)
	WriteMarker(ctx context.Context, ts int64) error
	ClearMarker(ctx context.Context) error
}

// SnapshotWriter is implemented by backends that can replace the records and
// write the marker in a single transaction.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error
}

// Backend is a store serving both roles, as every bundled implementation does.
type Backend interface {
	LocalStore
	PreferenceStore
	SnapshotWriter
	HealthCheck(ctx context.Context) error
	Close() error
}

const markerKey = "last_update_timestamp"
