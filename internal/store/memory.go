package store

import (
	"context"
	"sync"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

// MemoryStore is a process-local Backend. It is used for tests and for
// STORE_DRIVER=memory, where nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]model.CachedRecord
	marker    int64
	hasMarker bool
	closed    bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.CachedRecord)}
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]model.CachedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]model.CachedRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	model.SortRecordsByRank(out)
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.CachedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) ReplaceAll(ctx context.Context, records []model.CachedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.replaceLocked(records)
	return nil
}

func (s *MemoryStore) replaceLocked(records []model.CachedRecord) {
	s.records = make(map[string]model.CachedRecord, len(records))
	for _, r := range records {
		s.records[r.ID] = r
	}
}

func (s *MemoryStore) SharedSavedTimestamp(ctx context.Context) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	for _, r := range s.records {
		return r.SavedTimestamp, true, nil
	}
	return 0, false, nil
}

func (s *MemoryStore) ReadMarker(ctx context.Context) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	return s.marker, s.hasMarker, nil
}

func (s *MemoryStore) WriteMarker(ctx context.Context, ts int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.marker, s.hasMarker = ts, true
	return nil
}

func (s *MemoryStore) ClearMarker(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.marker, s.hasMarker = 0, false
	return nil
}

// WriteSnapshot replaces the records and the marker under one lock.
func (s *MemoryStore) WriteSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.replaceLocked(records)
	s.marker, s.hasMarker = ts, true
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
