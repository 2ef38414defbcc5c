package mockservice

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/eye-check/internal/result"
)

// ErrNotFound is returned when deleting an unknown record.
var ErrNotFound = errors.New("mockservice: result not found")

// Store persists analysis records.
type Store interface {
	Save(ctx context.Context, rec *result.Record) error
	// List returns every record, newest first.
	List(ctx context.Context) ([]*result.Record, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*result.Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*result.Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec *result.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(rec.ID)] = rec
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*result.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*result.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*result.Record)
	return nil
}

func sortNewestFirst(records []*result.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Timestamp, records[j].Timestamp
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return records[i].ID > records[j].ID
		default:
			return ti.After(*tj)
		}
	})
}
