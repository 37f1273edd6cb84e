package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"livequiz-service/internal/store"

	"github.com/google/uuid"
)

// Store is an in-process implementation of store.Adapter. It backs single-node
// deployments and tests; the Redis adapter covers the distributed case.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]map[string]any
	collections map[string][]store.Record
	docSubs     map[string]map[chan json.RawMessage]struct{}
	collSubs    map[string]map[chan store.Record]struct{}
	now         func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic record timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		docs:        make(map[string]map[string]any),
		collections: make(map[string][]store.Record),
		docSubs:     make(map[string]map[chan json.RawMessage]struct{}),
		collSubs:    make(map[string]map[chan store.Record]struct{}),
		now:         now,
	}
}

func (s *Store) GetDocument(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return marshalDoc(doc)
}

func (s *Store) WriteDocument(_ context.Context, path string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		doc = make(map[string]any)
		s.docs[path] = doc
	}
	// Last write wins per field; nil deletes so optional fields can be cleared.
	for field, value := range patch {
		if value == nil {
			delete(doc, field)
			continue
		}
		doc[field] = value
	}

	snapshot, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	for ch := range s.docSubs[path] {
		offer(ch, snapshot)
	}
	return nil
}

func (s *Store) AppendToCollection(_ context.Context, path string, record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := store.Record{
		ID:         uuid.NewString(),
		Data:       data,
		AppendedAt: s.now(),
	}
	s.collections[path] = append(s.collections[path], rec)
	for ch := range s.collSubs[path] {
		offer(ch, rec)
	}
	return rec.ID, nil
}

func (s *Store) ListCollection(_ context.Context, path string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]store.Record, len(s.collections[path]))
	copy(records, s.collections[path])
	return records, nil
}

func (s *Store) Subscribe(_ context.Context, path string) (<-chan json.RawMessage, func(), error) {
	ch := make(chan json.RawMessage, 8)

	s.mu.Lock()
	if doc, ok := s.docs[path]; ok {
		if snapshot, err := marshalDoc(doc); err == nil {
			ch <- snapshot
		}
	}
	subs, ok := s.docSubs[path]
	if !ok {
		subs = make(map[chan json.RawMessage]struct{})
		s.docSubs[path] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.docSubs[path][ch]; ok {
			delete(s.docSubs[path], ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Store) WatchCollection(_ context.Context, path string, replay bool) (<-chan store.Record, func(), error) {
	s.mu.Lock()
	backlog := s.collections[path]
	size := 32
	if replay {
		size += len(backlog)
	}
	ch := make(chan store.Record, size)
	if replay {
		for _, rec := range backlog {
			ch <- rec
		}
	}
	subs, ok := s.collSubs[path]
	if !ok {
		subs = make(map[chan store.Record]struct{})
		s.collSubs[path] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.collSubs[path][ch]; ok {
			delete(s.collSubs[path], ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// offer delivers without blocking, dropping the oldest buffered item when the
// consumer lags so slow clients never stall the writer.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func marshalDoc(doc map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}
