package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"livequiz-service/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store implements store.Adapter on Redis: documents live as JSON strings,
// collections as lists, and change notification rides pub/sub channels keyed
// by path. The merge in WriteDocument is read-modify-write without a lock;
// the session document has a single logical writer (the host) and per-field
// last-write-wins is the documented contract, so a lost concurrent patch is
// tolerated rather than prevented.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

func (s *Store) GetDocument(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := s.client.Get(ctx, docKey(path)).Result()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}
	return json.RawMessage(raw), nil
}

func (s *Store) WriteDocument(ctx context.Context, path string, patch map[string]any) error {
	doc := make(map[string]any)
	raw, err := s.client.Get(ctx, docKey(path)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read document %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("decode document %s: %w", path, err)
		}
	}

	for field, value := range patch {
		if value == nil {
			delete(doc, field)
			continue
		}
		doc[field] = value
	}
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", path, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, docKey(path), snapshot, s.ttl)
	pipe.Publish(ctx, docChannel(path), snapshot)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return nil
}

func (s *Store) AppendToCollection(ctx context.Context, path string, record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	rec := store.Record{
		ID:         uuid.NewString(),
		Data:       data,
		AppendedAt: s.now(),
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record envelope: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, collKey(path), encoded)
	if s.ttl > 0 {
		pipe.Expire(ctx, collKey(path), s.ttl)
	}
	pipe.Publish(ctx, collChannel(path), encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("append to %s: %w", path, err)
	}
	return rec.ID, nil
}

func (s *Store) ListCollection(ctx context.Context, path string) ([]store.Record, error) {
	raw, err := s.client.LRange(ctx, collKey(path), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", path, err)
	}
	records := make([]store.Record, 0, len(raw))
	for _, entry := range raw {
		var rec store.Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("decode record in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, func(), error) {
	pubsub := s.client.Subscribe(ctx, docChannel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	out := make(chan json.RawMessage, 8)
	if current, err := s.GetDocument(ctx, path); err == nil {
		out <- current
	}

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			offer(out, json.RawMessage(msg.Payload))
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

func (s *Store) WatchCollection(ctx context.Context, path string, replay bool) (<-chan store.Record, func(), error) {
	// Subscribing before reading the backlog means a record appended in
	// between shows up twice at most, never not at all; the seen set below
	// filters the duplicate.
	pubsub := s.client.Subscribe(ctx, collChannel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", path, err)
	}

	// Without replay there is nothing to deduplicate: pub/sub only carries
	// appends that happen after the subscription above.
	seen := make(map[string]struct{})
	var backlog []store.Record
	if replay {
		var err error
		backlog, err = s.ListCollection(ctx, path)
		if err != nil {
			_ = pubsub.Close()
			return nil, nil, err
		}
	}

	out := make(chan store.Record, 32+len(backlog))
	for _, rec := range backlog {
		seen[rec.ID] = struct{}{}
		out <- rec
	}

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var rec store.Record
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				delete(seen, rec.ID)
				continue
			}
			offer(out, rec)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

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

func docKey(path string) string     { return "doc:" + path }
func collKey(path string) string    { return "coll:" + path }
func docChannel(path string) string { return "notify:doc:" + path }
func collChannel(path string) string {
	return "notify:coll:" + path
}
