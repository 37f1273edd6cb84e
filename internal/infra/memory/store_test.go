package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"livequiz-service/internal/store"
)

func TestGetDocumentNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.GetDocument(context.Background(), "sessions/missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want store.ErrNotFound", err)
	}
}

func TestWriteDocumentMergesAndDeletesNil(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.WriteDocument(ctx, "sessions/s1", map[string]any{"status": "waiting", "pin": "123456"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteDocument(ctx, "sessions/s1", map[string]any{"status": "active", "pin": nil}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	raw, err := s.GetDocument(ctx, "sessions/s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["status"] != "active" {
		t.Fatalf("patched field: got %v", doc["status"])
	}
	if _, ok := doc["pin"]; ok {
		t.Fatalf("nil must delete the field, doc=%v", doc)
	}
}

func TestSubscribeDeliversSnapshotThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.WriteDocument(ctx, "sessions/s1", map[string]any{"status": "waiting"}); err != nil {
		t.Fatal(err)
	}

	updates, cancel, err := s.Subscribe(ctx, "sessions/s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := readDoc(t, updates)
	if first["status"] != "waiting" {
		t.Fatalf("initial snapshot: %v", first)
	}

	if err := s.WriteDocument(ctx, "sessions/s1", map[string]any{"status": "active"}); err != nil {
		t.Fatal(err)
	}
	second := readDoc(t, updates)
	if second["status"] != "active" {
		t.Fatalf("update snapshot: %v", second)
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	s := NewStore()
	updates, cancel, err := s.Subscribe(context.Background(), "sessions/s1")
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel() // second call must not panic on the closed channel

	if _, open := <-updates; open {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestWatchCollectionReplayControlsBacklog(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, err := s.AppendToCollection(ctx, "sessions/s1/answers", map[string]any{"n": 1}); err != nil {
		t.Fatal(err)
	}

	withReplay, cancelReplay, err := s.WatchCollection(ctx, "sessions/s1/answers", true)
	if err != nil {
		t.Fatal(err)
	}
	defer cancelReplay()
	newOnly, cancelNew, err := s.WatchCollection(ctx, "sessions/s1/answers", false)
	if err != nil {
		t.Fatal(err)
	}
	defer cancelNew()

	backlog := readRecord(t, withReplay)
	if string(backlog.Data) != `{"n":1}` {
		t.Fatalf("backlog record: %s", backlog.Data)
	}

	if _, err := s.AppendToCollection(ctx, "sessions/s1/answers", map[string]any{"n": 2}); err != nil {
		t.Fatal(err)
	}
	if got := readRecord(t, withReplay); string(got.Data) != `{"n":2}` {
		t.Fatalf("live record on replay watcher: %s", got.Data)
	}
	// The new-only watcher must see the live append first, never the backlog.
	if got := readRecord(t, newOnly); string(got.Data) != `{"n":2}` {
		t.Fatalf("new-only watcher got %s", got.Data)
	}
}

func TestListCollectionReturnsCopyInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := 1; i <= 3; i++ {
		if _, err := s.AppendToCollection(ctx, "sessions/s1/answers", map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.ListCollection(ctx, "sessions/s1/answers")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	for i, record := range records {
		if want := fmt.Sprintf(`{"n":%d}`, i+1); string(record.Data) != want {
			t.Fatalf("record %d out of order: %s", i, record.Data)
		}
		if record.ID == "" || record.AppendedAt.IsZero() {
			t.Fatalf("record %d missing envelope: %+v", i, record)
		}
	}

	// Mutating the returned slice must not touch the store.
	records[0].Data = json.RawMessage(`{}`)
	again, _ := s.ListCollection(ctx, "sessions/s1/answers")
	if string(again[0].Data) != `{"n":1}` {
		t.Fatalf("store mutated through returned slice: %s", again[0].Data)
	}
}

func TestAppendUsesInjectedClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewStoreWithClock(func() time.Time { return at })

	if _, err := s.AppendToCollection(context.Background(), "c", map[string]any{"n": 1}); err != nil {
		t.Fatal(err)
	}
	records, _ := s.ListCollection(context.Background(), "c")
	if !records[0].AppendedAt.Equal(at) {
		t.Fatalf("appended at %v, want %v", records[0].AppendedAt, at)
	}
}

func readDoc(t *testing.T, updates <-chan json.RawMessage) map[string]any {
	t.Helper()
	select {
	case raw := <-updates:
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document update")
		return nil
	}
}

func readRecord(t *testing.T, records <-chan store.Record) store.Record {
	t.Helper()
	select {
	case record := <-records:
		return record
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
		return store.Record{}
	}
}
