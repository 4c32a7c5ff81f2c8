package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLookupMissThenHit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("unexpected hit on empty cache")
	}

	entry := Entry{
		Fingerprint: "deadbeef",
		Task:        "addOne",
		OutputsJSON: `{"result":6}`,
		Attempts:    1,
	}
	if err := s.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Lookup(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Task != "addOne" || got.OutputsJSON != `{"result":6}` || got.Attempts != 1 {
		t.Errorf("entry = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestPutUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Entry{Fingerprint: "k", Task: "t", OutputsJSON: `{"v":1}`, Attempts: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, Entry{Fingerprint: "k", Task: "t", OutputsJSON: `{"v":2}`, Attempts: 2}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Lookup(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Lookup: %v, %v", ok, err)
	}
	if got.OutputsJSON != `{"v":2}` || got.Attempts != 2 {
		t.Errorf("entry = %+v", got)
	}
}

func TestCorruptEntryDegradesToMiss(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Write rows behind the API's back.
	if _, err := s.db.Exec(
		`INSERT INTO call_cache (fingerprint, task_name, outputs, attempts, created_at) VALUES
		 ('badjson', 't', '{not json', 1, ?),
		 ('badtime', 't', '{}', 1, 'yesterday-ish')`,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"badjson", "badtime"} {
		_, ok, err := s.Lookup(ctx, key)
		if err != nil {
			t.Errorf("%s: corruption must not error, got %v", key, err)
		}
		if ok {
			t.Errorf("%s: corruption must read as a miss", key)
		}
	}

	// A corrupt entry is repairable by storing over it.
	if err := s.Put(ctx, Entry{Fingerprint: "badjson", Task: "t", OutputsJSON: `{"v":1}`, Attempts: 1}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup(ctx, "badjson"); !ok {
		t.Error("expected hit after repair")
	}
}

func TestKeyLockSerializesPerKey(t *testing.T) {
	kl := NewKeyLock()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("same-key")
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			kl.Unlock("same-key")
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if len(kl.locks) != 0 {
		t.Errorf("lock table should drain, has %d entries", len(kl.locks))
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("a")

	done := make(chan struct{})
	go func() {
		kl.Lock("b")
		kl.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent keys must not block each other")
	}
	kl.Unlock("a")
}
