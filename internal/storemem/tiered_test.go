package storemem

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/goliatone/go-method-cache/cache"
)

// countingStore is a map-backed cache.Store that counts backing reads, so
// tests can observe which tier served a lookup.
type countingStore struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	gets    int
}

func newCountingStore() *countingStore {
	return &countingStore{entries: map[string]cache.Entry{}}
}

func (s *countingStore) key(ns cache.Namespace, fp cache.Fingerprint) string {
	return ns.String() + "/" + fp.Hex()
}

func (s *countingStore) Get(_ context.Context, ns cache.Namespace, fp cache.Fingerprint) (cache.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	entry, ok := s.entries[s.key(ns, fp)]
	return entry, ok, nil
}

func (s *countingStore) PutIfAbsent(_ context.Context, ns cache.Namespace, fp cache.Fingerprint, entry cache.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(ns, fp)
	if _, ok := s.entries[k]; ok {
		return false, nil
	}
	s.entries[k] = entry
	return true, nil
}

func (s *countingStore) Delete(_ context.Context, ns cache.Namespace, fp cache.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, s.key(ns, fp))
	return nil
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func testNamespace() cache.Namespace {
	return cache.Namespace{Owner: "calculator", Method: "add"}
}

func testFingerprint(b byte) cache.Fingerprint {
	var fp cache.Fingerprint
	fp[0] = b
	return fp
}

func TestTiered_GetMissing(t *testing.T) {
	back := newCountingStore()
	tiered := NewDefault(back)

	_, ok, err := tiered.Get(context.Background(), testNamespace(), testFingerprint(1))
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() = present on an empty store")
	}
	if back.getCount() != 1 {
		t.Errorf("backing reads = %d, want 1", back.getCount())
	}
}

func TestTiered_WinnerPopulatesFront(t *testing.T) {
	back := newCountingStore()
	tiered := NewDefault(back)
	ctx := context.Background()
	ns := testNamespace()
	fp := testFingerprint(1)
	entry := cache.Entry{Result: []byte("result")}

	inserted, err := tiered.PutIfAbsent(ctx, ns, fp, entry)
	if err != nil {
		t.Fatalf("PutIfAbsent() error: %v", err)
	}
	if !inserted {
		t.Fatal("PutIfAbsent() = false on an empty store")
	}

	got, ok, err := tiered.Get(ctx, ns, fp)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !bytes.Equal(got.Result, entry.Result) {
		t.Errorf("Result = %q, want %q", got.Result, entry.Result)
	}
	if back.getCount() != 0 {
		t.Errorf("backing reads = %d, want 0 (served from memory)", back.getCount())
	}
}

func TestTiered_LoserDoesNotPopulateFront(t *testing.T) {
	back := newCountingStore()
	tiered := NewDefault(back)
	ctx := context.Background()
	ns := testNamespace()
	fp := testFingerprint(1)

	// Seed the backing store directly, simulating another process's win.
	if _, err := back.PutIfAbsent(ctx, ns, fp, cache.Entry{Result: []byte("winner")}); err != nil {
		t.Fatalf("seed PutIfAbsent() error: %v", err)
	}

	inserted, err := tiered.PutIfAbsent(ctx, ns, fp, cache.Entry{Result: []byte("loser")})
	if err != nil {
		t.Fatalf("PutIfAbsent() error: %v", err)
	}
	if inserted {
		t.Fatal("PutIfAbsent() = true for an occupied fingerprint")
	}

	// The loser's bytes must never be served; the next read promotes the
	// winner from the backing store.
	got, ok, err := tiered.Get(ctx, ns, fp)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !bytes.Equal(got.Result, []byte("winner")) {
		t.Errorf("Result = %q, want the backing store's entry", got.Result)
	}
}

func TestTiered_PromotesBackingHits(t *testing.T) {
	back := newCountingStore()
	tiered := NewDefault(back)
	ctx := context.Background()
	ns := testNamespace()
	fp := testFingerprint(1)

	if _, err := back.PutIfAbsent(ctx, ns, fp, cache.Entry{Result: []byte("result")}); err != nil {
		t.Fatalf("seed PutIfAbsent() error: %v", err)
	}

	if _, ok, _ := tiered.Get(ctx, ns, fp); !ok {
		t.Fatal("first Get() missed a backing entry")
	}
	if back.getCount() != 1 {
		t.Fatalf("backing reads = %d, want 1", back.getCount())
	}

	if _, ok, _ := tiered.Get(ctx, ns, fp); !ok {
		t.Fatal("second Get() missed a promoted entry")
	}
	if back.getCount() != 1 {
		t.Errorf("backing reads = %d after promotion, want still 1", back.getCount())
	}
}

func TestTiered_DeleteRemovesBothTiers(t *testing.T) {
	back := newCountingStore()
	tiered := NewDefault(back)
	ctx := context.Background()
	ns := testNamespace()
	fp := testFingerprint(1)

	if _, err := tiered.PutIfAbsent(ctx, ns, fp, cache.Entry{Result: []byte("result")}); err != nil {
		t.Fatalf("PutIfAbsent() error: %v", err)
	}

	if err := tiered.Delete(ctx, ns, fp); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	// Neither the memory tier nor the backing store serves the entry;
	// a fresh write can take the fingerprint again.
	_, ok, err := tiered.Get(ctx, ns, fp)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() = present after Delete")
	}
	inserted, err := tiered.PutIfAbsent(ctx, ns, fp, cache.Entry{Result: []byte("fresh")})
	if err != nil {
		t.Fatalf("PutIfAbsent() error: %v", err)
	}
	if !inserted {
		t.Error("PutIfAbsent() = false after Delete")
	}
}
