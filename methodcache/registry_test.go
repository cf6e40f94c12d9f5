package methodcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-method-cache/cache"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	target := cache.Target{Owner: "Calculator", Method: "Add"}

	reg, err := r.Register(target, "wrapper", "original")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if reg.Target != target {
		t.Errorf("Target = %+v, want %+v", reg.Target, target)
	}
	if reg.ID.String() == "" {
		t.Error("expected a registration ID")
	}
	if !r.IsRegistered(target) {
		t.Error("IsRegistered() = false after Register")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RegisterTwiceIsIdempotent(t *testing.T) {
	r := NewRegistry()
	target := cache.Target{Owner: "Calculator", Method: "Add"}

	first, err := r.Register(target, "wrapper-1", "original")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	second, err := r.Register(target, "wrapper-2", "original")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("Register() error = %v, want ErrAlreadyRegistered", err)
	}
	if second != first {
		t.Error("double registration did not return the existing registration")
	}
	if got := second.Wrapper(); got != "wrapper-1" {
		t.Errorf("Wrapper() = %v, want the first wrapper", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry()
	target := cache.Target{Owner: "Calculator", Method: "Add"}

	if _, ok := r.Deregister(target); ok {
		t.Error("Deregister() on an empty registry reported success")
	}

	if _, err := r.Register(target, "wrapper", "original"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	reg, ok := r.Deregister(target)
	if !ok {
		t.Fatal("Deregister() = false for a registered target")
	}
	if got := reg.Original(); got != "original" {
		t.Errorf("Original() = %v, want %q", got, "original")
	}
	if r.IsRegistered(target) {
		t.Error("target still registered after Deregister")
	}

	// Deregister frees the slot for a fresh registration.
	if _, err := r.Register(target, "wrapper-2", "original"); err != nil {
		t.Fatalf("re-Register() error: %v", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	target := cache.Target{Owner: "Calculator", Method: "Add"}

	if _, ok := r.Lookup(target); ok {
		t.Error("Lookup() found a registration before Register")
	}

	if _, err := r.Register(target, "wrapper", "original"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	reg, ok := r.Lookup(target)
	if !ok || reg.Target != target {
		t.Errorf("Lookup() = %+v, %v", reg, ok)
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		target := cache.Target{Owner: "Calculator", Method: fmt.Sprintf("Op%d", i)}
		if _, err := r.Register(target, "wrapper", "original"); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry()
	target := cache.Target{Owner: "Calculator", Method: "Add"}

	const goroutines = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := r.Register(target, id, "original"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("registration won %d times, want exactly 1", wins)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
