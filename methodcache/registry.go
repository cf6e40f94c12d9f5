package methodcache

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-method-cache/cache"
)

// ErrAlreadyRegistered signals an idempotent double registration. It is
// informational and recoverable: the caller receives the existing
// registration alongside it and nothing is re-wrapped.
var ErrAlreadyRegistered = errors.New("methodcache: target already registered")

// Registration tracks one installed wrapper. At most one active
// registration exists per (owner, method) pair.
type Registration struct {
	ID        uuid.UUID
	Target    cache.Target
	CreatedAt time.Time

	wrapper  any
	original any
}

// Wrapper returns the installed interception wrapper.
func (r *Registration) Wrapper() any {
	return r.wrapper
}

// Original returns the wrapped callable, for unpatch support.
func (r *Registration) Original() any {
	return r.original
}

// Registry tracks which targets are already wrapped so installation is
// idempotent and reversible. It is process-scoped state with an explicit
// lifecycle: construct it at startup, pass it by reference, reset it in
// tests. No ambient global.
type Registry struct {
	entries *xsync.MapOf[string, *Registration]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: xsync.NewMapOf[string, *Registration]()}
}

// Register records a wrapper for the target. Registering a target twice
// returns the existing registration together with ErrAlreadyRegistered,
// never a storage-layer failure.
func (r *Registry) Register(target cache.Target, wrapper, original any) (*Registration, error) {
	candidate := &Registration{
		ID:        uuid.New(),
		Target:    target,
		CreatedAt: time.Now(),
		wrapper:   wrapper,
		original:  original,
	}
	existing, loaded := r.entries.LoadOrStore(target.Key(), candidate)
	if loaded {
		return existing, ErrAlreadyRegistered
	}
	return candidate, nil
}

// IsRegistered reports whether the target already has a wrapper installed.
func (r *Registry) IsRegistered(target cache.Target) bool {
	_, ok := r.entries.Load(target.Key())
	return ok
}

// Lookup returns the registration for a target, if any.
func (r *Registry) Lookup(target cache.Target) (*Registration, bool) {
	return r.entries.Load(target.Key())
}

// Deregister removes the target's registration and returns it, so the
// caller can reinstall the original callable.
func (r *Registry) Deregister(target cache.Target) (*Registration, bool) {
	return r.entries.LoadAndDelete(target.Key())
}

// Reset drops every registration. Intended for tests.
func (r *Registry) Reset() {
	r.entries.Clear()
}

// Len returns the number of active registrations.
func (r *Registry) Len() int {
	return r.entries.Size()
}
