package statediff

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-method-cache/cache"
)

// Markers recorded in place of values the capture walk cannot descend into.
const (
	cycleMarker    = "<cycle>"
	maxDepthMarker = "<max depth reached>"
)

// Snapshotter lets a type declare exactly which state participates in
// caching. Implementing it is the preferred way to scope tracked state; the
// reflection fallback only exists for types the caller does not own.
type Snapshotter interface {
	CacheState() (map[string]any, error)
}

// Restorer applies previously captured state back onto the instance. Values
// arrive decoded from the codec (numbers as int64/float64, maps as
// map[string]any).
type Restorer interface {
	RestoreCacheState(map[string]any) error
}

// UnsnapshottableStateError reports state that could not be captured or
// restored while full fidelity was required.
type UnsnapshottableStateError struct {
	Attr string
	Err  error
}

func (e *UnsnapshottableStateError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("statediff: unsnapshottable attribute %q: %v", e.Attr, e.Err)
	}
	return fmt.Sprintf("statediff: unsnapshottable state: %v", e.Err)
}

func (e *UnsnapshottableStateError) Unwrap() error {
	return e.Err
}

// Snapshot is a serialized, comparable representation of an instance's
// tracked state at one instant. Two snapshots compare structurally: the
// canonical codec bytes of each attribute, never object identity.
type Snapshot struct {
	// Fields maps attribute name to canonical codec bytes.
	Fields map[string][]byte

	// Untracked lists attributes excluded because they could not be
	// serialized. They participate in neither digests nor diffs.
	Untracked []string
}

// FieldNames returns the captured attribute names in deterministic order.
func (s Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum returns a collision-resistant digest of the snapshot, suitable as the
// state segment of a fingerprint.
func (s Snapshot) Sum() []byte {
	h := sha256.New()
	var lenBuf [8]byte
	for _, name := range s.FieldNames() {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(name)))
		h.Write(lenBuf[:])
		h.Write([]byte(name))
		data := s.Fields[name]
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}
	return h.Sum(nil)
}

// Digest returns a cheap 64-bit probe over the same traversal as Sum. It
// answers "did anything change" without retaining a second full copy of the
// state, which is what callers that only gate on change want for large
// instances. It is not collision-resistant and never feeds a fingerprint.
func (s Snapshot) Digest() uint64 {
	h := xxhash.New()
	var lenBuf [8]byte
	for _, name := range s.FieldNames() {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(name)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(name))
		data := s.Fields[name]
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(data)
	}
	return h.Sum64()
}

// Detector captures snapshots of an instance's state and restores them.
type Detector struct {
	codec    cache.Codec
	fields   map[string]struct{} // declared whitelist; nil tracks everything
	strict   bool
	maxDepth int
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithFields restricts the generic capture to the named attributes. The
// Snapshotter hook, when present, still wins.
func WithFields(names ...string) DetectorOption {
	return func(d *Detector) {
		d.fields = make(map[string]struct{}, len(names))
		for _, n := range names {
			d.fields[n] = struct{}{}
		}
	}
}

// WithStrict makes capture fail with *UnsnapshottableStateError instead of
// recording untracked markers.
func WithStrict() DetectorOption {
	return func(d *Detector) {
		d.strict = true
	}
}

// WithMaxDepth bounds the capture walk; deeper values collapse into a
// marker.
func WithMaxDepth(depth int) DetectorOption {
	return func(d *Detector) {
		d.maxDepth = depth
	}
}

// NewDetector creates a state detector backed by the given codec.
func NewDetector(codec cache.Codec, opts ...DetectorOption) *Detector {
	d := &Detector{
		codec:    codec,
		maxDepth: 10,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot captures the instance's tracked state. Attributes that cannot be
// serialized are excluded with an untracked marker unless the detector is
// strict.
func (d *Detector) Snapshot(instance any) (Snapshot, error) {
	attrs, err := d.extract(instance)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Fields: make(map[string][]byte, len(attrs))}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		safe, err := d.sanitize(attrs[name], 0, map[uintptr]struct{}{})
		if err == nil {
			var data []byte
			data, err = d.codec.Marshal(safe)
			if err == nil {
				snap.Fields[name] = data
				continue
			}
		}
		if d.strict {
			return Snapshot{}, &UnsnapshottableStateError{Attr: name, Err: err}
		}
		snap.Untracked = append(snap.Untracked, name)
	}

	return snap, nil
}

// extract resolves the raw attribute map: capability hook first, then the
// declared whitelist over a reflection dump of exported fields.
func (d *Detector) extract(instance any) (map[string]any, error) {
	if s, ok := instance.(Snapshotter); ok {
		attrs, err := s.CacheState()
		if err != nil {
			return nil, &UnsnapshottableStateError{Err: err}
		}
		return d.filter(attrs), nil
	}

	rv := reflect.ValueOf(instance)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, &UnsnapshottableStateError{Err: fmt.Errorf("nil instance")}
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		if d.strict {
			return nil, &UnsnapshottableStateError{
				Err: fmt.Errorf("instance of kind %s has no generic attribute form", rv.Kind()),
			}
		}
		return nil, nil
	}

	rt := rv.Type()
	attrs := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		attrs[field.Name] = rv.Field(i).Interface()
	}
	return d.filter(attrs), nil
}

func (d *Detector) filter(attrs map[string]any) map[string]any {
	if d.fields == nil {
		return attrs
	}
	filtered := make(map[string]any, len(d.fields))
	for name, value := range attrs {
		if _, ok := d.fields[name]; ok {
			filtered[name] = value
		}
	}
	return filtered
}

// sanitize converts a value into an acyclic, codec-safe tree. Pointers are
// followed with a visited set so self-referential state terminates in a
// cycle marker instead of recursing unbounded.
func (d *Detector) sanitize(v any, depth int, visited map[uintptr]struct{}) (any, error) {
	if v == nil {
		return nil, nil
	}
	if depth > d.maxDepth {
		return maxDepthMarker, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		addr := rv.Pointer()
		if _, seen := visited[addr]; seen {
			return cycleMarker, nil
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		return d.sanitize(rv.Elem().Interface(), depth+1, visited)

	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return d.sanitize(rv.Elem().Interface(), depth, visited)

	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		addr := rv.Pointer()
		if _, seen := visited[addr]; seen {
			return cycleMarker, nil
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			val, err := d.sanitize(iter.Value().Interface(), depth+1, visited)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil

	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface(), nil
		}
		addr := rv.Pointer()
		if _, seen := visited[addr]; seen {
			return cycleMarker, nil
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		return d.sanitizeSequence(rv, depth, visited)

	case reflect.Array:
		return d.sanitizeSequence(rv, depth, visited)

	case reflect.Struct:
		// time.Time keeps its native codec form: the generic field walk
		// would see only unexported fields and flatten every timestamp to
		// the same empty map.
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			val, err := d.sanitize(rv.Field(i).Interface(), depth+1, visited)
			if err != nil {
				return nil, err
			}
			out[field.Name] = val
		}
		if len(out) == 0 && rt.NumField() > 0 {
			return nil, fmt.Errorf("type %s has no exported fields", rt)
		}
		return out, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("value of kind %s is not serializable", rv.Kind())

	default:
		return v, nil
	}
}

func (d *Detector) sanitizeSequence(rv reflect.Value, depth int, visited map[uintptr]struct{}) (any, error) {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, err := d.sanitize(rv.Index(i).Interface(), depth+1, visited)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}
