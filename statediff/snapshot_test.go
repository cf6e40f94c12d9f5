package statediff

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-method-cache/cache"
)

type counter struct {
	Count   int
	Label   string
	history []int // unexported, never captured
}

type leaky struct {
	Name   string
	Done   chan struct{}
	Notify func()
}

type declared struct {
	calls int
}

func (d *declared) CacheState() (map[string]any, error) {
	return map[string]any{"calls": d.calls}, nil
}

func (d *declared) RestoreCacheState(attrs map[string]any) error {
	v, ok := attrs["calls"]
	if !ok {
		return errors.New("missing calls")
	}
	switch n := v.(type) {
	case int64:
		d.calls = int(n)
	case int8:
		d.calls = int(n)
	case uint64:
		d.calls = int(n)
	default:
		return errors.New("calls has unexpected type")
	}
	return nil
}

type failingSnapshotter struct{}

func (failingSnapshotter) CacheState() (map[string]any, error) {
	return nil, errors.New("state unavailable")
}

type node struct {
	Value int
	Next  *node
}

func newTestDetector(t *testing.T, opts ...DetectorOption) *Detector {
	t.Helper()
	return NewDetector(cache.NewMsgpackCodec(), opts...)
}

func TestDetector_SnapshotExportedFields(t *testing.T) {
	d := newTestDetector(t)

	snap, err := d.Snapshot(&counter{Count: 3, Label: "up", history: []int{1, 2}})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	want := []string{"Count", "Label"}
	if got := snap.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames() = %v, want %v", got, want)
	}
	if len(snap.Untracked) != 0 {
		t.Errorf("Untracked = %v, want none", snap.Untracked)
	}
}

func TestDetector_SnapshotUsesHook(t *testing.T) {
	d := newTestDetector(t)

	snap, err := d.Snapshot(&declared{calls: 7})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	want := []string{"calls"}
	if got := snap.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames() = %v, want %v", got, want)
	}
}

func TestDetector_SnapshotHookFailure(t *testing.T) {
	d := newTestDetector(t)

	_, err := d.Snapshot(failingSnapshotter{})
	var uerr *UnsnapshottableStateError
	if !errors.As(err, &uerr) {
		t.Fatalf("Snapshot() error = %v, want *UnsnapshottableStateError", err)
	}
}

func TestDetector_WithFields(t *testing.T) {
	d := newTestDetector(t, WithFields("Count"))

	snap, err := d.Snapshot(&counter{Count: 3, Label: "up"})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	want := []string{"Count"}
	if got := snap.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames() = %v, want %v", got, want)
	}
}

func TestDetector_UnserializableFieldsAreUntracked(t *testing.T) {
	d := newTestDetector(t)

	snap, err := d.Snapshot(&leaky{
		Name:   "worker",
		Done:   make(chan struct{}),
		Notify: func() {},
	})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	if _, ok := snap.Fields["Name"]; !ok {
		t.Error("expected Name to be captured")
	}
	wantUntracked := []string{"Done", "Notify"}
	if !reflect.DeepEqual(snap.Untracked, wantUntracked) {
		t.Errorf("Untracked = %v, want %v", snap.Untracked, wantUntracked)
	}
}

func TestDetector_StrictFailsOnUnserializable(t *testing.T) {
	d := newTestDetector(t, WithStrict())

	_, err := d.Snapshot(&leaky{Name: "worker", Done: make(chan struct{})})
	var uerr *UnsnapshottableStateError
	if !errors.As(err, &uerr) {
		t.Fatalf("Snapshot() error = %v, want *UnsnapshottableStateError", err)
	}
	if uerr.Attr != "Done" {
		t.Errorf("Attr = %q, want %q", uerr.Attr, "Done")
	}
}

func TestDetector_SnapshotHandlesCycles(t *testing.T) {
	d := newTestDetector(t)

	n := &node{Value: 1}
	n.Next = n

	snap, err := d.Snapshot(n)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(snap.Untracked) != 0 {
		t.Errorf("Untracked = %v, want none", snap.Untracked)
	}
	if _, ok := snap.Fields["Next"]; !ok {
		t.Error("expected the self-referential field to be captured as a marker")
	}
}

type clocked struct {
	UpdatedAt time.Time
	Label     string
}

type opaque struct {
	hidden int
}

type withOpaque struct {
	Name   string
	Cursor opaque
}

func TestDetector_TimestampMutationIsVisible(t *testing.T) {
	d := newTestDetector(t)

	c := &clocked{UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Label: "v1"}
	before, err := d.Snapshot(c)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	c.UpdatedAt = c.UpdatedAt.Add(time.Hour)
	after, err := d.Snapshot(c)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	report := d.Diff("Touch", before, after)
	if !report.HasChanges() {
		t.Fatal("timestamp mutation produced no changes")
	}
	if got := report.ChangesFor("UpdatedAt"); len(got) != 1 {
		t.Errorf("ChangesFor(UpdatedAt) = %+v, want the timestamp change", got)
	}
}

func TestDetector_OpaqueStructGoesUntracked(t *testing.T) {
	d := newTestDetector(t)

	snap, err := d.Snapshot(&withOpaque{Name: "reader", Cursor: opaque{hidden: 1}})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if _, ok := snap.Fields["Name"]; !ok {
		t.Error("expected Name to be captured")
	}
	if !reflect.DeepEqual(snap.Untracked, []string{"Cursor"}) {
		t.Errorf("Untracked = %v, want [Cursor]", snap.Untracked)
	}

	// Strict capture refuses instead of silently flattening.
	strict := newTestDetector(t, WithStrict())
	_, err = strict.Snapshot(&withOpaque{Name: "reader"})
	var uerr *UnsnapshottableStateError
	if !errors.As(err, &uerr) || uerr.Attr != "Cursor" {
		t.Errorf("strict Snapshot() error = %v, want *UnsnapshottableStateError for Cursor", err)
	}
}

func TestSnapshot_SumIsStructural(t *testing.T) {
	d := newTestDetector(t)

	first, err := d.Snapshot(&counter{Count: 3, Label: "up"})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	// A different instance with equal values must hash identically.
	second, err := d.Snapshot(&counter{Count: 3, Label: "up"})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if !bytes.Equal(first.Sum(), second.Sum()) {
		t.Error("equal state produced different sums")
	}

	changed, err := d.Snapshot(&counter{Count: 4, Label: "up"})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if bytes.Equal(first.Sum(), changed.Sum()) {
		t.Error("different state produced the same sum")
	}
}

func TestChanged(t *testing.T) {
	d := newTestDetector(t)

	c := &counter{Count: 1}
	before, err := d.Snapshot(c)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	same, err := d.Snapshot(c)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if Changed(before, same) {
		t.Error("Changed() = true for identical state")
	}

	c.Count++
	after, err := d.Snapshot(c)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if !Changed(before, after) {
		t.Error("Changed() = false after a mutation")
	}
}
