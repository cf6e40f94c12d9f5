package statediff

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ChangeKind classifies one attribute change.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeModified
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// FieldChange records a single attribute difference between two snapshots.
type FieldChange struct {
	// Name is the top-level attribute the change belongs to.
	Name string

	// Path locates nested changes, e.g. "Metadata[level]" or "History[2]".
	Path string

	Kind   ChangeKind
	Before any
	After  any
}

func (c FieldChange) String() string {
	path := c.Path
	if path == "" {
		path = c.Name
	}
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("ADDED: %s = %v", path, c.After)
	case ChangeRemoved:
		return fmt.Sprintf("REMOVED: %s (was %v)", path, c.Before)
	default:
		return fmt.Sprintf("MODIFIED: %s: %v -> %v", path, c.Before, c.After)
	}
}

// ChangeReport is the result of diffing a pre- and post-call snapshot.
type ChangeReport struct {
	Method  string
	Changes []FieldChange
}

// HasChanges reports whether any compared field differed.
func (r ChangeReport) HasChanges() bool {
	return len(r.Changes) > 0
}

// Added returns the changes that introduced attributes.
func (r ChangeReport) Added() []FieldChange {
	return r.filter(ChangeAdded)
}

// Removed returns the changes that dropped attributes.
func (r ChangeReport) Removed() []FieldChange {
	return r.filter(ChangeRemoved)
}

// Modified returns the in-place value changes.
func (r ChangeReport) Modified() []FieldChange {
	return r.filter(ChangeModified)
}

// ChangesFor returns the changes whose name or path matches.
func (r ChangeReport) ChangesFor(path string) []FieldChange {
	var out []FieldChange
	for _, c := range r.Changes {
		if c.Path == path || c.Name == path {
			out = append(out, c)
		}
	}
	return out
}

func (r ChangeReport) filter(kind ChangeKind) []FieldChange {
	var out []FieldChange
	for _, c := range r.Changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (r ChangeReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ChangeReport(method=%q, changes=%d)", r.Method, len(r.Changes))
	for _, c := range r.Changes {
		b.WriteString("\n  ")
		b.WriteString(c.String())
	}
	return b.String()
}

// Diff structurally compares two snapshots taken with the same detector.
// Attributes whose canonical bytes are equal are value-equal and skipped
// without decoding; unequal attributes are decoded and walked to pinpoint
// the nested difference.
func (d *Detector) Diff(method string, before, after Snapshot) ChangeReport {
	report := ChangeReport{Method: method}

	names := make(map[string]struct{}, len(before.Fields)+len(after.Fields))
	for name := range before.Fields {
		names[name] = struct{}{}
	}
	for name := range after.Fields {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		oldData, inOld := before.Fields[name]
		newData, inNew := after.Fields[name]

		switch {
		case !inOld:
			report.Changes = append(report.Changes, FieldChange{
				Name: name, Path: name, Kind: ChangeAdded, After: d.decode(newData),
			})
		case !inNew:
			report.Changes = append(report.Changes, FieldChange{
				Name: name, Path: name, Kind: ChangeRemoved, Before: d.decode(oldData),
			})
		case !bytes.Equal(oldData, newData):
			report.Changes = append(report.Changes,
				compareValues(name, name, d.decode(oldData), d.decode(newData))...)
		}
	}

	return report
}

// Changed is the cheap probe: it compares the xxhash digests of the two
// snapshots without decoding anything. Callers that only gate behavior on
// "did the tracked state change" use this path.
func Changed(before, after Snapshot) bool {
	return before.Digest() != after.Digest()
}

func (d *Detector) decode(data []byte) any {
	var v any
	if err := d.codec.Unmarshal(data, &v); err != nil {
		return fmt.Sprintf("<undecodable: %v>", err)
	}
	return v
}

// compareValues walks two decoded values and reports nested differences.
// Decoded codec values are maps, slices, and primitives, so the walk is
// naturally acyclic.
func compareValues(name, path string, old, new any) []FieldChange {
	if reflect.DeepEqual(old, new) {
		return nil
	}

	oldMap, oldIsMap := asStringMap(old)
	newMap, newIsMap := asStringMap(new)
	if oldIsMap && newIsMap {
		return compareMaps(name, path, oldMap, newMap)
	}

	oldSeq, oldIsSeq := old.([]any)
	newSeq, newIsSeq := new.([]any)
	if oldIsSeq && newIsSeq {
		return compareSequences(name, path, oldSeq, newSeq)
	}

	return []FieldChange{{Name: name, Path: path, Kind: ChangeModified, Before: old, After: new}}
}

func compareMaps(name, path string, old, new map[string]any) []FieldChange {
	var changes []FieldChange

	keys := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		keyPath := fmt.Sprintf("%s[%s]", path, k)
		oldVal, inOld := old[k]
		newVal, inNew := new[k]
		switch {
		case !inOld:
			changes = append(changes, FieldChange{Name: name, Path: keyPath, Kind: ChangeAdded, After: newVal})
		case !inNew:
			changes = append(changes, FieldChange{Name: name, Path: keyPath, Kind: ChangeRemoved, Before: oldVal})
		default:
			changes = append(changes, compareValues(name, keyPath, oldVal, newVal)...)
		}
	}
	return changes
}

func compareSequences(name, path string, old, new []any) []FieldChange {
	var changes []FieldChange

	common := len(old)
	if len(new) < common {
		common = len(new)
	}
	for i := 0; i < common; i++ {
		changes = append(changes, compareValues(name, fmt.Sprintf("%s[%d]", path, i), old[i], new[i])...)
	}
	for i := common; i < len(new); i++ {
		changes = append(changes, FieldChange{
			Name: name, Path: fmt.Sprintf("%s[%d]", path, i), Kind: ChangeAdded, After: new[i],
		})
	}
	for i := common; i < len(old); i++ {
		changes = append(changes, FieldChange{
			Name: name, Path: fmt.Sprintf("%s[%d]", path, i), Kind: ChangeRemoved, Before: old[i],
		})
	}
	return changes
}

// asStringMap normalizes decoded map forms. The codec decodes maps with
// string keys as map[string]any and everything else as map[any]any.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
