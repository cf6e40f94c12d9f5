package cache

import (
	"reflect"
	"sort"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Target identifies a cacheable operation: an owning type (or logical owner
// name) plus a method name. Targets are immutable value types; two calls on
// the same owner/method pair share a Target.
type Target struct {
	Owner  string
	Method string
}

// TargetOf derives a Target from a live instance and a method name. Pointer
// types are unwrapped so *Estimator and Estimator map to the same owner.
func TargetOf(instance any, method string) Target {
	return Target{Owner: ownerName(instance), Method: method}
}

// Key returns the registry identity for this target.
func (t Target) Key() string {
	return t.Owner + KeySeparator + t.Method
}

func (t Target) String() string {
	return t.Owner + "." + t.Method
}

func ownerName(instance any) string {
	if instance == nil {
		return "nil"
	}
	rt := reflect.TypeOf(instance)
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if name := rt.Name(); name != "" {
		if pkg := rt.PkgPath(); pkg != "" {
			return pkg + "." + name
		}
		return name
	}
	// Anonymous types fall back to their full string form.
	return rt.String()
}

// Invocation captures one call: ordered positional arguments plus an
// optional keyword-style mapping. Keyword names are sorted before they are
// fingerprinted, so map iteration order never leaks into keys.
type Invocation struct {
	Args   []any
	Kwargs map[string]any
}

// SortedKwargs returns the keyword names in deterministic order.
func (inv Invocation) SortedKwargs() []string {
	if len(inv.Kwargs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(inv.Kwargs))
	for k := range inv.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
