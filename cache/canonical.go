package cache

import (
	"encoding"
	"fmt"
	"reflect"
)

// canonicalize rewrites a value into a shape the codec encodes
// deterministically. The msgpack sorted-keys option covers only
// map[string]any, so every map is normalized to that form and structs are
// flattened to one, with nested values rewritten recursively. Types carrying
// their own textual form (time.Time and other TextMarshalers) are reduced to
// that form so they never fall into the generic struct walk. Cyclic argument
// graphs are reported as errors instead of recursed unbounded.
func canonicalize(v any, visited map[uintptr]struct{}) (any, error) {
	if v == nil {
		return nil, nil
	}

	if tm, ok := v.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("marshal text: %w", err)
		}
		return string(text), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		addr := rv.Pointer()
		if _, seen := visited[addr]; seen {
			return nil, fmt.Errorf("cyclic value of type %T", v)
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		return canonicalize(rv.Elem().Interface(), visited)

	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return canonicalize(rv.Elem().Interface(), visited)

	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		addr := rv.Pointer()
		if _, seen := visited[addr]; seen {
			return nil, fmt.Errorf("cyclic value of type %T", v)
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			val, err := canonicalize(iter.Value().Interface(), visited)
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
			return nil, fmt.Errorf("cyclic value of type %T", v)
		}
		visited[addr] = struct{}{}
		defer delete(visited, addr)
		return canonicalizeSequence(rv, visited)

	case reflect.Array:
		return canonicalizeSequence(rv, visited)

	case reflect.Struct:
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			val, err := canonicalize(rv.Field(i).Interface(), visited)
			if err != nil {
				return nil, err
			}
			out[field.Name] = val
		}
		// A struct whose state is entirely unexported would flatten to an
		// empty map and make all its values fingerprint-equal.
		if len(out) == 0 && rt.NumField() > 0 {
			return nil, fmt.Errorf("type %T has no exported fields", v)
		}
		return out, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("value of kind %s is not serializable", rv.Kind())

	default:
		return v, nil
	}
}

func canonicalizeSequence(rv reflect.Value, visited map[uintptr]struct{}) (any, error) {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, err := canonicalize(rv.Index(i).Interface(), visited)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}
