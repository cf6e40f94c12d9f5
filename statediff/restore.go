package statediff

import (
	"fmt"
	"reflect"
)

// Restore applies a previously captured snapshot back onto the instance.
// Types implementing Restorer receive the decoded attribute map; otherwise
// the detector writes exported struct fields through reflection, which
// requires a pointer to struct. Attributes the instance no longer has are
// skipped.
//
// Restoring is what makes a stateful cache hit equivalent to re-running the
// call: the instance ends up in the same observable state the original
// execution left it in.
func (d *Detector) Restore(instance any, snap Snapshot) error {
	if r, ok := instance.(Restorer); ok {
		attrs := make(map[string]any, len(snap.Fields))
		for name, data := range snap.Fields {
			var v any
			if err := d.codec.Unmarshal(data, &v); err != nil {
				return &UnsnapshottableStateError{Attr: name, Err: err}
			}
			attrs[name] = v
		}
		if err := r.RestoreCacheState(attrs); err != nil {
			return &UnsnapshottableStateError{Err: err}
		}
		return nil
	}

	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &UnsnapshottableStateError{Err: fmt.Errorf("restore requires a pointer instance, got %T", instance)}
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return &UnsnapshottableStateError{Err: fmt.Errorf("restore requires a struct instance, got %T", instance)}
	}

	rt := rv.Type()
	for name, data := range snap.Fields {
		field, ok := rt.FieldByName(name)
		if !ok || !field.IsExported() {
			continue
		}
		target := reflect.New(field.Type)
		if err := d.codec.Unmarshal(data, target.Interface()); err != nil {
			return &UnsnapshottableStateError{Attr: name, Err: err}
		}
		rv.FieldByIndex(field.Index).Set(target.Elem())
	}
	return nil
}
