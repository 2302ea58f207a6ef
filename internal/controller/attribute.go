package controller

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// resolveAttribute walks path from obj. Each segment is tried as a zero-argument
// method, then a struct field, then a map key.
func resolveAttribute(obj any, path []string) (any, error) {
	cur := reflect.ValueOf(obj)
	for _, seg := range path {
		next, err := step(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if !cur.IsValid() {
		return nil, nil
	}
	return cur.Interface(), nil
}

func step(v reflect.Value, seg string) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("attribute %q of nil value", seg)
	}
	if m := v.MethodByName(seg); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
		out := m.Call(nil)
		if len(out) == 2 && out[1].Type().Implements(errorType) && !out[1].IsNil() {
			return reflect.Value{}, fmt.Errorf("attribute %q: %w", seg, out[1].Interface().(error))
		}
		return out[0], nil
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("attribute %q of nil value", seg)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		f := v.FieldByName(seg)
		if !f.IsValid() || !f.CanInterface() {
			return reflect.Value{}, fmt.Errorf("no exported field %q on %s", seg, v.Type())
		}
		return f, nil
	case reflect.Map:
		kt := v.Type().Key()
		if kt.Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("map key %q: keys of %s are not strings", seg, v.Type())
		}
		val := v.MapIndex(reflect.ValueOf(seg).Convert(kt))
		if !val.IsValid() {
			return reflect.Value{}, fmt.Errorf("no map key %q", seg)
		}
		return val, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot read %q from %s", seg, v.Type())
}
