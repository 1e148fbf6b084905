package agentgraph

import "reflect"

// Cloner lets a state type control how it is copied before each node
// attempt. States that don't implement it are deep-copied field by field.
type Cloner[S any] interface {
	Clone() S
}

// cloneState returns a copy of s that shares no maps, slices or pointers
// with it, so writes made by a failed attempt never reach the next attempt
// or the caller's input. Unexported struct fields, funcs and channels are
// copied by value.
func cloneState[S any](s S) S {
	if c, ok := any(s).(Cloner[S]); ok {
		return c.Clone()
	}

	v := reflect.ValueOf(&s).Elem()
	out := reflect.New(v.Type())
	out.Elem().Set(deepCopy(v, make(map[uintptr]reflect.Value)))
	return *out.Interface().(*S)
}

// deepCopy copies v recursively. seen maps pointers already copied to their
// copies, so shared and cyclic pointers keep their shape.
func deepCopy(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		dup := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			dup.SetMapIndex(iter.Key(), deepCopy(iter.Value(), seen))
		}
		return dup

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		dup := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			dup.Index(i).Set(deepCopy(v.Index(i), seen))
		}
		return dup

	case reflect.Array:
		dup := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			dup.Index(i).Set(deepCopy(v.Index(i), seen))
		}
		return dup

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if dup, ok := seen[v.Pointer()]; ok {
			return dup
		}
		dup := reflect.New(v.Type().Elem())
		seen[v.Pointer()] = dup
		dup.Elem().Set(deepCopy(v.Elem(), seen))
		return dup

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		dup := reflect.New(v.Type()).Elem()
		dup.Set(deepCopy(v.Elem(), seen))
		return dup

	case reflect.Struct:
		dup := reflect.New(v.Type()).Elem()
		dup.Set(v)
		t := v.Type()
		for i := range v.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			dup.Field(i).Set(deepCopy(v.Field(i), seen))
		}
		return dup

	default:
		return v
	}
}
