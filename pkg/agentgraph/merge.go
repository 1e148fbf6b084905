package agentgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// StateMerger combines a node's output with the current state.
// Use Graph.WithStateMerger to replace the default strategy.
type StateMerger[S any] interface {
	Merge(nodeID string, current, update S) (S, error)
}

// StateMergerFunc adapts a function to the StateMerger interface.
type StateMergerFunc[S any] func(nodeID string, current, update S) (S, error)

// Merge implements StateMerger.
func (f StateMergerFunc[S]) Merge(nodeID string, current, update S) (S, error) {
	return f(nodeID, current, update)
}

// replaceMerger is the default when no channels are bound: the node output
// becomes the new state.
type replaceMerger[S any] struct{}

func (replaceMerger[S]) Merge(_ string, _, update S) (S, error) {
	return update, nil
}

// fieldBinding is a channel bound to one struct field or map key.
type fieldBinding struct {
	name      string
	index     []int
	valueType reflect.Type
	merge     reflect.Value
}

func (b fieldBinding) call(nodeID string, current, write reflect.Value, written bool) (reflect.Value, error) {
	out := b.merge.Call([]reflect.Value{
		reflect.ValueOf(nodeID),
		current,
		write,
		reflect.ValueOf(written),
	})
	if errv := out[1]; !errv.IsNil() {
		return reflect.Value{}, errv.Interface().(error)
	}
	return out[0], nil
}

var errorType = reflect.TypeFor[error]()

// bindChannels validates channel bindings against the state type S.
// Channels must expose Merge(string, V, V, bool) (V, error); for struct
// states V must equal the field's type.
func bindChannels[S any](names []string, channels map[string]any) ([]fieldBinding, error) {
	if len(names) == 0 {
		return nil, nil
	}

	stateType := reflect.TypeFor[S]()
	isMap := stateType.Kind() == reflect.Map &&
		stateType.Key().Kind() == reflect.String &&
		stateType.Elem().Kind() == reflect.Interface
	if stateType.Kind() != reflect.Struct && !isMap {
		return nil, &GraphError{
			Kind:   ErrInvalidChannel,
			Detail: fmt.Sprintf("channels need a struct or map[string]any state, got %s", stateType),
		}
	}

	bindings := make([]fieldBinding, 0, len(names))
	for _, name := range names {
		ch := channels[name]
		if ch == nil {
			return nil, &GraphError{Kind: ErrInvalidChannel, Detail: fmt.Sprintf("field %s: channel is nil", name)}
		}

		merge := reflect.ValueOf(ch).MethodByName("Merge")
		if !merge.IsValid() {
			return nil, &GraphError{Kind: ErrInvalidChannel, Detail: fmt.Sprintf("field %s: %T has no Merge method", name, ch)}
		}
		mt := merge.Type()
		if mt.NumIn() != 4 || mt.NumOut() != 2 ||
			mt.In(0).Kind() != reflect.String || mt.In(3).Kind() != reflect.Bool ||
			mt.In(1) != mt.In(2) || mt.Out(0) != mt.In(1) || mt.Out(1) != errorType {
			return nil, &GraphError{Kind: ErrInvalidChannel, Detail: fmt.Sprintf("field %s: %T is not a Channel", name, ch)}
		}
		valueType := mt.In(1)

		b := fieldBinding{name: name, valueType: valueType, merge: merge}
		if !isMap {
			field, ok := stateType.FieldByName(name)
			if !ok || !field.IsExported() {
				return nil, &GraphError{Kind: ErrInvalidChannel, Detail: fmt.Sprintf("state %s has no exported field %s", stateType, name)}
			}
			if field.Type != valueType {
				return nil, &GraphError{
					Kind:   ErrInvalidChannel,
					Detail: fmt.Sprintf("field %s has type %s, channel expects %s", name, field.Type, valueType),
				}
			}
			b.index = field.Index
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// channelMerger applies per-field channels. Fields without a channel take
// the latest non-zero write. With no bindings it is a plain field overlay.
type channelMerger[S any] struct {
	bindings []fieldBinding
}

func (m channelMerger[S]) Merge(nodeID string, current, update S) (S, error) {
	cur := reflect.ValueOf(&current).Elem()
	upd := reflect.ValueOf(&update).Elem()

	switch cur.Kind() {
	case reflect.Struct:
		return m.mergeStruct(nodeID, cur, upd)
	case reflect.Map:
		if cur.Type().Key().Kind() == reflect.String {
			return m.mergeMap(nodeID, cur, upd)
		}
	}
	return update, nil
}

func (m channelMerger[S]) mergeStruct(nodeID string, cur, upd reflect.Value) (S, error) {
	var out S
	dst := reflect.ValueOf(&out).Elem()
	dst.Set(cur)

	bound := make(map[int]bool, len(m.bindings))
	for _, b := range m.bindings {
		bound[b.index[0]] = true
		write := upd.FieldByIndex(b.index)
		merged, err := b.call(nodeID, cur.FieldByIndex(b.index), write, !write.IsZero())
		if err != nil {
			return out, &MergeError{NodeID: nodeID, Field: b.name, Err: err}
		}
		dst.FieldByIndex(b.index).Set(merged)
	}

	t := cur.Type()
	for i := range t.NumField() {
		if bound[i] || !t.Field(i).IsExported() {
			continue
		}
		if w := upd.Field(i); !w.IsZero() {
			dst.Field(i).Set(w)
		}
	}
	return out, nil
}

func (m channelMerger[S]) mergeMap(nodeID string, cur, upd reflect.Value) (S, error) {
	var out S
	dst := reflect.MakeMapWithSize(cur.Type(), cur.Len()+upd.Len())
	iter := cur.MapRange()
	for iter.Next() {
		dst.SetMapIndex(iter.Key(), iter.Value())
	}

	bound := make(map[string]bool, len(m.bindings))
	for _, b := range m.bindings {
		bound[b.name] = true
		key := reflect.ValueOf(b.name).Convert(cur.Type().Key())

		current, err := mapValue(cur, key, b.valueType)
		if err != nil {
			return out, &MergeError{NodeID: nodeID, Field: b.name, Err: err}
		}
		written := upd.IsValid() && !upd.IsNil() && upd.MapIndex(key).IsValid()
		write := reflect.Zero(b.valueType)
		if written {
			if write, err = mapValue(upd, key, b.valueType); err != nil {
				return out, &MergeError{NodeID: nodeID, Field: b.name, Err: err}
			}
		}

		merged, err := b.call(nodeID, current, write, written)
		if err != nil {
			return out, &MergeError{NodeID: nodeID, Field: b.name, Err: err}
		}
		dst.SetMapIndex(key, merged)
	}

	if upd.IsValid() && !upd.IsNil() {
		keys := upd.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
		for _, key := range keys {
			if bound[key.String()] {
				continue
			}
			dst.SetMapIndex(key, upd.MapIndex(key))
		}
	}

	reflect.ValueOf(&out).Elem().Set(dst)
	return out, nil
}

// mapValue reads key from a map[string]any and converts it to t. Values that
// came back from a JSON checkpoint ([]any, float64) are re-decoded into t.
func mapValue(m, key reflect.Value, t reflect.Type) (reflect.Value, error) {
	if m.IsNil() {
		return reflect.Zero(t), nil
	}
	v := m.MapIndex(key)
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		v = v.Elem()
	}
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return reflect.Value{}, fmt.Errorf("convert %s to %s: %w", v.Type(), t, err)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("convert %s to %s: %w", v.Type(), t, err)
	}
	return ptr.Elem(), nil
}

// asMergeError tags merger errors with the node they came from.
func asMergeError(nodeID string, err error) error {
	var me *MergeError
	if errors.As(err, &me) {
		return err
	}
	return &MergeError{NodeID: nodeID, Err: err}
}
