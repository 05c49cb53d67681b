package document

import (
	"encoding/json"
	"reflect"
)

// CloneTree deep-copies a tree. A nil tree stays nil.
func CloneTree(tree Tree) Tree {
	if tree == nil {
		return nil
	}
	return Clone(tree).(map[string]any)
}

// Normalize converts typed slices, maps and structs into the shapes a tree
// holds (map[string]any, []any, float64) so paths can descend into them.
// Tree-shaped values and scalars pass through. A value that does not encode
// as JSON is returned unchanged.
func Normalize(value any) any {
	switch value.(type) {
	case nil, string, bool, map[string]any, []any:
		return value
	}
	if _, ok := number(value); ok || !composite(value) {
		return value
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return value
	}
	return decoded
}

func composite(value any) bool {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Pointer:
		return true
	default:
		return false
	}
}

// Clone deep-copies a JSON-shaped value. Other slices, maps and structs are
// copied through Normalize. Scalars are returned as is.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(v))
		for key, item := range v {
			copied[key] = Clone(item)
		}
		return copied
	case []any:
		copied := make([]any, len(v))
		for i, item := range v {
			copied[i] = Clone(item)
		}
		return copied
	case []string:
		copied := make([]string, len(v))
		copy(copied, v)
		return copied
	case map[string]bool:
		copied := make(map[string]bool, len(v))
		for key, item := range v {
			copied[key] = item
		}
		return copied
	default:
		if composite(value) {
			return Normalize(value)
		}
		return value
	}
}

// Equal compares two values structurally after Normalize. Numbers compare
// by value regardless of Go type, so 3 equals float64(3) and []int{1}
// equals []any{1.0}.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, item := range av {
			other, ok := bv[key]
			if !ok || !Equal(item, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
