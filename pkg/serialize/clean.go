package serialize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

const maxCleanDepth = 32

// OpaqueKeys name map entries that carry verbatim content. DeepClean leaves their
// values alone.
var OpaqueKeys = map[string]struct{}{
	"content":          {},
	"markdown_content": {},
	"html_content":     {},
}

// DeepClean returns a copy of value with every string leaf sanitized for ContextAPI.
// Maps with string keys become map[string]any and slices become []any; other leaves
// are returned as they are.
func DeepClean(value any) any {
	return clean(value, 0, false)
}

// SafeSerialize always returns JSON text. It tries a plain marshal first, then a
// cleaned copy with unserializable leaves coerced to strings, then the string form
// of the value.
func SafeSerialize(value any) string {
	if out, ok := tryMarshal(func() any { return value }); ok {
		return out
	}
	if out, ok := tryMarshal(func() any { return clean(value, 0, true) }); ok {
		return out
	}
	if out, ok := tryMarshal(func() any { return stringForm(value) }); ok {
		return out
	}
	return `""`
}

// tryMarshal also guards against panicking MarshalJSON and String methods.
func tryMarshal(build func() any) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = "", false
		}
	}()
	raw, err := json.Marshal(build())
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func clean(value any, depth int, coerce bool) any {
	if value == nil {
		return nil
	}
	if depth > maxCleanDepth {
		if coerce {
			return fmt.Sprintf("%T", value)
		}
		return value
	}

	switch v := value.(type) {
	case string:
		return sanitizeAPI(v)
	case json.RawMessage:
		return v
	case []byte:
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if _, opaque := OpaqueKeys[k]; opaque {
				out[k] = item
				continue
			}
			out[k] = clean(item, depth+1, coerce)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clean(item, depth+1, coerce)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return leaf(value, coerce)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if _, opaque := OpaqueKeys[k]; opaque {
				out[k] = iter.Value().Interface()
				continue
			}
			out[k] = clean(iter.Value().Interface(), depth+1, coerce)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return value
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = clean(rv.Index(i).Interface(), depth+1, coerce)
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if coerce {
			return clean(rv.Elem().Interface(), depth+1, coerce)
		}
		return value
	}
	return leaf(value, coerce)
}

func leaf(value any, coerce bool) any {
	if !coerce {
		return value
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return stringForm(value)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return stringForm(value)
		}
	case reflect.Map:
		return stringForm(value)
	}
	return value
}

// stringForm never walks containers, so cyclic values cannot recurse.
func stringForm(value any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("%T", value)
		}
	}()
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		return fmt.Sprintf("%T", value)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T", value)
	}
	return fmt.Sprint(value)
}
