package intercept

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
)

// Limits bounds argument serialization so arbitrary host values cannot
// blow up an entry.
type Limits struct {
	// MaxDepth bounds recursion into nested values. Default: 3
	MaxDepth int
	// MaxKeys bounds serialized map/struct keys. Default: 20
	MaxKeys int
	// MaxElems bounds serialized slice/array elements. Default: 10
	MaxElems int
}

func (l *Limits) applyDefaults() {
	if l.MaxDepth <= 0 {
		l.MaxDepth = 3
	}
	if l.MaxKeys <= 0 {
		l.MaxKeys = 20
	}
	if l.MaxElems <= 0 {
		l.MaxElems = 10
	}
}

// SerializeArgs renders each captured argument to a bounded string.
// Serialization never propagates a failure: anything that cannot be
// represented becomes a placeholder.
func SerializeArgs(args []interface{}, limits Limits) []string {
	limits.applyDefaults()
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = serializeOne(a, limits)
	}
	return out
}

// serializeOne renders a single value, containing any panic from
// reflection or custom marshalers.
func serializeOne(v interface{}, limits Limits) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("[unserializable %T]", v)
		}
	}()

	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case error:
		return fmt.Sprintf(`{"name":%q,"message":%q}`, fmt.Sprintf("%T", t), t.Error())
	}

	seen := make(map[uintptr]bool)
	tree := toTree(reflect.ValueOf(v), limits, 0, seen)
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Sprintf("[unserializable %T]", v)
	}
	return string(data)
}

// toTree converts a value into a JSON-safe tree, depth-bounded and
// cycle-safe. Cycles and exceeded depth collapse to marker strings.
func toTree(rv reflect.Value, limits Limits, depth int, seen map[uintptr]bool) interface{} {
	if !rv.IsValid() {
		return nil
	}
	if depth > limits.MaxDepth {
		return "[max depth]"
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()

	case reflect.Func:
		name := "anonymous"
		if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
			name = fn.Name()
		}
		return "[func " + name + "]"

	case reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("[%s]", rv.Kind())

	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return toTree(rv.Elem(), limits, depth, seen)

	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return "[cycle]"
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return toTree(rv.Elem(), limits, depth, seen)

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return "[cycle]"
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return arrayTree(rv, limits, depth, seen)

	case reflect.Array:
		return arrayTree(rv, limits, depth, seen)

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return "[cycle]"
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		out := make(map[string]interface{})
		keys := rv.MapKeys()
		for i, k := range keys {
			if i >= limits.MaxKeys {
				out["..."] = fmt.Sprintf("[%d more keys]", len(keys)-limits.MaxKeys)
				break
			}
			out[fmt.Sprint(k.Interface())] = toTree(rv.MapIndex(k), limits, depth+1, seen)
		}
		return out

	case reflect.Struct:
		out := make(map[string]interface{})
		t := rv.Type()
		emitted := 0
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if emitted >= limits.MaxKeys {
				out["..."] = "[more fields]"
				break
			}
			out[t.Field(i).Name] = toTree(rv.Field(i), limits, depth+1, seen)
			emitted++
		}
		return out

	default:
		return fmt.Sprintf("[%s]", rv.Kind())
	}
}

func arrayTree(rv reflect.Value, limits Limits, depth int, seen map[uintptr]bool) interface{} {
	n := rv.Len()
	capped := n
	if capped > limits.MaxElems {
		capped = limits.MaxElems
	}
	out := make([]interface{}, 0, capped+1)
	for i := 0; i < capped; i++ {
		out = append(out, toTree(rv.Index(i), limits, depth+1, seen))
	}
	if n > capped {
		out = append(out, fmt.Sprintf("[%d more elements]", n-capped))
	}
	return out
}

// captureStack records up to depth frames, skipping skipInner frames of
// the interceptor itself (plus captureStack's own frame).
func captureStack(skipInner, depth int) []string {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(2+skipInner, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more || len(out) >= depth {
			break
		}
	}
	return out
}
