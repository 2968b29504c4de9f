package flags

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Flag is an immutable declaration of a typed runtime flag. Its live value
// is read from a Store through a Manager.
type Flag[T any] struct {
	name  string
	def   T
	kind  string
	parse func(raw string) (T, error)
}

// Name returns the property name of the flag.
func (f Flag[T]) Name() string { return f.name }

// Default returns the value used when the property is absent or invalid.
func (f Flag[T]) Default() T { return f.def }

// Kind returns the flag type name ("bool", "int32", ...).
func (f Flag[T]) Kind() string { return f.kind }

// Parse converts a raw property value.
func (f Flag[T]) Parse(raw string) (T, error) { return f.parse(raw) }

// Bool declares a boolean flag. Accepted values are those of
// strconv.ParseBool.
func Bool(name string, def bool) Flag[bool] {
	return Flag[bool]{name: name, def: def, kind: "bool", parse: func(raw string) (bool, error) {
		return strconv.ParseBool(strings.TrimSpace(raw))
	}}
}

// Int32 declares a 32-bit integer flag.
func Int32(name string, def int32) Flag[int32] {
	return Flag[int32]{name: name, def: def, kind: "int32", parse: func(raw string) (int32, error) {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		return int32(v), err
	}}
}

// Int64 declares a 64-bit integer flag.
func Int64(name string, def int64) Flag[int64] {
	return Flag[int64]{name: name, def: def, kind: "int64", parse: func(raw string) (int64, error) {
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	}}
}

// Float64 declares a floating point flag.
func Float64(name string, def float64) Flag[float64] {
	return Flag[float64]{name: name, def: def, kind: "float", parse: func(raw string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	}}
}

// String declares a string flag. Any raw value is valid.
func String(name string, def string) Flag[string] {
	return Flag[string]{name: name, def: def, kind: "string", parse: func(raw string) (string, error) {
		return raw, nil
	}}
}

// Enum declares a flag restricted to values. The raw property must equal
// one of them exactly.
func Enum[E ~string](name string, def E, values ...E) Flag[E] {
	allowed := slices.Clone(values)
	return Flag[E]{name: name, def: def, kind: "enum", parse: func(raw string) (E, error) {
		candidate := E(strings.TrimSpace(raw))
		if slices.Contains(allowed, candidate) {
			return candidate, nil
		}
		var zero E
		return zero, fmt.Errorf("%q is not one of %v", raw, allowed)
	}}
}

// StringList declares a comma separated list flag. Segments are trimmed
// and empty segments dropped, so "a, ,b," yields [a b].
func StringList(name string, def []string) Flag[[]string] {
	return Flag[[]string]{name: name, def: def, kind: "string-list", parse: func(raw string) ([]string, error) {
		return SplitList(raw), nil
	}}
}

// SplitList splits a comma separated property value.
func SplitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AnyHasPrefix reports whether any of names starts with prefix.
func AnyHasPrefix(names []string, prefix string) bool {
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
