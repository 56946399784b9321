package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Truthy coerces v to a boolean the way logical gates read their inputs:
// Null is false, numbers are true when non-zero, strings when non-empty,
// arrays and objects when non-empty.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0 && !math.IsNaN(float64(val))
	case String:
		return val != ""
	case Array:
		return len(val) > 0
	case Object:
		return len(val) > 0
	}
	return false
}

// AsBool returns the boolean if v is a Bool.
func AsBool(v Value) (bool, bool) {
	b, ok := v.(Bool)
	return bool(b), ok
}

// AsInt returns v as int64. Floats with an integral value convert.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f), true
		}
	}
	return 0, false
}

// AsFloat returns v as float64 for Int and Float values.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	}
	return 0, false
}

// AsString returns the string if v is a String.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// Number returns an Int when f is integral and fits, otherwise a Float.
// Arithmetic operations use it so that 1+2 stays an Int.
func Number(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return Float(f)
}

// FromAny converts decoded Go data (JSON, YAML, TOML, CEL natives) to a
// Value. Unsupported types return an error.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(int64(val)), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			obj[ks] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromAny is FromAny for literals in tests and built-in type tables.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ToAny converts v to plain Go data (nil, bool, int64, float64, string,
// []any, map[string]any).
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	}
	return nil
}
