package value

import (
	"math"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface. Only the types in this package implement it.
type Value interface {
	value()
}

// Null is the absent value. Properties without a default start as Null.
type Null struct{}

func (Null) value() {}

// Bool is a boolean property value.
type Bool bool

func (Bool) value() {}

// Int is an integral number.
type Int int64

func (Int) value() {}

// Float is a floating point number.
type Float float64

func (Float) value() {}

// String is a text value.
type String string

func (String) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object maps keys to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys ordered by UTF-16 code units, the order used by
// canonical JSON.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports structural equality. A nil Value equals Null.
// Int and Float are compared numerically.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int, Float:
		x, xok := AsFloat(a)
		y, yok := AsFloat(b)
		if !xok || !yok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

// Kind names the dynamic type of v ("null", "bool", "number", "string",
// "array", "object"). Int and Float are both "number".
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return "bool"
	case Int, Float:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	switch v.(type) {
	case nil, Null:
		return true
	}
	return false
}
