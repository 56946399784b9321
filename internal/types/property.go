package types

import (
	"fmt"

	"github.com/roach88/rgf/internal/value"
)

// DataType is the declared type of a property.
type DataType string

const (
	DataTypeNull   DataType = "null"
	DataTypeBool   DataType = "bool"
	DataTypeNumber DataType = "number"
	DataTypeString DataType = "string"
	DataTypeArray  DataType = "array"
	DataTypeObject DataType = "object"
	DataTypeAny    DataType = "any"
)

// ParseDataType accepts the lower-case names above. The empty string maps
// to DataTypeAny.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case "":
		return DataTypeAny, nil
	case DataTypeNull, DataTypeBool, DataTypeNumber, DataTypeString,
		DataTypeArray, DataTypeObject, DataTypeAny:
		return DataType(s), nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// DefaultValue returns the value a new property of this type starts with.
func (d DataType) DefaultValue() value.Value {
	switch d {
	case DataTypeBool:
		return value.Bool(false)
	case DataTypeNumber:
		return value.Int(0)
	case DataTypeString:
		return value.String("")
	case DataTypeArray:
		return value.Array{}
	case DataTypeObject:
		return value.Object{}
	}
	return value.Null{}
}

// Accepts reports whether v matches the data type. Null is accepted
// everywhere so that a property can be cleared.
func (d DataType) Accepts(v value.Value) bool {
	if d == DataTypeAny || value.IsNull(v) {
		return true
	}
	return value.Kind(v) == string(d)
}

// SocketType marks a property as an input or output of a behaviour.
type SocketType string

const (
	SocketNone   SocketType = "none"
	SocketInput  SocketType = "input"
	SocketOutput SocketType = "output"
)

// ParseSocketType accepts none, input and output. Empty means none.
func ParseSocketType(s string) (SocketType, error) {
	switch SocketType(s) {
	case "":
		return SocketNone, nil
	case SocketNone, SocketInput, SocketOutput:
		return SocketType(s), nil
	}
	return "", fmt.Errorf("unknown socket type %q", s)
}

// Mutability controls whether a property may be written after creation.
type Mutability string

const (
	Mutable   Mutability = "mutable"
	Immutable Mutability = "immutable"
)

// ParseMutability accepts mutable and immutable. Empty means mutable.
func ParseMutability(s string) (Mutability, error) {
	switch Mutability(s) {
	case "":
		return Mutable, nil
	case Mutable, Immutable:
		return Mutability(s), nil
	}
	return "", fmt.Errorf("unknown mutability %q", s)
}

// Extensions is free-form structured metadata attached to a type or
// property.
type Extensions map[string]value.Value

// PropertyType declares one property of a component, entity type or
// relation type.
type PropertyType struct {
	Name        string
	Description string
	DataType    DataType
	SocketType  SocketType
	Mutability  Mutability

	// Default overrides DataType.DefaultValue when set.
	Default    value.Value
	Extensions Extensions
}

// NewProperty declares a mutable property with no socket.
func NewProperty(name string, dt DataType) PropertyType {
	return PropertyType{Name: name, DataType: dt, SocketType: SocketNone, Mutability: Mutable}
}

// InputProperty declares an input socket.
func InputProperty(name string, dt DataType) PropertyType {
	p := NewProperty(name, dt)
	p.SocketType = SocketInput
	return p
}

// OutputProperty declares an output socket.
func OutputProperty(name string, dt DataType) PropertyType {
	p := NewProperty(name, dt)
	p.SocketType = SocketOutput
	return p
}

// WithDefault returns a copy of p with an explicit default value.
func (p PropertyType) WithDefault(v value.Value) PropertyType {
	p.Default = v
	return p
}

// DefaultValue returns the initial value of the property.
func (p PropertyType) DefaultValue() value.Value {
	if p.Default != nil {
		return p.Default
	}
	return p.DataType.DefaultValue()
}

// mergeProperties lays component properties down first, in order, then
// the type's own. A later declaration with the same name replaces the
// earlier one in place.
func mergeProperties(groups ...[]PropertyType) []PropertyType {
	index := make(map[string]int)
	var out []PropertyType
	for _, group := range groups {
		for _, p := range group {
			if i, ok := index[p.Name]; ok {
				out[i] = p
				continue
			}
			index[p.Name] = len(out)
			out = append(out, p)
		}
	}
	return out
}
