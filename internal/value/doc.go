// Package value defines the values carried by reactive properties.
//
// Value is a sealed interface over JSON-shaped data: Null, Bool, Int,
// Float, String, Array and Object. Properties, operation operands and
// results, type extensions and journal rows all use this representation.
//
// Unlike wire formats that forbid floats, property values are numeric
// signals, so Float is allowed. Int and Float compare equal when they
// denote the same number.
package value
