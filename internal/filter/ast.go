// Package filter implements the Filter Validator (C4) and Filter Compiler
// (C5): a predicate tree is validated against the field-type registry and
// compiled into a parameterised SQL fragment targeting the cache store's
// JSON-valued data column (spec §4.4, §4.5).
package filter

import "encoding/json"

// Node is either a Group or a Predicate. The tree recurses arbitrarily.
type Node struct {
	// Group fields. Operator is "and" or "or"; Fields holds the children.
	Operator string `json:"operator,omitempty"`
	Fields   []Node `json:"fields,omitempty"`

	// Predicate fields.
	Field      string          `json:"field,omitempty"`
	Comparison string          `json:"comparison,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// IsGroup reports whether n is a group node (and/or), as opposed to a leaf
// predicate.
func (n Node) IsGroup() bool {
	return n.Operator == "and" || n.Operator == "or"
}

// FieldTypeLookup resolves a field slug to its declared field-type name,
// supplied by the caller (normally backed by a Table's Structure).
type FieldTypeLookup func(slug string) (fieldType string, ok bool)
