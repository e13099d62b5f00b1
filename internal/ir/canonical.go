package ir

import (
	"golang.org/x/text/unicode/norm"
)

// Value is an opaque, serialized record. Values are compared as strings, so
// they must be produced through NewValue (or normalized with Canonical) to
// make canonically equal records the same fact.
type Value string

// NewValue returns s as a Value in Unicode NFC form.
func NewValue(s string) Value {
	return Value(norm.NFC.String(s))
}

// Canonical returns v in Unicode NFC form.
func (v Value) Canonical() Value {
	if norm.NFC.IsNormalString(string(v)) {
		return v
	}
	return Value(norm.NFC.String(string(v)))
}

// Canonicalize normalizes every value of the transaction in place and
// returns it.
func (t Txn) Canonicalize() Txn {
	for i := range t.Updates {
		t.Updates[i].Value = t.Updates[i].Value.Canonical()
	}
	return t
}
