package ir

import (
	"fmt"
	"sort"
)

// RelID identifies a relation inside the globally compiled program.
type RelID int64

// Kind distinguishes insertions from deletions.
type Kind uint8

const (
	// Insert adds one occurrence of a fact.
	Insert Kind = iota + 1
	// Delete removes one occurrence of a fact.
	Delete
)

// String returns the text form used in files and logs.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Insert, Delete:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid update kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "insert":
		*k = Insert
	case "delete":
		*k = Delete
	default:
		return fmt.Errorf("invalid update kind %q: must be insert or delete", text)
	}
	return nil
}

// Update is a single change to one relation.
type Update struct {
	Kind  Kind  `json:"op" yaml:"op" msgpack:"op"`
	Rel   RelID `json:"rel" yaml:"rel" msgpack:"rel"`
	Value Value `json:"value" yaml:"value" msgpack:"value"`
}

// String renders the update for logs and test failures.
func (u Update) String() string {
	return fmt.Sprintf("%s %d %q", u.Kind, u.Rel, string(u.Value))
}

// Txn is a batch of updates applied as one transaction.
type Txn struct {
	Seq     int64    `json:"seq" yaml:"seq" msgpack:"seq"`
	Updates []Update `json:"updates" yaml:"updates" msgpack:"updates"`
}

// Restrict returns a copy of the transaction holding only the updates whose
// relation is in rels. The sequence number is preserved.
func (t Txn) Restrict(rels RelSet) Txn {
	out := Txn{Seq: t.Seq}
	for _, u := range t.Updates {
		if rels.Contains(u.Rel) {
			out.Updates = append(out.Updates, u)
		}
	}
	return out
}

// Empty reports whether the transaction carries no updates.
func (t Txn) Empty() bool {
	return len(t.Updates) == 0
}

// Rule states that every fact of Body is also a fact of Head.
type Rule struct {
	Head RelID `json:"head" yaml:"head"`
	Body RelID `json:"body" yaml:"body"`
}

// RelSet is a set of relation ids.
type RelSet map[RelID]struct{}

// NewRelSet returns a set holding ids.
func NewRelSet(ids ...RelID) RelSet {
	s := make(RelSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s RelSet) Add(id RelID) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s RelSet) Contains(id RelID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every member of other to s.
func (s RelSet) Union(other RelSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Clone returns an independent copy of the set.
func (s RelSet) Clone() RelSet {
	c := make(RelSet, len(s))
	c.Union(s)
	return c
}

// Sorted returns the members in ascending order.
func (s RelSet) Sorted() []RelID {
	ids := make([]RelID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
