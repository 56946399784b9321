package types

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"
)

// TypeId identifies a type by namespace and name. The zero value is invalid.
type TypeId struct {
	Namespace string
	Name      string
}

// Wildcard matches any entity in relation endpoint constraints.
var Wildcard = TypeId{Namespace: "*", Name: "*"}

// NewTypeId trims and NFC-normalises both parts so that visually identical
// identifiers from different sources compare equal.
func NewTypeId(namespace, name string) TypeId {
	return TypeId{
		Namespace: norm.NFC.String(strings.TrimSpace(namespace)),
		Name:      norm.NFC.String(strings.TrimSpace(name)),
	}
}

// ParseTypeId parses "namespace/name". The namespace cannot contain '/';
// the name may. "*" parses to Wildcard.
func ParseTypeId(s string) (TypeId, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "*/*" {
		return Wildcard, nil
	}
	ns, name, ok := strings.Cut(s, "/")
	if !ok || strings.TrimSpace(ns) == "" || strings.TrimSpace(name) == "" {
		return TypeId{}, fmt.Errorf("invalid type id %q: want namespace/name", s)
	}
	return NewTypeId(ns, name), nil
}

// MustParseTypeId is ParseTypeId for literals.
func MustParseTypeId(s string) TypeId {
	id, err := ParseTypeId(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns "namespace/name".
func (id TypeId) String() string {
	if id == Wildcard {
		return "*"
	}
	return id.Namespace + "/" + id.Name
}

// IsZero reports whether id is the zero TypeId.
func (id TypeId) IsZero() bool {
	return id.Namespace == "" && id.Name == ""
}

// Valid reports whether both parts are set.
func (id TypeId) Valid() bool {
	return id.Namespace != "" && id.Name != ""
}

// Compare orders TypeIds by namespace, then name.
func (id TypeId) Compare(other TypeId) int {
	if c := strings.Compare(id.Namespace, other.Namespace); c != 0 {
		return c
	}
	return strings.Compare(id.Name, other.Name)
}

// NamespaceSet is an append-only set of namespaces. Insertion is safe from
// any goroutine; an entry is never removed during a runtime session.
type NamespaceSet struct {
	m     sync.Map // string -> struct{}
	count atomic.Int64
}

// NewNamespaceSet returns an empty set.
func NewNamespaceSet() *NamespaceSet {
	return &NamespaceSet{}
}

// Add inserts ns and reports whether it was new. Empty names are ignored.
func (s *NamespaceSet) Add(ns string) bool {
	if ns == "" {
		return false
	}
	if _, loaded := s.m.LoadOrStore(ns, struct{}{}); loaded {
		return false
	}
	s.count.Add(1)
	return true
}

// Contains reports whether ns was ever added.
func (s *NamespaceSet) Contains(ns string) bool {
	_, ok := s.m.Load(ns)
	return ok
}

// Len returns the number of namespaces.
func (s *NamespaceSet) Len() int {
	return int(s.count.Load())
}

// List returns the namespaces in lexical order.
func (s *NamespaceSet) List() []string {
	out := make([]string, 0, s.Len())
	s.m.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	slices.Sort(out)
	return out
}

// reset empties the set. Only the registry calls it, at runtime shutdown.
func (s *NamespaceSet) reset() {
	s.m.Clear()
	s.count.Store(0)
}
