package types

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

// Kind names a registry partition.
type Kind string

const (
	KindComponent    Kind = "component"
	KindEntityType   Kind = "entity_type"
	KindRelationType Kind = "relation_type"
	KindFlowType     Kind = "flow_type"
)

type entry[T Type] struct {
	typ  T
	refs atomic.Int64
}

// Partition stores the definitions of one kind.
//
// Reads (Get, Has, List) go straight to a sync.Map and never block.
// Register, Unregister and Acquire take the partition mutex so that the
// in-use check and the removal are atomic with respect to new references.
type Partition[T Type] struct {
	kind       Kind
	namespaces *NamespaceSet
	feed       *changeFeed

	mu      sync.Mutex
	entries sync.Map // TypeId -> *entry[T]
	count   atomic.Int64
}

func newPartition[T Type](kind Kind, namespaces *NamespaceSet, feed *changeFeed) *Partition[T] {
	return &Partition[T]{kind: kind, namespaces: namespaces, feed: feed}
}

// Kind returns the partition kind.
func (p *Partition[T]) Kind() Kind {
	return p.kind
}

// Register stores t. It fails with DUPLICATE_TYPE when the id is taken,
// leaving the partition unchanged. Registry observers see a created change
// once the lock is released.
func (p *Partition[T]) Register(t T) error {
	id := t.TypeID()
	if !id.Valid() {
		return fmt.Errorf("register %s: invalid type id %q", p.kind, id)
	}
	if err := p.store(id, t); err != nil {
		return err
	}
	p.feed.emit(Change{Op: ChangeCreated, Kind: p.kind, TypeId: id})
	return nil
}

func (p *Partition[T]) store(id TypeId, t T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, loaded := p.entries.LoadOrStore(id, &entry[T]{typ: t}); loaded {
		return &Error{Code: ErrCodeDuplicateType, Kind: p.kind, TypeId: id}
	}
	p.count.Add(1)
	p.namespaces.Add(id.Namespace)
	return nil
}

// Get returns the definition for id or UNKNOWN_TYPE.
func (p *Partition[T]) Get(id TypeId) (T, error) {
	v, ok := p.entries.Load(id)
	if !ok {
		var zero T
		return zero, &Error{Code: ErrCodeUnknownType, Kind: p.kind, TypeId: id}
	}
	return v.(*entry[T]).typ, nil
}

// Has reports whether id is registered.
func (p *Partition[T]) Has(id TypeId) bool {
	_, ok := p.entries.Load(id)
	return ok
}

// Len returns the number of registered definitions.
func (p *Partition[T]) Len() int {
	return int(p.count.Load())
}

// List lazily yields the definitions of one namespace. Order is not
// specified; use Sorted when it matters.
func (p *Partition[T]) List(namespace string) iter.Seq[T] {
	return func(yield func(T) bool) {
		p.entries.Range(func(k, v any) bool {
			if k.(TypeId).Namespace != namespace {
				return true
			}
			return yield(v.(*entry[T]).typ)
		})
	}
}

// All lazily yields every definition.
func (p *Partition[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		p.entries.Range(func(_, v any) bool {
			return yield(v.(*entry[T]).typ)
		})
	}
}

// Sorted returns every definition ordered by TypeId.
func (p *Partition[T]) Sorted() []T {
	out := slices.Collect(p.All())
	slices.SortFunc(out, func(a, b T) int {
		return a.TypeID().Compare(b.TypeID())
	})
	return out
}

// Unregister removes id. It fails with UNKNOWN_TYPE when absent and with
// TYPE_IN_USE while instances hold references.
func (p *Partition[T]) Unregister(id TypeId) error {
	if err := p.remove(id); err != nil {
		return err
	}
	p.feed.emit(Change{Op: ChangeDeleted, Kind: p.kind, TypeId: id})
	return nil
}

func (p *Partition[T]) remove(id TypeId) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.entries.Load(id)
	if !ok {
		return &Error{Code: ErrCodeUnknownType, Kind: p.kind, TypeId: id}
	}
	if refs := v.(*entry[T]).refs.Load(); refs > 0 {
		return &Error{
			Code:    ErrCodeTypeInUse,
			Kind:    p.kind,
			TypeId:  id,
			Message: fmt.Sprintf("%d live reference(s)", refs),
		}
	}
	p.entries.Delete(id)
	p.count.Add(-1)
	return nil
}

// Acquire records a live reference to id.
func (p *Partition[T]) Acquire(id TypeId) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.entries.Load(id)
	if !ok {
		return &Error{Code: ErrCodeUnknownType, Kind: p.kind, TypeId: id}
	}
	v.(*entry[T]).refs.Add(1)
	return nil
}

// Release drops a reference taken with Acquire. Releasing an unknown id
// is a no-op.
func (p *Partition[T]) Release(id TypeId) {
	if v, ok := p.entries.Load(id); ok {
		if v.(*entry[T]).refs.Add(-1) < 0 {
			v.(*entry[T]).refs.Store(0)
		}
	}
}

// References returns the live reference count of id.
func (p *Partition[T]) References(id TypeId) int64 {
	if v, ok := p.entries.Load(id); ok {
		return v.(*entry[T]).refs.Load()
	}
	return 0
}

func (p *Partition[T]) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries.Clear()
	p.count.Store(0)
}
