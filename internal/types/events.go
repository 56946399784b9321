package types

import "sync"

// ChangeOp names a registry mutation.
type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeDeleted ChangeOp = "deleted"

	// ChangeTypeSystem follows every created or deleted change. It carries
	// no Kind or TypeId.
	ChangeTypeSystem ChangeOp = "type_system_changed"
)

// Change describes one registry mutation.
type Change struct {
	Op     ChangeOp
	Kind   Kind
	TypeId TypeId
}

// ChangeObserver is called after a registry mutation, outside any
// partition lock. Observers may read the registry.
type ChangeObserver func(Change)

// changeFeed is shared by the partitions of one registry.
type changeFeed struct {
	mu        sync.RWMutex
	observers []ChangeObserver
}

func (f *changeFeed) add(fn ChangeObserver) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

// emit sends ch and then the type system change.
func (f *changeFeed) emit(ch Change) {
	if f == nil {
		return
	}
	f.mu.RLock()
	observers := f.observers
	f.mu.RUnlock()
	for _, fn := range observers {
		fn(ch)
	}
	for _, fn := range observers {
		fn(Change{Op: ChangeTypeSystem})
	}
}
