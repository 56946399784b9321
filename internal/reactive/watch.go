package reactive

import (
	"fmt"
	"sync"

	"github.com/roach88/rgf/internal/value"
)

// Watch is a node that runs an observer on every write to one property
// while it is enabled. It computes nothing and has no outputs, so it is
// the place for a behaviour's side effects. Forced ticks re-evaluate
// operations only; they never re-run a watch.
type Watch struct {
	id   NodeID
	name string
	ep   Endpoint
	fn   Observer

	mu       sync.Mutex
	handle   Handle
	enabled  bool
	removed  bool
	attached bool
}

// NewWatch creates an enabled, unattached watch on ep. It is not part of
// the arena and does not count towards NodeCount.
func (g *Graph) NewWatch(name string, ep Endpoint, fn Observer) *Watch {
	return &Watch{id: NodeID(g.nextNode.Add(1)), name: name, ep: ep, fn: fn, enabled: true}
}

func (w *Watch) ID() NodeID { return w.id }

func (w *Watch) Name() string { return w.name }

// Result is always null.
func (w *Watch) Result() value.Value { return value.Null{} }

func (w *Watch) Requirements() []Endpoint { return []Endpoint{w.ep} }

// Inputs is empty: there is nothing for a connect tick to re-seed.
func (w *Watch) Inputs() []Endpoint { return nil }

// Attach subscribes to the watched property.
func (w *Watch) Attach() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.removed {
		return fmt.Errorf("attach watch %s: node removed", w.name)
	}
	if w.attached {
		return nil
	}
	if w.ep.Container == nil {
		return &PropertyError{Code: ErrCodeUnknownProperty, Property: w.ep.Property}
	}
	h, err := w.ep.Container.Subscribe(w.ep.Property, w.observe)
	if err != nil {
		return err
	}
	w.handle, w.attached = h, true
	return nil
}

func (w *Watch) observe(t *Tick, ch Change) {
	w.mu.Lock()
	on := w.enabled && !w.removed
	w.mu.Unlock()
	if on {
		w.fn(t, ch)
	}
}

// Detach drops the subscription.
func (w *Watch) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detachLocked()
}

func (w *Watch) detachLocked() {
	if w.attached {
		w.ep.Container.Unsubscribe(w.ep.Property, w.handle)
		w.handle, w.attached = 0, false
	}
}

func (w *Watch) SetEnabled(enabled bool) {
	w.mu.Lock()
	w.enabled = enabled
	w.mu.Unlock()
}

func (w *Watch) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// Remove detaches the watch for good.
func (w *Watch) Remove() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detachLocked()
	w.enabled = false
	w.removed = true
}
