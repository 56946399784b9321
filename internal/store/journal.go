package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
)

// Journal records a runtime into a Store. It is a runtime collaborator:
// Init registers the run and starts the writer, Shutdown drains the
// queue. Hooks only enqueue, so recording never blocks a tick.
type Journal struct {
	store *Store
	run   string
	queue *queue
	done  chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// NewJournal creates a journal for a new run. An empty run id is replaced
// by a fresh UUIDv7.
func NewJournal(s *Store, run string) *Journal {
	if run == "" {
		run = uuid.Must(uuid.NewV7()).String()
	}
	return &Journal{
		store: s,
		run:   run,
		queue: newQueue(),
		done:  make(chan struct{}),
	}
}

// Run returns the run id.
func (j *Journal) Run() string { return j.run }

// Attach registers the journal on a graph, an instance manager and a
// resolver. Any of them may be nil.
func (j *Journal) Attach(g *reactive.Graph, im *instances.Manager, r *plugin.Resolver) {
	if g != nil {
		g.OnWrite(func(ch reactive.Change) { j.queue.push(item{entry: FromChange(ch)}) })
	}
	if im != nil {
		im.OnEvent(func(ev instances.Event) { j.queue.push(item{entry: FromEvent(ev)}) })
	}
	if r != nil {
		r.OnTransition(func(tr plugin.Transition) { j.queue.push(item{entry: FromTransition(tr)}) })
	}
}

// AttachRegistry records type registrations and removals. The type
// system change that follows each of them is derived and not recorded.
func (j *Journal) AttachRegistry(reg *types.Registry) {
	reg.OnChange(func(ch types.Change) {
		if ch.Op == types.ChangeTypeSystem {
			return
		}
		j.queue.push(item{entry: FromTypeChange(ch)})
	})
}

// Init registers the run and starts the writer.
func (j *Journal) Init(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return errors.New("journal already started")
	}
	if err := j.store.BeginRun(ctx, j.run); err != nil {
		return err
	}
	j.started = true
	go j.loop()
	slog.Info("journal started", "run", j.run)
	return nil
}

// Flush waits until everything enqueued so far is committed.
func (j *Journal) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if !j.queue.push(item{flushed: ch}) {
		return j.Err()
	}
	select {
	case <-ch:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting entries, drains the queue and returns the
// first write error, if any.
func (j *Journal) Shutdown(ctx context.Context) error {
	j.queue.close()

	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	slog.Info("journal stopped", "run", j.run)
	return j.Err()
}

// Err returns the first write error.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Journal) loop() {
	defer close(j.done)
	for {
		items, open := j.queue.drain()
		if len(items) > 0 {
			j.write(items)
			continue
		}
		if !open {
			return
		}
		<-j.queue.wait()
	}
}

func (j *Journal) write(items []item) {
	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		if it.flushed == nil {
			entries = append(entries, it.entry)
		}
	}
	if err := j.store.Append(context.Background(), j.run, entries...); err != nil {
		slog.Error("journal write failed", "run", j.run, "entries", len(entries), "error", err)
		j.mu.Lock()
		if j.err == nil {
			j.err = err
		}
		j.mu.Unlock()
	}
	for _, it := range items {
		if it.flushed != nil {
			close(it.flushed)
		}
	}
}
