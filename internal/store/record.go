package store

import (
	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// WriteRecord is one journaled property write.
type WriteRecord struct {
	ID       int64
	Seq      int64
	Tick     int64
	Owner    uuid.UUID
	Property string
	Value    value.Value
	Version  uint64
}

// InstanceRecord is one journaled instance event.
type InstanceRecord struct {
	ID       int64
	Event    instances.EventKind
	Instance uuid.UUID
	Type     types.TypeId
	Relation bool
	Flow     bool
}

// TypeRecord is one journaled registry change.
type TypeRecord struct {
	ID    int64
	Event types.ChangeOp
	Kind  types.Kind
	Type  types.TypeId
}

// TransitionRecord is one journaled plugin state change. States are
// stored by name.
type TransitionRecord struct {
	ID     int64
	Plugin string
	From   string
	To     string
	Error  string
}

// Entry is a single journal row. Exactly one field is set.
type Entry struct {
	Write      *WriteRecord
	Instance   *InstanceRecord
	Transition *TransitionRecord
	Type       *TypeRecord
}

// FromChange converts a graph write.
func FromChange(ch reactive.Change) Entry {
	return Entry{Write: &WriteRecord{
		Seq:      ch.Seq,
		Tick:     ch.Tick,
		Owner:    ch.Owner,
		Property: ch.Property,
		Value:    ch.Value,
		Version:  ch.Version,
	}}
}

// FromEvent converts an instance event.
func FromEvent(ev instances.Event) Entry {
	return Entry{Instance: &InstanceRecord{
		Event:    ev.Kind,
		Instance: ev.ID,
		Type:     ev.Type,
		Relation: ev.Relation,
		Flow:     ev.Flow,
	}}
}

// FromTypeChange converts a registry change.
func FromTypeChange(ch types.Change) Entry {
	return Entry{Type: &TypeRecord{Event: ch.Op, Kind: ch.Kind, Type: ch.TypeId}}
}

// FromTransition converts a resolver transition.
func FromTransition(tr plugin.Transition) Entry {
	rec := &TransitionRecord{Plugin: tr.Plugin, From: tr.From.String(), To: tr.To.String()}
	if tr.Err != nil {
		rec.Error = tr.Err.Error()
	}
	return Entry{Transition: rec}
}
