package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rgf/internal/value"
)

// BeginRun registers a run id. Registering the same id twice is a no-op.
func (s *Store) BeginRun(ctx context.Context, run string) error {
	if run == "" {
		return errors.New("begin run: empty run id")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, run); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Append writes entries for run in one transaction. The run must have
// been registered with BeginRun.
func (s *Store) Append(ctx context.Context, run string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		switch {
		case e.Write != nil:
			err = appendWrite(ctx, tx, run, e.Write)
		case e.Instance != nil:
			err = appendInstance(ctx, tx, run, e.Instance)
		case e.Transition != nil:
			err = appendTransition(ctx, tx, run, e.Transition)
		case e.Type != nil:
			err = appendType(ctx, tx, run, e.Type)
		default:
			err = errors.New("empty entry")
		}
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

func appendWrite(ctx context.Context, tx *sql.Tx, run string, w *WriteRecord) error {
	data, err := value.MarshalCanonical(w.Value)
	if err != nil {
		return fmt.Errorf("write %s.%s: %w", w.Owner, w.Property, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO writes (run_id, seq, tick, owner, property, value, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run, w.Seq, w.Tick, w.Owner.String(), w.Property, string(data), int64(w.Version))
	if err != nil {
		return fmt.Errorf("write %s.%s: %w", w.Owner, w.Property, err)
	}
	return nil
}

func appendInstance(ctx context.Context, tx *sql.Tx, run string, r *InstanceRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO instance_events (run_id, event, instance, type, relation, flow)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run, string(r.Event), r.Instance.String(), r.Type.String(), r.Relation, r.Flow)
	if err != nil {
		return fmt.Errorf("instance event %s: %w", r.Instance, err)
	}
	return nil
}

func appendTransition(ctx context.Context, tx *sql.Tx, run string, r *TransitionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plugin_transitions (run_id, plugin, from_state, to_state, error)
		VALUES (?, ?, ?, ?, ?)
	`, run, r.Plugin, r.From, r.To, r.Error)
	if err != nil {
		return fmt.Errorf("transition %s: %w", r.Plugin, err)
	}
	return nil
}

func appendType(ctx context.Context, tx *sql.Tx, run string, r *TypeRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO type_events (run_id, event, kind, type)
		VALUES (?, ?, ?, ?)
	`, run, string(r.Event), string(r.Kind), r.Type.String())
	if err != nil {
		return fmt.Errorf("type event %s: %w", r.Type, err)
	}
	return nil
}
