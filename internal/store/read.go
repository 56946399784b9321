package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/types"
	"github.com/roach88/rgf/internal/value"
)

// Runs returns every run id in the order they were registered.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently registered run, or "" when the
// journal is empty.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}

// Writes returns the writes of run in journal order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) Writes(ctx context.Context, run string) ([]WriteRecord, error) {
	return s.queryWrites(ctx, `
		SELECT id, seq, tick, owner, property, value, version
		FROM writes
		WHERE run_id = ?
		ORDER BY id ASC
	`, run)
}

// WritesFor returns the writes of one instance in journal order.
func (s *Store) WritesFor(ctx context.Context, run string, owner uuid.UUID) ([]WriteRecord, error) {
	return s.queryWrites(ctx, `
		SELECT id, seq, tick, owner, property, value, version
		FROM writes
		WHERE run_id = ? AND owner = ?
		ORDER BY id ASC
	`, run, owner.String())
}

// LastValues returns the last journaled value of every property of owner.
func (s *Store) LastValues(ctx context.Context, run string, owner uuid.UUID) (map[string]value.Value, error) {
	recs, err := s.queryWrites(ctx, `
		SELECT id, seq, tick, owner, property, value, version
		FROM writes
		WHERE id IN (
			SELECT MAX(id) FROM writes
			WHERE run_id = ? AND owner = ?
			GROUP BY property
		)
		ORDER BY property COLLATE BINARY ASC
	`, run, owner.String())
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(recs))
	for _, r := range recs {
		out[r.Property] = r.Value
	}
	return out, nil
}

// LastSeq returns the highest write seq of run, or 0.
func (s *Store) LastSeq(ctx context.Context, run string) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM writes WHERE run_id = ?`, run).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryWrites(ctx context.Context, query string, args ...any) ([]WriteRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query writes: %w", err)
	}
	defer rows.Close()

	out := []WriteRecord{}
	for rows.Next() {
		var (
			rec     WriteRecord
			owner   string
			data    string
			version int64
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.Tick, &owner, &rec.Property, &data, &version); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		if rec.Owner, err = uuid.Parse(owner); err != nil {
			return nil, fmt.Errorf("write %d: owner: %w", rec.ID, err)
		}
		if rec.Value, err = value.Unmarshal([]byte(data)); err != nil {
			return nil, fmt.Errorf("write %d: value: %w", rec.ID, err)
		}
		rec.Version = uint64(version)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writes: %w", err)
	}
	return out, nil
}

// InstanceEvents returns the instance events of run in journal order.
func (s *Store) InstanceEvents(ctx context.Context, run string) ([]InstanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, instance, type, relation, flow
		FROM instance_events
		WHERE run_id = ?
		ORDER BY id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query instance events: %w", err)
	}
	defer rows.Close()

	out := []InstanceRecord{}
	for rows.Next() {
		var (
			rec      InstanceRecord
			event    string
			instance string
			typ      string
		)
		if err := rows.Scan(&rec.ID, &event, &instance, &typ, &rec.Relation, &rec.Flow); err != nil {
			return nil, fmt.Errorf("scan instance event: %w", err)
		}
		rec.Event = instances.EventKind(event)
		if rec.Instance, err = uuid.Parse(instance); err != nil {
			return nil, fmt.Errorf("instance event %d: %w", rec.ID, err)
		}
		if rec.Type, err = types.ParseTypeId(typ); err != nil {
			return nil, fmt.Errorf("instance event %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance events: %w", err)
	}
	return out, nil
}

// TypeEvents returns the registry changes of run in journal order.
func (s *Store) TypeEvents(ctx context.Context, run string) ([]TypeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, kind, type
		FROM type_events
		WHERE run_id = ?
		ORDER BY id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query type events: %w", err)
	}
	defer rows.Close()

	out := []TypeRecord{}
	for rows.Next() {
		var (
			rec   TypeRecord
			event string
			kind  string
			typ   string
		)
		if err := rows.Scan(&rec.ID, &event, &kind, &typ); err != nil {
			return nil, fmt.Errorf("scan type event: %w", err)
		}
		rec.Event = types.ChangeOp(event)
		rec.Kind = types.Kind(kind)
		if rec.Type, err = types.ParseTypeId(typ); err != nil {
			return nil, fmt.Errorf("type event %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type events: %w", err)
	}
	return out, nil
}

// Transitions returns the plugin transitions of run in journal order.
func (s *Store) Transitions(ctx context.Context, run string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plugin, from_state, to_state, error
		FROM plugin_transitions
		WHERE run_id = ?
		ORDER BY id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []TransitionRecord{}
	for rows.Next() {
		var rec TransitionRecord
		if err := rows.Scan(&rec.ID, &rec.Plugin, &rec.From, &rec.To, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}
