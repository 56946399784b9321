// Package store keeps an append-only SQLite journal of a runtime image.
//
// Three streams are recorded, all tagged with the run that produced them:
//   - writes: every property write applied by the reactive graph
//   - instance events: entity and relation creation and deletion
//   - plugin transitions: every resolver state change
//
// Rows are ordered by their autoincrement id, which is the order the
// journal received them. The logical seq of a write is kept alongside it
// but restarts with every run.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while the journal writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Values are stored as canonical JSON (see value.MarshalCanonical), so
// two journals of the same deterministic run are byte-identical.
package store
