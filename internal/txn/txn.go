// Package txn batches per-entity partial updates into one atomic commit with
// a single undo/redo history entry. The persistence and history collaborators
// are injected ports; the coordinator owns no storage of its own.
package txn

import (
	"context"
	"fmt"
	"time"
)

// Mutation is one entity's merged partial update inside an atomic write.
type Mutation struct {
	EntityID string
	Fields   map[string]any
}

// Store is the injected persistence port. Commit must apply every mutation
// all-or-nothing; a mutation addressing an unknown entity id fails the whole
// batch.
type Store interface {
	Commit(ctx context.Context, scopeID string, muts []Mutation) error
}

// Entry is one undo/redo history record: opaque replay closures over a
// captured transaction. Both closures are idempotent; replaying either more
// than once converges to the same end state because they carry absolute field
// values, never deltas.
type Entry struct {
	Do          func(ctx context.Context) error
	Undo        func(ctx context.Context) error
	Description string
	Timestamp   time.Time
}

// History is the injected undo/redo port.
type History interface {
	Push(e Entry)
}

// Tx accumulates per-entity updates until committed. Created empty via
// Coordinator.Begin, consumed exactly once by Commit.
type Tx struct {
	updates  map[string]map[string]any
	previous map[string]map[string]any
	order    []string // entity ids in first-touch order, for stable commits
	done     bool
}

// Update merges a partial update for the entity. Later calls for the same
// entity merge field-wise into the pending update; the previous-state half is
// first-write-wins so the earliest observed pre-mutation values survive for
// undo. prev may be nil when the caller has nothing to capture (e.g. replay).
func (tx *Tx) Update(entityID string, fields map[string]any, prev map[string]any) {
	if _, ok := tx.updates[entityID]; !ok {
		tx.updates[entityID] = make(map[string]any)
		tx.order = append(tx.order, entityID)
	}
	for k, v := range fields {
		tx.updates[entityID][k] = v
	}
	if prev != nil {
		if _, ok := tx.previous[entityID]; !ok {
			tx.previous[entityID] = make(map[string]any)
		}
		for k, v := range prev {
			if _, ok := tx.previous[entityID][k]; !ok {
				tx.previous[entityID][k] = v
			}
		}
	}
}

// Empty reports whether no entity has pending updates.
func (tx *Tx) Empty() bool { return len(tx.updates) == 0 }

// Coordinator turns accumulated transactions into atomic writes and single
// history entries.
type Coordinator struct {
	store   Store
	history History
	now     func() time.Time
}

// NewCoordinator creates a coordinator over the given ports. history may be
// nil when undo is not wanted at all (e.g. replay-only contexts).
func NewCoordinator(store Store, history History) *Coordinator {
	return &Coordinator{store: store, history: history, now: time.Now}
}

// Begin returns a fresh empty transaction.
func (c *Coordinator) Begin() *Tx {
	return &Tx{
		updates:  make(map[string]map[string]any),
		previous: make(map[string]map[string]any),
	}
}

// CommitOptions controls a commit.
type CommitOptions struct {
	WithUndo    bool
	Description string
}

// Commit applies the transaction through the store as one atomic write and,
// when requested and at least one previous state was captured, pushes exactly
// one history entry. An empty transaction is a no-op: no write, no history.
// A transaction commits at most once.
func (c *Coordinator) Commit(ctx context.Context, scopeID string, tx *Tx, opts CommitOptions) error {
	if tx.done {
		return fmt.Errorf("txn: transaction already committed")
	}
	if tx.Empty() {
		return nil
	}
	tx.done = true

	stamp := c.now().UTC()
	muts := make([]Mutation, 0, len(tx.order))
	for _, id := range tx.order {
		fields := copyFields(tx.updates[id])
		fields["updated_at"] = stamp
		muts = append(muts, Mutation{EntityID: id, Fields: fields})
	}

	if err := c.store.Commit(ctx, scopeID, muts); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}

	if opts.WithUndo && c.history != nil && len(tx.previous) > 0 {
		c.history.Push(c.buildEntry(scopeID, tx, opts.Description, stamp))
	}
	return nil
}

// buildEntry captures deep copies of the forward and previous field maps so
// the closures stay valid however the caller mutates its own maps afterwards.
func (c *Coordinator) buildEntry(scopeID string, tx *Tx, description string, stamp time.Time) Entry {
	forward := make(map[string]map[string]any, len(tx.updates))
	for id, fields := range tx.updates {
		forward[id] = copyFields(fields)
	}
	backward := make(map[string]map[string]any, len(tx.previous))
	for id, fields := range tx.previous {
		backward[id] = copyFields(fields)
	}
	replayOrder := append([]string(nil), tx.order...)

	replay := func(states map[string]map[string]any) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			re := c.Begin()
			for _, id := range replayOrder {
				if fields, ok := states[id]; ok {
					re.Update(id, fields, nil)
				}
			}
			return c.Commit(ctx, scopeID, re, CommitOptions{WithUndo: false})
		}
	}

	return Entry{
		Do:          replay(forward),
		Undo:        replay(backward),
		Description: description,
		Timestamp:   stamp,
	}
}

func copyFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
