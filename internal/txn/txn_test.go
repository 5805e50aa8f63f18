package txn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

// memStore applies mutations to an in-memory entity map, all-or-nothing.
type memStore struct {
	entities map[string]map[string]any
	commits  int
	failNext bool
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{entities: make(map[string]map[string]any)}
	for _, id := range ids {
		s.entities[id] = make(map[string]any)
	}
	return s
}

func (s *memStore) Commit(_ context.Context, _ string, muts []Mutation) error {
	if s.failNext {
		s.failNext = false
		return errors.New("store down")
	}
	for _, m := range muts {
		if _, ok := s.entities[m.EntityID]; !ok {
			return errors.New("unknown entity")
		}
	}
	for _, m := range muts {
		for k, v := range m.Fields {
			s.entities[m.EntityID][k] = v
		}
	}
	s.commits++
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCommit_EmptyIsNoOp(t *testing.T) {
	store := newMemStore("a")
	hist := NewMemHistory(0, quiet())
	c := NewCoordinator(store, hist)

	tx := c.Begin()
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if store.commits != 0 {
		t.Errorf("commits = %d, want 0", store.commits)
	}
	if hist.Len() != 0 {
		t.Errorf("history entries = %d, want 0", hist.Len())
	}
}

func TestCommit_MergesRepeatedUpdates(t *testing.T) {
	store := newMemStore("a")
	c := NewCoordinator(store, nil)

	tx := c.Begin()
	tx.Update("a", map[string]any{"x": 1.0, "y": 2.0}, map[string]any{"x": 0.0, "y": 0.0})
	tx.Update("a", map[string]any{"x": 10.0}, map[string]any{"x": 99.0}) // later prev ignored

	if err := c.Commit(context.Background(), "board", tx, CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if store.commits != 1 {
		t.Fatalf("commits = %d, want 1", store.commits)
	}
	if store.entities["a"]["x"] != 10.0 || store.entities["a"]["y"] != 2.0 {
		t.Errorf("entity a = %v", store.entities["a"])
	}
	if _, ok := store.entities["a"]["updated_at"]; !ok {
		t.Error("shared modification timestamp missing")
	}
}

func TestCommit_ConsumedOnce(t *testing.T) {
	store := newMemStore("a")
	c := NewCoordinator(store, nil)
	tx := c.Begin()
	tx.Update("a", map[string]any{"x": 1.0}, nil)
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{}); err == nil {
		t.Error("second commit of the same transaction must fail")
	}
}

func TestCommit_UnknownEntityFailsAtomically(t *testing.T) {
	store := newMemStore("a")
	c := NewCoordinator(store, nil)
	tx := c.Begin()
	tx.Update("a", map[string]any{"x": 5.0}, nil)
	tx.Update("ghost", map[string]any{"x": 5.0}, nil)

	if err := c.Commit(context.Background(), "board", tx, CommitOptions{}); err == nil {
		t.Fatal("expected error for unknown entity")
	}
	if v, ok := store.entities["a"]["x"]; ok {
		t.Errorf("partial write leaked: a.x = %v", v)
	}
}

func TestUndoRedo_RestoresAndReapplies(t *testing.T) {
	store := newMemStore("c1", "c2", "c3")
	for _, id := range []string{"c1", "c2", "c3"} {
		store.entities[id]["x"] = 100.0
		store.entities[id]["y"] = 100.0
	}
	hist := NewMemHistory(0, quiet())
	c := NewCoordinator(store, hist)

	// Batch-move three cards by (+10, +10) with undo.
	tx := c.Begin()
	for _, id := range []string{"c1", "c2", "c3"} {
		tx.Update(id,
			map[string]any{"x": 110.0, "y": 110.0},
			map[string]any{"x": 100.0, "y": 100.0})
	}
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true, Description: "move 3 cards"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if hist.Len() != 1 {
		t.Fatalf("history entries = %d, want exactly 1 for the batch", hist.Len())
	}

	if err := hist.Undo(context.Background()); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if store.entities[id]["x"] != 100.0 || store.entities[id]["y"] != 100.0 {
			t.Errorf("%s after undo = %v, want (100, 100)", id, store.entities[id])
		}
	}

	if err := hist.Redo(context.Background()); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if store.entities[id]["x"] != 110.0 || store.entities[id]["y"] != 110.0 {
			t.Errorf("%s after redo = %v, want (110, 110)", id, store.entities[id])
		}
	}
	if hist.Len() != 1 {
		t.Errorf("history entries = %d after undo/redo cycle, want 1 (replays must not push)", hist.Len())
	}
}

func TestUndo_Idempotent(t *testing.T) {
	store := newMemStore("a")
	store.entities["a"]["x"] = 1.0
	hist := NewMemHistory(0, quiet())
	c := NewCoordinator(store, hist)

	tx := c.Begin()
	tx.Update("a", map[string]any{"x": 2.0}, map[string]any{"x": 1.0})
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true}); err != nil {
		t.Fatal(err)
	}

	// Replaying the same closure twice converges; absolute values, not deltas.
	entry := hist.entries[0]
	_ = entry.Undo(context.Background())
	_ = entry.Undo(context.Background())
	if store.entities["a"]["x"] != 1.0 {
		t.Errorf("x = %v after double undo, want 1", store.entities["a"]["x"])
	}
	_ = entry.Do(context.Background())
	_ = entry.Do(context.Background())
	if store.entities["a"]["x"] != 2.0 {
		t.Errorf("x = %v after double redo, want 2", store.entities["a"]["x"])
	}
}

func TestUndo_EmptyHistoryQuiet(t *testing.T) {
	hist := NewMemHistory(0, quiet())
	if err := hist.Undo(context.Background()); err != nil {
		t.Errorf("Undo on empty history = %v, want nil", err)
	}
	if err := hist.Redo(context.Background()); err != nil {
		t.Errorf("Redo on empty history = %v, want nil", err)
	}
}

func TestUndo_ReplayFailureKeepsCursor(t *testing.T) {
	store := newMemStore("a")
	store.entities["a"]["x"] = 1.0
	hist := NewMemHistory(0, quiet())
	c := NewCoordinator(store, hist)

	tx := c.Begin()
	tx.Update("a", map[string]any{"x": 2.0}, map[string]any{"x": 1.0})
	if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true}); err != nil {
		t.Fatal(err)
	}

	store.failNext = true
	if err := hist.Undo(context.Background()); err != nil {
		t.Fatalf("Undo must swallow replay failures, got %v", err)
	}
	if !hist.CanUndo() {
		t.Error("failed undo must leave the entry undoable")
	}
	if store.entities["a"]["x"] != 2.0 {
		t.Errorf("x = %v, want 2 (failed replay applies nothing)", store.entities["a"]["x"])
	}
}

func TestPush_TruncatesRedoTail(t *testing.T) {
	store := newMemStore("a")
	hist := NewMemHistory(0, quiet())
	c := NewCoordinator(store, hist)

	commit := func(v float64) {
		tx := c.Begin()
		tx.Update("a", map[string]any{"x": v}, map[string]any{"x": v - 1})
		if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true}); err != nil {
			t.Fatal(err)
		}
	}
	commit(1)
	commit(2)
	_ = hist.Undo(context.Background())
	commit(3)

	if hist.CanRedo() {
		t.Error("push after undo must discard the redo tail")
	}
	if hist.Len() != 2 {
		t.Errorf("entries = %d, want 2", hist.Len())
	}
}

func TestMemHistory_Limit(t *testing.T) {
	store := newMemStore("a")
	hist := NewMemHistory(2, quiet())
	c := NewCoordinator(store, hist)
	for i := 0; i < 5; i++ {
		tx := c.Begin()
		tx.Update("a", map[string]any{"x": float64(i)}, map[string]any{"x": 0.0})
		if err := c.Commit(context.Background(), "board", tx, CommitOptions{WithUndo: true}); err != nil {
			t.Fatal(err)
		}
	}
	if hist.Len() != 2 {
		t.Errorf("entries = %d, want limit 2", hist.Len())
	}
}
