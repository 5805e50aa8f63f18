package txn

import (
	"context"
	"log/slog"
	"sync"
)

// MemHistory is an in-memory undo/redo log owned by its creator, not shared
// module state. A cursor walks the entry list: Undo moves it back, Redo
// forward; pushing truncates any redo tail.
type MemHistory struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int // number of applied entries; next undo is entries[cursor-1]
	limit   int
	logger  *slog.Logger
}

// NewMemHistory creates a history log keeping at most limit entries
// (0 means unbounded).
func NewMemHistory(limit int, logger *slog.Logger) *MemHistory {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemHistory{limit: limit, logger: logger}
}

// Push appends an entry, discarding any redoable tail and, when over the
// limit, the oldest entries.
func (h *MemHistory) Push(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.cursor], e)
	h.cursor = len(h.entries)

	if h.limit > 0 && len(h.entries) > h.limit {
		drop := len(h.entries) - h.limit
		h.entries = append([]Entry(nil), h.entries[drop:]...)
		h.cursor = len(h.entries)
	}
}

// Undo replays the most recent entry's captured previous states. A replay
// failure is logged and leaves the cursor untouched so the entry can be
// retried; an empty log is a quiet no-op.
func (h *MemHistory) Undo(ctx context.Context) error {
	h.mu.Lock()
	if h.cursor == 0 {
		h.mu.Unlock()
		return nil
	}
	e := h.entries[h.cursor-1]
	h.mu.Unlock()

	if err := e.Undo(ctx); err != nil {
		h.logger.Error("history: undo replay failed",
			slog.String("description", e.Description),
			slog.String("error", err.Error()))
		return nil
	}

	h.mu.Lock()
	h.cursor--
	h.mu.Unlock()
	return nil
}

// Redo replays the next undone entry's forward updates. Same failure
// semantics as Undo.
func (h *MemHistory) Redo(ctx context.Context) error {
	h.mu.Lock()
	if h.cursor >= len(h.entries) {
		h.mu.Unlock()
		return nil
	}
	e := h.entries[h.cursor]
	h.mu.Unlock()

	if err := e.Do(ctx); err != nil {
		h.logger.Error("history: redo replay failed",
			slog.String("description", e.Description),
			slog.String("error", err.Error()))
		return nil
	}

	h.mu.Lock()
	h.cursor++
	h.mu.Unlock()
	return nil
}

// Len returns the number of entries currently in the log.
func (h *MemHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// CanUndo reports whether an entry is available to undo.
func (h *MemHistory) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo reports whether an entry is available to redo.
func (h *MemHistory) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)
}
