// Package mode holds the single source of truth for the current canvas
// gesture. Every gesture handler consults the machine before starting; only
// one mode exists at a time and entering a new mode discards all state
// belonging to the previous one.
package mode

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/starford/tafl/internal/geometry"
)

// Kind enumerates the interaction modes.
type Kind int

const (
	Idle Kind = iota
	Selecting
	Dragging
	Resizing
	Editing
	Connecting
	Panning
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case Editing:
		return "editing"
	case Connecting:
		return "connecting"
	case Panning:
		return "panning"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ResizeHandle names which corner or edge a resize gesture grabbed.
type ResizeHandle string

const (
	HandleN  ResizeHandle = "n"
	HandleS  ResizeHandle = "s"
	HandleE  ResizeHandle = "e"
	HandleW  ResizeHandle = "w"
	HandleNE ResizeHandle = "ne"
	HandleNW ResizeHandle = "nw"
	HandleSE ResizeHandle = "se"
	HandleSW ResizeHandle = "sw"
)

// Mode is the machine's current state plus the fields belonging to it.
// Constructors zero everything a mode does not own.
type Mode struct {
	Kind       Kind
	StartPos   geometry.Point // Selecting
	CardIDs    []string       // Dragging
	CardID     string         // Resizing, Editing
	Handle     ResizeHandle   // Resizing
	FromCardID string         // Connecting
}

// NewIdle returns the idle mode.
func NewIdle() Mode { return Mode{Kind: Idle} }

// NewSelecting starts a rubber-band selection at pos.
func NewSelecting(pos geometry.Point) Mode { return Mode{Kind: Selecting, StartPos: pos} }

// NewDragging starts a drag of the given cards.
func NewDragging(cardIDs []string) Mode {
	return Mode{Kind: Dragging, CardIDs: append([]string(nil), cardIDs...)}
}

// NewResizing starts a resize of one card from one handle.
func NewResizing(cardID string, handle ResizeHandle) Mode {
	return Mode{Kind: Resizing, CardID: cardID, Handle: handle}
}

// NewEditing starts an in-place content edit of one card.
func NewEditing(cardID string) Mode { return Mode{Kind: Editing, CardID: cardID} }

// NewConnecting starts drawing a connector from a card.
func NewConnecting(fromCardID string) Mode { return Mode{Kind: Connecting, FromCardID: fromCardID} }

// NewPanning starts a viewport pan.
func NewPanning() Mode { return Mode{Kind: Panning} }

// Machine owns the current mode and the editing snapshot. Concurrent request
// handlers drive it, so a mutex guards the state.
type Machine struct {
	mu           sync.Mutex
	current      Mode
	editSnapshot map[string]any
	logger       *slog.Logger
}

// NewMachine creates a machine in the idle mode.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{current: NewIdle(), logger: logger}
}

// Current returns the active mode.
func (m *Machine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Is reports whether the active mode has the given kind.
func (m *Machine) Is(k Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Kind == k
}

// Set transitions to the new mode. A gesture may only start from idle, with
// one exception: any gesture may interrupt panning. Transitioning into
// editing must go through BeginEdit so the pre-edit snapshot is captured.
func (m *Machine) Set(next Mode) error {
	if next.Kind == Editing {
		return fmt.Errorf("mode: editing requires BeginEdit")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if next.Kind != Idle && m.current.Kind != Idle && m.current.Kind != Panning {
		return fmt.Errorf("mode: cannot enter %s while %s", next.Kind, m.current.Kind)
	}
	m.transition(next)
	return nil
}

// ResetToIdle unconditionally returns to idle, clearing any mode state and
// any pending edit snapshot. Used by mouseup/Escape cancellation.
func (m *Machine) ResetToIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(NewIdle())
}

// transition requires m.mu to be held.
func (m *Machine) transition(next Mode) {
	if m.current.Kind == Editing && next.Kind != Editing {
		m.editSnapshot = nil
	}
	m.current = next
}

// BeginEdit enters editing mode for the card, capturing a snapshot of its
// pre-edit content fields. The snapshot is compared on EndEdit to decide
// whether the edit is worth a history entry.
func (m *Machine) BeginEdit(cardID string, snapshot map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Kind != Idle && m.current.Kind != Panning {
		return fmt.Errorf("mode: cannot enter editing while %s", m.current.Kind)
	}
	m.current = NewEditing(cardID)
	m.editSnapshot = make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		m.editSnapshot[k] = v
	}
	return nil
}

// EndEdit leaves editing mode and diffs the card's current content fields
// against the snapshot. It returns the changed fields and their snapshot
// values; both are empty when nothing changed, in which case no history
// entry should be produced.
func (m *Machine) EndEdit(current map[string]any) (changed, previous map[string]any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Kind != Editing {
		return nil, nil, fmt.Errorf("mode: not editing")
	}
	snapshot := m.editSnapshot
	m.transition(NewIdle())

	changed = make(map[string]any)
	previous = make(map[string]any)
	for k, v := range current {
		// Content values come from JSON, so lists and nested objects are
		// routine; only DeepEqual compares those safely.
		if old, ok := snapshot[k]; !ok || !reflect.DeepEqual(old, v) {
			changed[k] = v
			if ok {
				previous[k] = old
			} else {
				previous[k] = nil
			}
		}
	}
	// Fields deleted during the edit.
	for k, v := range snapshot {
		if _, ok := current[k]; !ok {
			changed[k] = nil
			previous[k] = v
		}
	}
	return changed, previous, nil
}
