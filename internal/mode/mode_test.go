package mode

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/starford/tafl/internal/geometry"
)

func machine() *Machine {
	return NewMachine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSet_FromIdle(t *testing.T) {
	m := machine()
	if err := m.Set(NewDragging([]string{"a", "b"})); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !m.Is(Dragging) || len(m.Current().CardIDs) != 2 {
		t.Errorf("mode = %+v", m.Current())
	}
}

func TestSet_RefusedWhileBusy(t *testing.T) {
	m := machine()
	if err := m.Set(NewResizing("a", HandleSE)); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(NewDragging([]string{"b"})); err == nil {
		t.Error("expected refusal while resizing")
	}
	if !m.Is(Resizing) {
		t.Errorf("mode = %v, want resizing preserved", m.Current().Kind)
	}
}

func TestSet_GestureInterruptsPanning(t *testing.T) {
	m := machine()
	if err := m.Set(NewPanning()); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(NewSelecting(geometry.Point{X: 3, Y: 4})); err != nil {
		t.Errorf("selecting must be allowed to interrupt panning: %v", err)
	}
	if !m.Is(Selecting) || m.Current().StartPos != (geometry.Point{X: 3, Y: 4}) {
		t.Errorf("mode = %+v", m.Current())
	}
}

func TestSet_ClearsPreviousModeFields(t *testing.T) {
	m := machine()
	_ = m.Set(NewDragging([]string{"a"}))
	m.ResetToIdle()
	_ = m.Set(NewPanning())
	cur := m.Current()
	if cur.CardIDs != nil || cur.CardID != "" || cur.FromCardID != "" {
		t.Errorf("stale fields leaked into new mode: %+v", cur)
	}
}

func TestResetToIdle_AlwaysWorks(t *testing.T) {
	m := machine()
	_ = m.Set(NewConnecting("a"))
	m.ResetToIdle()
	if !m.Is(Idle) {
		t.Errorf("mode = %v, want idle", m.Current().Kind)
	}
}

func TestSet_EditingRejected(t *testing.T) {
	m := machine()
	if err := m.Set(NewEditing("a")); err == nil {
		t.Error("Set must refuse editing; BeginEdit is the entry point")
	}
}

func TestEditLifecycle_ChangedFields(t *testing.T) {
	m := machine()
	if err := m.BeginEdit("card", map[string]any{"text": "old", "url": "u"}); err != nil {
		t.Fatal(err)
	}
	changed, previous, err := m.EndEdit(map[string]any{"text": "new", "url": "u"})
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed["text"] != "new" {
		t.Errorf("changed = %v", changed)
	}
	if previous["text"] != "old" {
		t.Errorf("previous = %v", previous)
	}
	if !m.Is(Idle) {
		t.Errorf("mode = %v, want idle after EndEdit", m.Current().Kind)
	}
}

func TestEditLifecycle_NoChangeNoEntry(t *testing.T) {
	m := machine()
	_ = m.BeginEdit("card", map[string]any{"text": "same"})
	changed, _, err := m.EndEdit(map[string]any{"text": "same"})
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("changed = %v, want empty (no history entry)", changed)
	}
}

func TestEditLifecycle_NestedContent(t *testing.T) {
	m := machine()
	err := m.BeginEdit("card", map[string]any{
		"items": []any{"a", "b"},
		"meta":  map[string]any{"done": false},
	})
	if err != nil {
		t.Fatal(err)
	}
	changed, previous, err := m.EndEdit(map[string]any{
		"items": []any{"a", "b"},
		"meta":  map[string]any{"done": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := changed["items"]; ok {
		t.Errorf("unchanged list reported as changed: %v", changed)
	}
	if !reflect.DeepEqual(changed["meta"], map[string]any{"done": true}) {
		t.Errorf("changed = %v", changed)
	}
	if !reflect.DeepEqual(previous["meta"], map[string]any{"done": false}) {
		t.Errorf("previous = %v", previous)
	}
}

func TestEditLifecycle_EqualNestedContentNoEntry(t *testing.T) {
	m := machine()
	_ = m.BeginEdit("card", map[string]any{"items": []any{"a", "b"}})
	changed, _, err := m.EndEdit(map[string]any{"items": []any{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("changed = %v, want empty", changed)
	}
}

func TestEditLifecycle_DeletedField(t *testing.T) {
	m := machine()
	_ = m.BeginEdit("card", map[string]any{"text": "x", "note": "gone"})
	changed, previous, _ := m.EndEdit(map[string]any{"text": "x"})
	if v, ok := changed["note"]; !ok || v != nil {
		t.Errorf("changed = %v, want note -> nil", changed)
	}
	if previous["note"] != "gone" {
		t.Errorf("previous = %v", previous)
	}
}

func TestEndEdit_NotEditing(t *testing.T) {
	m := machine()
	if _, _, err := m.EndEdit(nil); err == nil {
		t.Error("EndEdit outside editing must fail")
	}
}

func TestMachine_ConcurrentHandlers(t *testing.T) {
	m := machine()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = m.Set(NewPanning())
				_ = m.Current()
				_ = m.Is(Editing)
				if m.BeginEdit("card", map[string]any{"text": "x"}) == nil {
					_, _, _ = m.EndEdit(map[string]any{"text": "y"})
				}
				m.ResetToIdle()
			}
		}()
	}
	wg.Wait()
	if !m.Is(Idle) {
		t.Errorf("mode = %v, want idle after all gestures finished", m.Current().Kind)
	}
}

func TestEscape_ClearsEditSnapshot(t *testing.T) {
	m := machine()
	_ = m.BeginEdit("card", map[string]any{"text": "old"})
	m.ResetToIdle()
	if m.editSnapshot != nil {
		t.Error("snapshot must be discarded on cancellation")
	}
	if _, _, err := m.EndEdit(nil); err == nil {
		t.Error("EndEdit after cancellation must fail")
	}
}
