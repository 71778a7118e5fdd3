package scene

import (
	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// Snapshot is an immutable copy of the undoable scene slice, captured before
// every scene-mutating operation. Assets, notifications, editor camera and
// transform mode live outside the undo domain and are deliberately absent.
type Snapshot struct {
	SceneObjects     []types.SceneObject  `json:"sceneObjects"`
	RenderSettings   types.RenderSettings `json:"renderSettings"`
	SelectedObjectID string               `json:"selectedObjectId,omitempty"`
}

// history holds the past/future snapshot stacks. It is private to the store:
// external callers only reach it through Undo/Redo.
//
// Invariant: a redo is only possible immediately after an undo chain — every
// push clears the future stack.
type history struct {
	past   []Snapshot
	future []Snapshot

	// limit caps the past stack; 0 keeps every snapshot.
	limit  int
	logger *zap.Logger
}

func newHistory(limit int, logger *zap.Logger) *history {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &history{limit: limit, logger: logger.With(zap.String("component", "scene_history"))}
}

// cloneSnapshot deep-copies a snapshot so later in-place mutations of the
// live object graph can never reach back into stored history.
func cloneSnapshot(s Snapshot) Snapshot {
	var out Snapshot
	if err := copier.CopyWithOption(&out, &s, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on invalid (nil/unaddressable) destinations,
		// which cannot happen here; keep the store usable regardless.
		out = Snapshot{
			SceneObjects:     append([]types.SceneObject(nil), s.SceneObjects...),
			RenderSettings:   s.RenderSettings,
			SelectedObjectID: s.SelectedObjectID,
		}
	}
	if out.SceneObjects == nil {
		out.SceneObjects = []types.SceneObject{}
	}
	return out
}

// push records the pre-mutation state and invalidates any redo chain.
func (h *history) push(current Snapshot) {
	h.past = append(h.past, cloneSnapshot(current))
	if h.limit > 0 && len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	if len(h.future) > 0 {
		h.future = h.future[:0]
	}
}

// undo exchanges the current state for the most recent past snapshot.
// Returns ok=false on an empty past stack (caller treats it as a no-op).
func (h *history) undo(current Snapshot) (Snapshot, bool) {
	if len(h.past) == 0 {
		return Snapshot{}, false
	}
	restored := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, cloneSnapshot(current))
	return restored, true
}

// redo is symmetric to undo.
func (h *history) redo(current Snapshot) (Snapshot, bool) {
	if len(h.future) == 0 {
		return Snapshot{}, false
	}
	restored := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, cloneSnapshot(current))
	return restored, true
}

func (h *history) lengths() (past, future int) {
	return len(h.past), len(h.future)
}

func (h *history) reset() {
	h.past = nil
	h.future = nil
}
