package scene

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sceneflow/types"
)

func TestHistory_PushClearsFuture(t *testing.T) {
	h := newHistory(0, nil)

	h.push(Snapshot{SelectedObjectID: "a"})
	h.push(Snapshot{SelectedObjectID: "b"})
	_, ok := h.undo(Snapshot{SelectedObjectID: "c"})
	require.True(t, ok)
	past, future := h.lengths()
	assert.Equal(t, 1, past)
	assert.Equal(t, 1, future)

	// 新的修改作废重做分支
	h.push(Snapshot{SelectedObjectID: "d"})
	past, future = h.lengths()
	assert.Equal(t, 2, past)
	assert.Zero(t, future)
}

func TestHistory_UndoRedoEmptyStacksAreNoops(t *testing.T) {
	h := newHistory(0, nil)

	_, ok := h.undo(Snapshot{})
	assert.False(t, ok)
	_, ok = h.redo(Snapshot{})
	assert.False(t, ok)

	past, future := h.lengths()
	assert.Zero(t, past)
	assert.Zero(t, future)
}

func TestHistory_LimitEvictsOldest(t *testing.T) {
	h := newHistory(3, nil)

	for i := 0; i < 5; i++ {
		h.push(Snapshot{SelectedObjectID: fmt.Sprintf("s%d", i)})
	}

	past, _ := h.lengths()
	require.Equal(t, 3, past)

	// 最老的 s0、s1 被淘汰，回退到底应是 s2
	var last Snapshot
	for {
		snap, ok := h.undo(last)
		if !ok {
			break
		}
		last = snap
	}
	assert.Equal(t, "s2", last.SelectedObjectID)
}

func TestHistory_PushStoresDeepCopies(t *testing.T) {
	h := newHistory(0, nil)
	obj := types.NewLightObject()
	snap := Snapshot{SceneObjects: []types.SceneObject{obj}}

	h.push(snap)
	snap.SceneObjects[0].Light.Intensity = 42

	restored, ok := h.undo(Snapshot{})
	require.True(t, ok)
	assert.Equal(t, float32(1.0), restored.SceneObjects[0].Light.Intensity,
		"later mutations must not leak into stored snapshots")
}

func TestStore_UndoRedoSymmetry(t *testing.T) {
	s := newTestStore(t)

	light := s.AddLightToScene()
	intensity := float32(2.5)
	s.UpdateSceneObject(light.ID, types.ObjectPatch{Light: &types.LightPatch{Intensity: &intensity}})

	s.Undo()
	got, ok := s.Object(light.ID)
	require.True(t, ok)
	assert.Equal(t, float32(1.0), got.Light.Intensity)

	s.Undo()
	assert.Empty(t, s.Objects())
	assert.False(t, s.CanUndo())

	s.Redo()
	s.Redo()
	got, ok = s.Object(light.ID)
	require.True(t, ok)
	assert.Equal(t, float32(2.5), got.Light.Intensity)
	assert.False(t, s.CanRedo())
}

func TestStore_MutationInvalidatesRedo(t *testing.T) {
	s := newTestStore(t)

	s.AddLightToScene()
	s.Undo()
	require.True(t, s.CanRedo())

	s.AddCameraToScene()
	assert.False(t, s.CanRedo(), "a fresh mutation ends the redo branch")
}

func TestStore_UndoRestoresSelection(t *testing.T) {
	s := newTestStore(t)
	light := s.AddLightToScene()
	camera := s.AddCameraToScene()
	require.Equal(t, camera.ID, s.SelectedObjectID())

	s.Undo()
	assert.Equal(t, light.ID, s.SelectedObjectID(), "selection is part of the snapshot")
}

func TestStore_UndoDropsDanglingActiveCamera(t *testing.T) {
	s := newTestStore(t)
	s.AddLightToScene()
	camera := s.AddCameraToScene()
	s.SetActiveCamera(camera.ID)

	// 回退到相机尚不存在的时刻：激活引用必须被清掉
	s.Undo()
	assert.Empty(t, s.ActiveCameraID())
	_, ok := s.Object(camera.ID)
	assert.False(t, ok)
}

// 完整编辑会话：加灯、调强度、撤销、重做、再撤销到空场景。
func TestStore_EditingSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	light := s.AddLightToScene()
	intensity := float32(4)
	s.UpdateSceneObject(light.ID, types.ObjectPatch{Light: &types.LightPatch{Intensity: &intensity}})

	read := func() float32 {
		obj, ok := s.Object(light.ID)
		require.True(t, ok)
		return obj.Light.Intensity
	}
	require.Equal(t, float32(4), read())

	s.Undo()
	assert.Equal(t, float32(1.0), read())

	s.Redo()
	assert.Equal(t, float32(4), read())

	s.Undo()
	s.Undo()
	assert.Empty(t, s.Objects())
	assert.False(t, s.CanUndo())
	assert.True(t, s.CanRedo())
}
