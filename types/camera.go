package types

// CameraState is the free-orbit editor camera's own transform, distinct from
// any scene camera object. Version increases only on explicit external
// writes — never on continuous orbit sync — and signals the viewport to
// re-apply the state to the live camera.
type CameraState struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	FOV      float32 `json:"fov"`
	Version  uint64  `json:"version"`
}

// DefaultCameraState returns the free camera's startup placement.
func DefaultCameraState() CameraState {
	return CameraState{
		Position: V3(5, 5, 5),
		Target:   V3(0, 0, 0),
		FOV:      DefaultCameraFOV,
	}
}

// TransformMode is the active gizmo mode of the editor.
type TransformMode string

const (
	ModeTranslate TransformMode = "translate"
	ModeRotate    TransformMode = "rotate"
	ModeScale     TransformMode = "scale"
)

// EditorState is the transient UI-facing state outside the undo domain.
type EditorState struct {
	TransformMode    TransformMode `json:"transformMode"`
	SelectedObjectID string        `json:"selectedObjectId,omitempty"`
	ActiveCameraID   string        `json:"activeCameraId,omitempty"`
}
