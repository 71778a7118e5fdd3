package scene

import (
	"sync/atomic"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// positionEpsilon 吸收过渡期间的浮点抖动与自触发回声：低于该阈值的
// 轨道观察不回写存储。与重入防护二者缺一不可。
const positionEpsilon = 0.05

// orbitTargetDistance 进入"透过场景相机观察"模式时，轨道目标点沿
// 相机前向放置的距离。
const orbitTargetDistance = 10

// CameraPose is the directive emitted when the store needs the live viewport
// camera re-positioned (mode transitions and explicit camera-state writes).
type CameraPose struct {
	Position types.Vec3 `json:"position"`
	Target   types.Vec3 `json:"target"`
	FOV      float32    `json:"fov"`
}

// ApplyFunc receives store→camera directives. Implementations may call back
// into the store synchronously; the rig's re-entrancy guard drops the echo.
type ApplyFunc func(CameraPose)

// cameraRig reconciles the two writers of the live camera transform: the
// free-orbit controls (writing CameraState) and a scene camera object being
// looked through (writing that object's transform). The store serializes all
// rig mutations under its own lock; only the guard flag is touched from the
// unlocked apply path, hence the atomic.
type cameraRig struct {
	state    types.CameraState
	applying atomic.Bool
	onApply  ApplyFunc
	logger   *zap.Logger
}

func newCameraRig(logger *zap.Logger) *cameraRig {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cameraRig{
		state:  types.DefaultCameraState(),
		logger: logger.With(zap.String("component", "camera_rig")),
	}
}

// dispatch pushes a pose to the live camera with the re-entrancy guard held.
// Must be called without the store lock: the viewport callback may
// synchronously feed observations back through ObserveOrbit.
func (r *cameraRig) dispatch(pose CameraPose) {
	r.applying.Store(true)
	defer r.applying.Store(false)
	if r.onApply != nil {
		r.onApply(pose)
	}
}

// guardHeld reports whether a store→camera write is in flight.
func (r *cameraRig) guardHeld() bool {
	return r.applying.Load()
}

// poseForObject derives the live-camera pose for looking through a scene
// camera: position from the stored transform, orbit target along the
// object's forward vector, FOV from the camera payload.
func poseForObject(obj types.SceneObject) CameraPose {
	fov := types.DefaultCameraFOV
	if obj.Camera != nil {
		fov = obj.Camera.FOV
	}
	forward := forwardVector(obj.Transform.Rotation)
	return CameraPose{
		Position: obj.Transform.Position,
		Target:   obj.Transform.Position.Add(forward.Scale(orbitTargetDistance)),
		FOV:      fov,
	}
}

// poseForState converts the free camera state into an apply directive.
func poseForState(s types.CameraState) CameraPose {
	return CameraPose{Position: s.Position, Target: s.Target, FOV: s.FOV}
}

// forwardVector rotates the -Z axis by an Euler rotation (pitch rx around X,
// then yaw ry around Y): the unrotated camera looks down -Z.
func forwardVector(rot types.Vec3) types.Vec3 {
	cx := math32.Cos(rot.X)
	return types.Vec3{
		X: -math32.Sin(rot.Y) * cx,
		Y: math32.Sin(rot.X),
		Z: -math32.Cos(rot.Y) * cx,
	}
}

// lookRotation inverts forwardVector: the Euler angles (roll-free) that make
// a camera at `position` face `target`.
func lookRotation(position, target types.Vec3) types.Vec3 {
	dir := target.Sub(position).Normalized()
	pitch := math32.Asin(clamp(dir.Y, -1, 1))
	yaw := math32.Atan2(-dir.X, -dir.Z)
	return types.Vec3{X: pitch, Y: yaw}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// significantMove applies the epsilon threshold to an observed orbit change.
func significantMove(oldPos, newPos, oldTarget, newTarget types.Vec3) bool {
	return oldPos.Distance(newPos) > positionEpsilon ||
		oldTarget.Distance(newTarget) > positionEpsilon
}
