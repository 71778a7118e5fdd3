package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/BaSui01/sceneflow/types"
)

func newTestCamera(t *testing.T) (*CameraHandler, *scene.Store) {
	t.Helper()
	store := scene.NewStore()
	t.Cleanup(store.Close)
	return NewCameraHandler(store, zap.NewNop()), store
}

func TestCameraHandler_GetState(t *testing.T) {
	h, _ := newTestCamera(t)

	rec := httptest.NewRecorder()
	h.HandleCamera(rec, httptest.NewRequest(http.MethodGet, "/api/v1/camera", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.CameraState
	decodeData(t, rec, &state)
	assert.Equal(t, types.Vec3{X: 5, Y: 5, Z: 5}, state.Position)
	assert.Equal(t, float32(50), state.FOV)
	assert.Equal(t, uint64(0), state.Version)
}

func TestCameraHandler_PutStateBumpsVersion(t *testing.T) {
	h, store := newTestCamera(t)

	req := jsonRequest(t, http.MethodPut, "/api/v1/camera", api.CameraStateRequest{
		Position: types.Vec3{X: 10, Y: 4, Z: 0},
		Target:   types.Vec3{X: 0, Y: 1, Z: 0},
		FOV:      35,
	})
	rec := httptest.NewRecorder()
	h.HandleCamera(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.CameraState
	decodeData(t, rec, &state)
	assert.Equal(t, types.Vec3{X: 10, Y: 4, Z: 0}, state.Position)
	assert.Equal(t, float32(35), state.FOV)
	// 显式写入递增版本号
	assert.Equal(t, uint64(1), state.Version)
	assert.Equal(t, uint64(1), store.CameraState().Version)
}

func TestCameraHandler_PutStateRejectsBadFOV(t *testing.T) {
	h, store := newTestCamera(t)

	for _, fov := range []float32{0, -10, 180, 361} {
		req := jsonRequest(t, http.MethodPut, "/api/v1/camera", api.CameraStateRequest{
			Position: types.Vec3{X: 1},
			FOV:      fov,
		})
		rec := httptest.NewRecorder()
		h.HandleCamera(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "fov %v", fov)
	}
	// 失败的写入不碰状态
	assert.Equal(t, uint64(0), store.CameraState().Version)
}

func TestCameraHandler_Orbit(t *testing.T) {
	h, store := newTestCamera(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/camera/orbit", api.OrbitObservationRequest{
		Position: types.Vec3{X: 8, Y: 3, Z: 8},
		Target:   types.Vec3{X: 0, Y: 0, Z: 0},
	})
	rec := httptest.NewRecorder()
	h.HandleOrbit(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	state := store.CameraState()
	assert.Equal(t, types.Vec3{X: 8, Y: 3, Z: 8}, state.Position)
	// 连续同步不递增版本号
	assert.Equal(t, uint64(0), state.Version)
}

func TestCameraHandler_OrbitIgnoresDrift(t *testing.T) {
	h, store := newTestCamera(t)
	before := store.CameraState()

	// 低于 0.05 位置阈值的观察被当作漂移丢弃
	req := jsonRequest(t, http.MethodPost, "/api/v1/camera/orbit", api.OrbitObservationRequest{
		Position: types.Vec3{X: before.Position.X + 0.01, Y: before.Position.Y, Z: before.Position.Z},
		Target:   before.Target,
	})
	rec := httptest.NewRecorder()
	h.HandleOrbit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before.Position, store.CameraState().Position)
}

func TestCameraHandler_ActiveCameraRoundTrip(t *testing.T) {
	h, store := newTestCamera(t)
	cam := store.AddCameraToScene()

	// 进入观察模式
	req := jsonRequest(t, http.MethodPut, "/api/v1/camera/active", api.ActiveCameraRequest{ObjectID: cam.ID})
	rec := httptest.NewRecorder()
	h.HandleActiveCamera(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var active api.ActiveCameraRequest
	decodeData(t, rec, &active)
	assert.Equal(t, cam.ID, active.ObjectID)

	// GET 反映当前模式
	rec = httptest.NewRecorder()
	h.HandleActiveCamera(rec, httptest.NewRequest(http.MethodGet, "/api/v1/camera/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &active)
	assert.Equal(t, cam.ID, active.ObjectID)

	// 退出观察模式
	rec = httptest.NewRecorder()
	h.HandleActiveCamera(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/camera/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &active)
	assert.Equal(t, "", active.ObjectID)
	assert.Equal(t, "", store.ActiveCameraID())
}

func TestCameraHandler_ActiveCameraInvalidTarget(t *testing.T) {
	h, store := newTestCamera(t)
	model := store.AddModelToScene("https://cdn.example.com/robot.glb", "")

	// 模型对象不能被观察：存储静默忽略，响应反映真实状态
	req := jsonRequest(t, http.MethodPut, "/api/v1/camera/active", api.ActiveCameraRequest{ObjectID: model.ID})
	rec := httptest.NewRecorder()
	h.HandleActiveCamera(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var active api.ActiveCameraRequest
	decodeData(t, rec, &active)
	assert.Equal(t, "", active.ObjectID)

	// PUT 空 id 是用法错误
	req = jsonRequest(t, http.MethodPut, "/api/v1/camera/active", api.ActiveCameraRequest{})
	rec = httptest.NewRecorder()
	h.HandleActiveCamera(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCameraHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestCamera(t)

	rec := httptest.NewRecorder()
	h.HandleCamera(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/camera", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleOrbit(rec, httptest.NewRequest(http.MethodGet, "/api/v1/camera/orbit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleActiveCamera(rec, httptest.NewRequest(http.MethodPost, "/api/v1/camera/active", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
