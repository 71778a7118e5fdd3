package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🎥 相机 Handler
// =============================================================================

// CameraHandler 自由轨道相机与"透过场景相机观察"模式。连续轨道同步走
// POST /camera/orbit（高频、不产生撤销条目、不递增版本号），显式写入走
// PUT /camera（递增版本号，触发视口重新应用）。
type CameraHandler struct {
	store  *scene.Store
	logger *zap.Logger
}

// NewCameraHandler 创建相机处理器
func NewCameraHandler(store *scene.Store, logger *zap.Logger) *CameraHandler {
	return &CameraHandler{
		store:  store,
		logger: logger,
	}
}

// HandleCamera 查询 / 显式写入自由相机状态
// @Summary 自由相机状态
// @Description GET 返回当前状态；PUT 显式写入并递增版本号 — 对象观察
// @Description 模式下仅更新存储，退出观察时再应用
// @Tags 相机
// @Accept json
// @Produce json
// @Param request body api.CameraStateRequest true "位置、目标与视场角"
// @Success 200 {object} Response "相机状态"
// @Failure 400 {object} Response "视场角超出范围"
// @Security ApiKeyAuth
// @Router /v1/camera [put]
func (h *CameraHandler) HandleCamera(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, h.store.CameraState())

	case http.MethodPut:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.CameraStateRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if req.FOV <= 0 || req.FOV >= 180 {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "fov must be within (0, 180)"), h.logger)
			return
		}
		h.store.SetCameraState(req.Position, req.Target, req.FOV)
		WriteSuccess(w, h.store.CameraState())

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleOrbit 接收视口上报的轨道移动
// @Summary 轨道观察上报
// @Description 视口每次轨道交互都会命中这里；回声与低于阈值的漂移被
// @Description 静默丢弃，响应体不携带数据
// @Tags 相机
// @Accept json
// @Produce json
// @Param request body api.OrbitObservationRequest true "观察到的位置与目标"
// @Success 200 {object} Response "空"
// @Security ApiKeyAuth
// @Router /v1/camera/orbit [post]
func (h *CameraHandler) HandleOrbit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.OrbitObservationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.store.ObserveOrbit(req.Position, req.Target)
	WriteSuccess(w, nil)
}

// HandleActiveCamera 查询 / 进入 / 退出对象观察模式
// @Summary 观察相机
// @Description GET 返回被观察的相机 id（空串表示自由模式）；PUT 进入
// @Description 观察模式（id 不是存活相机时不生效，响应反映实际结果）；
// @Description DELETE 退出并恢复自由相机位姿
// @Tags 相机
// @Accept json
// @Produce json
// @Param request body api.ActiveCameraRequest true "目标相机对象 id"
// @Success 200 {object} Response "当前观察状态"
// @Failure 400 {object} Response "PUT 缺少 objectId"
// @Security ApiKeyAuth
// @Router /v1/camera/active [put]
func (h *CameraHandler) HandleActiveCamera(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, api.ActiveCameraRequest{ObjectID: h.store.ActiveCameraID()})

	case http.MethodPut:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.ActiveCameraRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if req.ObjectID == "" {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "objectId is required; use DELETE to exit camera view"), h.logger)
			return
		}
		h.store.SetActiveCamera(req.ObjectID)
		// id 不是存活相机时存储静默忽略，响应反映真实状态
		WriteSuccess(w, api.ActiveCameraRequest{ObjectID: h.store.ActiveCameraID()})

	case http.MethodDelete:
		h.store.ClearActiveCamera()
		WriteSuccess(w, api.ActiveCameraRequest{ObjectID: h.store.ActiveCameraID()})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}
