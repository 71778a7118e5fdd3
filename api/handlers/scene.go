package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🧱 场景编辑 Handler
// =============================================================================

// SceneHandler 场景对象与编辑器状态处理器。所有变更都落到 scene.Store，
// 一致性规则（快照入栈、陈旧 id 静默忽略、锁定对象不可动）由存储执行，
// Handler 只做解码与验证。
type SceneHandler struct {
	store  *scene.Store
	logger *zap.Logger
}

// NewSceneHandler 创建场景编辑处理器
func NewSceneHandler(store *scene.Store, logger *zap.Logger) *SceneHandler {
	return &SceneHandler{
		store:  store,
		logger: logger,
	}
}

// HandleState 返回全量编辑器状态
// @Summary 全量状态
// @Description 返回资产、场景对象、编辑器瞬态、相机与通知的聚合快照
// @Tags 场景
// @Produce json
// @Success 200 {object} Response "聚合状态"
// @Security ApiKeyAuth
// @Router /v1/scene [get]
func (h *SceneHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.store.State())
}

// HandleObjects 列出场景对象
// @Summary 场景对象列表
// @Description 按放置顺序返回全部场景对象
// @Tags 场景
// @Produce json
// @Success 200 {object} Response "对象列表"
// @Security ApiKeyAuth
// @Router /v1/scene/objects [get]
func (h *SceneHandler) HandleObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.store.Objects())
}

// HandleAddModel 放置模型对象
// @Summary 放置模型
// @Description 把一个模型放入场景并选中；对象落在原点
// @Tags 场景
// @Accept json
// @Produce json
// @Param request body api.AddModelRequest true "模型地址与名称"
// @Success 200 {object} Response "新对象"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/scene/objects/model [post]
func (h *SceneHandler) HandleAddModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AddModelRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "url is required"), h.logger)
		return
	}

	obj := h.store.AddModelToScene(req.URL, req.Name)
	WriteSuccess(w, obj)
}

// HandleAddLight 放置默认灯光
// @Summary 放置灯光
// @Description 放置一盏默认点光源并选中（位置 (2,5,2)，强度 1.0）
// @Tags 场景
// @Produce json
// @Success 200 {object} Response "新对象"
// @Security ApiKeyAuth
// @Router /v1/scene/objects/light [post]
func (h *SceneHandler) HandleAddLight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.store.AddLightToScene())
}

// HandleAddCamera 放置默认场景相机
// @Summary 放置场景相机
// @Description 放置一台默认场景相机并选中（位置 (0,2,5)，FOV 50）
// @Tags 场景
// @Produce json
// @Success 200 {object} Response "新对象"
// @Security ApiKeyAuth
// @Router /v1/scene/objects/camera [post]
func (h *SceneHandler) HandleAddCamera(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.store.AddCameraToScene())
}

// HandleObject 单对象操作：查询 / 补丁 / 删除
// @Summary 单对象操作
// @Description GET 查询；PATCH 浅合并补丁；DELETE 删除。补丁与删除对
// @Description 不存在的 id 是静默空操作 — 异步回调与用户删除的竞争是预期行为
// @Tags 场景
// @Accept json
// @Produce json
// @Param id path string true "对象 id"
// @Success 200 {object} Response "对象或空"
// @Failure 404 {object} Response "GET 时对象不存在"
// @Security ApiKeyAuth
// @Router /v1/scene/objects/{id} [get]
func (h *SceneHandler) HandleObject(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "object id is required"), h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		obj, ok := h.store.Object(id)
		if !ok {
			WriteError(w, types.NewError(types.ErrNotFound, "object not found"), h.logger)
			return
		}
		WriteSuccess(w, obj)

	case http.MethodPatch:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var patch types.ObjectPatch
		if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
			return
		}
		h.store.UpdateSceneObject(id, patch)
		// 陈旧 id 静默忽略：更新后仍不存在就返回空数据
		if obj, ok := h.store.Object(id); ok {
			WriteSuccess(w, obj)
			return
		}
		WriteSuccess(w, nil)

	case http.MethodDelete:
		h.store.RemoveSceneObject(id)
		WriteSuccess(w, nil)

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleSelection 查询 / 切换选中对象
// @Summary 对象选择
// @Description GET 返回当前选中对象 id；PUT 切换选择（id 不存在时清空）
// @Tags 场景
// @Accept json
// @Produce json
// @Param request body api.SelectObjectRequest true "目标对象 id"
// @Success 200 {object} Response "当前选择"
// @Security ApiKeyAuth
// @Router /v1/scene/selection [put]
func (h *SceneHandler) HandleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, api.SelectObjectRequest{ObjectID: h.store.SelectedObjectID()})

	case http.MethodPut:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.SelectObjectRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		h.store.SelectObject(req.ObjectID)
		WriteSuccess(w, api.SelectObjectRequest{ObjectID: h.store.SelectedObjectID()})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleSelectedTransform 合并选中对象的变换补丁
// @Summary 选中对象变换
// @Description 对当前选中对象应用变换补丁；锁定对象与空选择是静默空操作
// @Tags 场景
// @Accept json
// @Produce json
// @Param request body types.TransformPatch true "变换补丁"
// @Success 200 {object} Response "变更后的对象或空"
// @Security ApiKeyAuth
// @Router /v1/scene/selection/transform [patch]
func (h *SceneHandler) HandleSelectedTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var patch types.TransformPatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}
	h.store.UpdateSelectedObjectTransform(patch)

	if obj, ok := h.store.Object(h.store.SelectedObjectID()); ok {
		WriteSuccess(w, obj)
		return
	}
	WriteSuccess(w, nil)
}

// HandleTransformMode 查询 / 切换变换手柄模式
// @Summary 变换模式
// @Description GET 返回当前模式；PUT 切换 translate / rotate / scale
// @Tags 场景
// @Accept json
// @Produce json
// @Param request body api.TransformModeRequest true "目标模式"
// @Success 200 {object} Response "当前模式"
// @Failure 400 {object} Response "未知模式"
// @Security ApiKeyAuth
// @Router /v1/scene/transform-mode [put]
func (h *SceneHandler) HandleTransformMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, api.TransformModeRequest{Mode: string(h.store.TransformMode())})

	case http.MethodPut:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.TransformModeRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		mode := types.TransformMode(req.Mode)
		switch mode {
		case types.ModeTranslate, types.ModeRotate, types.ModeScale:
		default:
			WriteError(w, types.NewError(types.ErrInvalidRequest, "mode must be translate, rotate or scale"), h.logger)
			return
		}
		h.store.SetTransformMode(mode)
		WriteSuccess(w, api.TransformModeRequest{Mode: string(mode)})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleClear 清空场景
// @Summary 清空场景
// @Description 移除全部场景对象并重置选择与激活相机（可撤销）
// @Tags 场景
// @Produce json
// @Success 200 {object} Response "空"
// @Security ApiKeyAuth
// @Router /v1/scene/clear [post]
func (h *SceneHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	h.store.ClearScene()
	WriteSuccess(w, nil)
}

// HandleUndo 撤销最近一次场景变更
// @Summary 撤销
// @Description 撤销最近一次场景变更；历史为空时是空操作
// @Tags 历史
// @Produce json
// @Success 200 {object} Response "撤销后的历史状态"
// @Security ApiKeyAuth
// @Router /v1/scene/undo [post]
func (h *SceneHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	h.store.Undo()
	WriteSuccess(w, h.historyStatus())
}

// HandleRedo 重做最近一次撤销
// @Summary 重做
// @Description 重做最近一次撤销；未处于撤销链上时是空操作
// @Tags 历史
// @Produce json
// @Success 200 {object} Response "重做后的历史状态"
// @Security ApiKeyAuth
// @Router /v1/scene/redo [post]
func (h *SceneHandler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	h.store.Redo()
	WriteSuccess(w, h.historyStatus())
}

// HandleHistory 查询撤销/重做可用性
// @Summary 历史状态
// @Description 返回历史栈可用性与深度
// @Tags 历史
// @Produce json
// @Success 200 {object} Response "历史状态"
// @Security ApiKeyAuth
// @Router /v1/scene/history [get]
func (h *SceneHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.historyStatus())
}

func (h *SceneHandler) historyStatus() api.HistoryStatusResponse {
	past, future := h.store.HistoryLengths()
	return api.HistoryStatusResponse{
		CanUndo: past > 0,
		CanRedo: future > 0,
		Past:    past,
		Future:  future,
	}
}

// HandleRenderSettings 查询 / 合并渲染配置
// @Summary 渲染配置
// @Description GET 返回当前配置；PATCH 浅合并补丁（与场景变更同属撤销域）
// @Tags 渲染
// @Accept json
// @Produce json
// @Param request body types.RenderSettingsPatch true "渲染配置补丁"
// @Success 200 {object} Response "当前配置"
// @Security ApiKeyAuth
// @Router /v1/scene/render-settings [patch]
func (h *SceneHandler) HandleRenderSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, h.store.RenderSettings())

	case http.MethodPatch:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var patch types.RenderSettingsPatch
		if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
			return
		}
		h.store.UpdateRenderSettings(patch)
		WriteSuccess(w, h.store.RenderSettings())

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleNotifications 通知列表 / 追加通知
// @Summary 通知
// @Description GET 返回存活通知；POST 追加一条 4 秒后自动过期的通知
// @Tags 通知
// @Accept json
// @Produce json
// @Param request body api.NotificationRequest true "通知内容"
// @Success 200 {object} Response "通知或列表"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/notifications [post]
func (h *SceneHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, h.store.Notifications())

	case http.MethodPost:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.NotificationRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "message is required"), h.logger)
			return
		}
		typ := types.NotificationType(req.Type)
		switch typ {
		case types.NotifySuccess, types.NotifyError, types.NotifyInfo:
		case "":
			typ = types.NotifyInfo
		default:
			WriteError(w, types.NewError(types.ErrInvalidRequest, "type must be success, error or info"), h.logger)
			return
		}
		WriteSuccess(w, h.store.Notify(typ, req.Message))

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleDismissNotification 立即移除通知
// @Summary 移除通知
// @Description 立即移除一条通知；定时器已触发过时安全无害
// @Tags 通知
// @Produce json
// @Param id path string true "通知 id"
// @Success 200 {object} Response "空"
// @Security ApiKeyAuth
// @Router /v1/notifications/{id} [delete]
func (h *SceneHandler) HandleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	id := pathID(r)
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "notification id is required"), h.logger)
		return
	}
	h.store.DismissNotification(id)
	WriteSuccess(w, nil)
}

// pathID 提取路径末段 id：Go 1.22+ 路由模式变量优先，直接挂载时回退到
// 路径末段截取。
func pathID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.Trim(r.URL.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return ""
}
