package handlers

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/config"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🔌 后端偏好 Handler
// =============================================================================

// BackendControl 是后端偏好路由需要的客户端能力子集，*gen.Client 满足它。
type BackendControl interface {
	BaseURL() string
	SetBaseURL(baseURL string)
	TestConnection(ctx context.Context) error
}

// BackendHandler 生成后端基地址偏好：读取、持久化切换、连通性探测。
// 这是引擎唯一持久化的偏好 — 变更先落盘再生效，进程重启后保持。
type BackendHandler struct {
	client BackendControl
	prefs  *config.Preferences
	logger *zap.Logger
}

// NewBackendHandler 创建后端偏好处理器。prefs 为 nil 时变更只在内存生效。
func NewBackendHandler(client BackendControl, prefs *config.Preferences, logger *zap.Logger) *BackendHandler {
	return &BackendHandler{
		client: client,
		prefs:  prefs,
		logger: logger,
	}
}

// HandleBackend 查询 / 切换后端基地址
// @Summary 后端基地址
// @Description GET 返回当前生效的基地址；PUT 校验、持久化并切换。
// @Description 持久化失败时不切换，返回 500
// @Tags 后端
// @Accept json
// @Produce json
// @Param request body api.BackendPreferenceRequest true "新基地址"
// @Success 200 {object} Response "当前基地址"
// @Failure 400 {object} Response "地址不是合法的 http(s) URL"
// @Security ApiKeyAuth
// @Router /v1/backend [put]
func (h *BackendHandler) HandleBackend(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, api.BackendPreferenceResponse{BaseURL: h.client.BaseURL()})

	case http.MethodPut:
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		var req api.BackendPreferenceRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		parsed, err := url.Parse(req.BaseURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "baseUrl must be an absolute http(s) URL"), h.logger)
			return
		}

		// 先落盘再切换：写失败时保持旧地址，重启后状态一致
		if h.prefs != nil {
			if err := h.prefs.SetBackendBaseURL(req.BaseURL); err != nil {
				h.logger.Error("failed to persist backend base url", zap.Error(err))
				WriteError(w, types.NewError(types.ErrInternalError, "failed to persist backend preference").WithCause(err), h.logger)
				return
			}
		}
		h.client.SetBaseURL(req.BaseURL)
		WriteSuccess(w, api.BackendPreferenceResponse{BaseURL: h.client.BaseURL()})

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleTestConnection 探测后端可达性
// @Summary 连通性探测
// @Description 对当前基地址发起探测；探测路径返回 404 也算可达。
// @Description 结果放在响应体里，探测失败不是 HTTP 错误
// @Tags 后端
// @Produce json
// @Success 200 {object} Response "探测结果"
// @Security ApiKeyAuth
// @Router /v1/backend/test [post]
func (h *BackendHandler) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	if err := h.client.TestConnection(r.Context()); err != nil {
		h.logger.Warn("backend connection test failed", zap.Error(err))
		WriteSuccess(w, api.ConnectionTestResponse{OK: false, Message: errSummary(err)})
		return
	}
	WriteSuccess(w, api.ConnectionTestResponse{OK: true, Message: "backend reachable"})
}

// errSummary 提取面向用户的错误消息，剥掉内部包装细节
func errSummary(err error) string {
	if e := types.AsError(err); e != nil {
		return e.Message
	}
	return err.Error()
}
