package handlers

import (
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/api"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🗃️ 资产 Handler
// =============================================================================

// 上传请求体上限。参考图走 multipart，模型文件不经过这条路
const maxUploadBody = 32 << 20

// Generator 是资产 Handler 需要的生成流水线能力子集，*gen.Pipeline 满足它。
type Generator interface {
	StartImageJob(assetID, filename string, file io.Reader) error
	StartTextJob(assetID, prompt string) error
	Cancel(assetID string)
}

// AssetHandler 资产生命周期处理器：列表、导入参考图、文本生成、删除。
// 导入与生成先落一条 pending 资产，再把后续进度交给流水线异步推进 —
// HTTP 响应不等待生成结束。
type AssetHandler struct {
	store    *scene.Store
	pipeline Generator
	logger   *zap.Logger
}

// NewAssetHandler 创建资产处理器
func NewAssetHandler(store *scene.Store, pipeline Generator, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
	}
}

// HandleAssets 列出资产
// @Summary 资产列表
// @Description 按创建时间倒序返回全部资产
// @Tags 资产
// @Produce json
// @Success 200 {object} Response "资产列表"
// @Security ApiKeyAuth
// @Router /v1/assets [get]
func (h *AssetHandler) HandleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteSuccess(w, h.store.Assets())
}

// HandleImport 导入参考图并启动 image_to_model 生成
// @Summary 导入参考图
// @Description 接收 multipart 字段 file，创建 pending 资产并异步启动生成；
// @Description 响应立即返回新资产，进度经由事件流与轮询回调推进
// @Tags 资产
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "参考图"
// @Success 200 {object} Response "新资产（pending）"
// @Failure 400 {object} Response "缺少文件或文件为空"
// @Security ApiKeyAuth
// @Router /v1/assets/import [post]
func (h *AssetHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "multipart field 'file' is required").WithCause(err), h.logger)
		return
	}
	defer func() { _ = file.Close() }()

	asset := h.store.AddAsset(types.Asset{OriginalName: header.Filename})

	// 文件在当前 goroutine 内读完，网络部分全程异步
	if err := h.pipeline.StartImageJob(asset.ID, header.Filename, file); err != nil {
		// 生成没能启动，不留下悬空的 pending 资产
		h.store.RemoveAsset(asset.ID)
		WriteError(w, toError(err, "failed to start generation"), h.logger)
		return
	}

	h.logger.Info("asset import accepted",
		zap.String("asset_id", asset.ID),
		zap.String("filename", header.Filename),
	)
	WriteSuccess(w, asset)
}

// HandleGenerate 从文本提示启动 text_to_model 生成
// @Summary 文本生成
// @Description 创建 pending 资产并异步启动 text_to_model 任务
// @Tags 资产
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成提示"
// @Success 200 {object} Response "新资产（pending）"
// @Failure 400 {object} Response "提示为空"
// @Security ApiKeyAuth
// @Router /v1/assets/generate [post]
func (h *AssetHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "prompt is required"), h.logger)
		return
	}

	asset := h.store.AddAsset(types.Asset{OriginalName: prompt})

	if err := h.pipeline.StartTextJob(asset.ID, prompt); err != nil {
		h.store.RemoveAsset(asset.ID)
		WriteError(w, toError(err, "failed to start generation"), h.logger)
		return
	}

	h.logger.Info("text generation accepted", zap.String("asset_id", asset.ID))
	WriteSuccess(w, asset)
}

// HandleAsset 单资产操作：查询 / 删除
// @Summary 单资产操作
// @Description GET 查询；DELETE 取消在途生成并移除资产。删除不存在的
// @Description id 是静默空操作
// @Tags 资产
// @Produce json
// @Param id path string true "资产 id"
// @Success 200 {object} Response "资产或空"
// @Failure 404 {object} Response "GET 时资产不存在"
// @Security ApiKeyAuth
// @Router /v1/assets/{id} [delete]
func (h *AssetHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "asset id is required"), h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		asset, ok := h.store.Asset(id)
		if !ok {
			WriteError(w, types.NewError(types.ErrNotFound, "asset not found"), h.logger)
			return
		}
		WriteSuccess(w, asset)

	case http.MethodDelete:
		// 先停在途 job，再删资产；已结束的 job 取消是空操作
		h.pipeline.Cancel(id)
		h.store.RemoveAsset(id)
		WriteSuccess(w, nil)

	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}
