package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/gen"
	"github.com/BaSui01/sceneflow/internal/cache"
	"github.com/BaSui01/sceneflow/internal/tlsutil"
)

// maxTaskBody 任务查询响应的读取上限，与 gen.Client 的限额一致。
const maxTaskBody = 4 << 20

// =============================================================================
// 🔀 厂商转发代理
// =============================================================================

// Config 上游厂商转发配置。APIKey 只在注入 Authorization 头时被读取，
// 绝不回显、绝不记日志。
type Config struct {
	// 厂商 API 基地址
	BaseURL string
	// 注入 Authorization: Bearer 的密钥
	APIKey string
	// 普通转发超时
	Timeout time.Duration
	// 上传转发超时，单独放宽
	UploadTimeout time.Duration
}

// DefaultConfig 返回默认厂商配置。
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.tripo3d.ai/v2/openapi",
		Timeout:       30 * time.Second,
		UploadTimeout: 120 * time.Second,
	}
}

// Backend 把编辑器侧的任务 API 请求转发给厂商，补上服务端保管的密钥。
// 出站请求从零构建，客户端带来的请求头（包括 Authorization）不透传。
type Backend struct {
	cfg          Config
	client       *http.Client
	uploadClient *http.Client
	cache        *cache.Manager
	taskTTL      time.Duration
	logger       *zap.Logger
	rec          Recorder
}

// BackendOption 配置 Backend。
type BackendOption func(*Backend)

// WithTaskCache 启用终态任务结果缓存。ttl 为 0 时用 cache.Manager 的
// 默认 TTL。mgr 为 nil 等同于不启用。
func WithTaskCache(mgr *cache.Manager, ttl time.Duration) BackendOption {
	return func(b *Backend) {
		b.cache = mgr
		b.taskTTL = ttl
	}
}

// WithBackendRecorder 注入转发结果观测回调。
func WithBackendRecorder(rec Recorder) BackendOption {
	return func(b *Backend) { b.rec = rec }
}

// WithBackendClients 覆盖转发用 HTTP 客户端（测试注入用）。
func WithBackendClients(std, upload *http.Client) BackendOption {
	return func(b *Backend) {
		b.client = std
		b.uploadClient = upload
	}
}

// NewBackend 创建厂商转发代理。logger 为 nil 时退化为 zap.NewNop()。
func NewBackend(cfg Config, logger *zap.Logger, opts ...BackendOption) *Backend {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Backend{
		cfg:          cfg,
		client:       tlsutil.SecureHTTPClient(cfg.Timeout),
		uploadClient: tlsutil.SecureHTTPClient(cfg.UploadTimeout),
		logger:       logger.With(zap.String("component", "backend_proxy")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) endpoint(path string) string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + path
}

// authorize 注入服务端保管的厂商密钥。
func (b *Backend) authorize(req *http.Request) {
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}
}

// HandleUpload 转发参考图上传
// @Summary 上传参考图（转发）
// @Description 把 multipart 上传流式转发给厂商并注入服务端密钥
// @Tags 代理
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} proxyError "厂商信封原样透传（code=0 为成功）"
// @Failure 502 {object} proxyError "厂商不可达"
// @Security ApiKeyAuth
// @Router /upload [post]
func (b *Backend) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProxyError(w, http.StatusMethodNotAllowed, "method not allowed")
		record(b.rec, routeUpload, http.StatusMethodNotAllowed, 0)
		return
	}

	// 请求体流式透传，参考图可达数十 MB，不在代理侧缓冲
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, b.endpoint("/upload"), r.Body)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, "failed to build vendor request")
		record(b.rec, routeUpload, http.StatusInternalServerError, 0)
		return
	}
	req.ContentLength = r.ContentLength
	// multipart 边界在 Content-Type 里，必须原样带上
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	b.authorize(req)

	b.forward(w, b.uploadClient, req, routeUpload)
}

// HandleCreateTask 转发任务创建
// @Summary 创建生成任务（转发）
// @Description 把 image_to_model / text_to_model 任务请求转发给厂商
// @Tags 代理
// @Accept json
// @Produce json
// @Success 200 {object} proxyError "厂商信封原样透传（code=0 为成功）"
// @Failure 502 {object} proxyError "厂商不可达"
// @Security ApiKeyAuth
// @Router /task [post]
func (b *Backend) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProxyError(w, http.StatusMethodNotAllowed, "method not allowed")
		record(b.rec, routeTaskCreate, http.StatusMethodNotAllowed, 0)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, b.endpoint("/task"), r.Body)
	if err != nil {
		writeProxyError(w, http.StatusInternalServerError, "failed to build vendor request")
		record(b.rec, routeTaskCreate, http.StatusInternalServerError, 0)
		return
	}
	req.ContentLength = r.ContentLength
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	b.forward(w, b.client, req, routeTaskCreate)
}

// HandleGetTask 转发任务状态查询
// @Summary 查询任务状态（转发）
// @Description 转发任务状态查询；终态结果命中 Redis 缓存时不回源
// @Tags 代理
// @Produce json
// @Param id path string true "任务 id"
// @Success 200 {object} proxyError "厂商信封原样透传（code=0 为成功）"
// @Failure 400 {object} proxyError "任务 id 缺失"
// @Failure 502 {object} proxyError "厂商不可达"
// @Security ApiKeyAuth
// @Router /task/{id} [get]
func (b *Backend) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProxyError(w, http.StatusMethodNotAllowed, "method not allowed")
		record(b.rec, routeTaskGet, http.StatusMethodNotAllowed, 0)
		return
	}

	taskID := taskIDFromRequest(r)
	if taskID == "" {
		writeProxyError(w, http.StatusBadRequest, "missing task id")
		record(b.rec, routeTaskGet, http.StatusBadRequest, 0)
		return
	}

	if body, ok := b.cachedTask(r.Context(), taskID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		n, _ := w.Write(body)
		record(b.rec, routeTaskGet, http.StatusOK, int64(n))
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, b.endpoint("/task/"+url.PathEscape(taskID)), nil)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, "invalid task id")
		record(b.rec, routeTaskGet, http.StatusBadRequest, 0)
		return
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn("vendor request failed",
			zap.String("route", routeTaskGet),
			zap.Error(err),
		)
		writeProxyError(w, http.StatusBadGateway, "vendor request failed")
		record(b.rec, routeTaskGet, http.StatusBadGateway, 0)
		return
	}
	defer resp.Body.Close()

	// 状态查询响应很小，读全量以便做终态缓存判定
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTaskBody))
	if err != nil {
		b.logger.Warn("vendor response read failed", zap.Error(err))
		writeProxyError(w, http.StatusBadGateway, "vendor response read failed")
		record(b.rec, routeTaskGet, http.StatusBadGateway, 0)
		return
	}

	if resp.StatusCode == http.StatusOK {
		b.maybeCacheTask(r.Context(), taskID, body)
	}

	copyVendorHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
	record(b.rec, routeTaskGet, resp.StatusCode, int64(len(body)))
}

// forward 执行出站请求并把厂商响应（状态码、Content-Type、响应体）原样
// 回写。厂商信封不在此处解析 — 成功与业务错误一视同仁地透传，分类是
// 客户端的事。
func (b *Backend) forward(w http.ResponseWriter, client *http.Client, req *http.Request, route string) {
	resp, err := client.Do(req)
	if err != nil {
		b.logger.Warn("vendor request failed",
			zap.String("route", route),
			zap.Error(err),
		)
		writeProxyError(w, http.StatusBadGateway, "vendor request failed")
		record(b.rec, route, http.StatusBadGateway, 0)
		return
	}
	defer resp.Body.Close()

	copyVendorHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	n, _ := io.Copy(w, resp.Body)
	record(b.rec, route, resp.StatusCode, n)
}

func copyVendorHeaders(w http.ResponseWriter, resp *http.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
}

// cachedTask 查终态任务缓存。缓存未启用、未命中或查询失败都返回 !ok，
// 由调用方回源；Redis 故障只降级不报错。
func (b *Backend) cachedTask(ctx context.Context, taskID string) ([]byte, bool) {
	if b.cache == nil {
		return nil, false
	}
	val, err := b.cache.Get(ctx, cache.TaskKey(taskID))
	if err != nil {
		if !cache.IsCacheMiss(err) {
			b.logger.Warn("task cache lookup failed",
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
		if b.rec != nil {
			b.rec.RecordCacheMiss(taskCacheType)
		}
		return nil, false
	}
	if b.rec != nil {
		b.rec.RecordCacheHit(taskCacheType)
	}
	b.logger.Debug("task cache hit", zap.String("task_id", taskID))
	return []byte(val), true
}

// maybeCacheTask 仅在任务已终结时写缓存：completed/error 之后结果不再
// 变化；进行中的状态一旦缓存会让轮询器看到过期进度。信封解码失败或
// code≠0 的业务错误同样不缓存 — 错误可能是暂时的。
func (b *Backend) maybeCacheTask(ctx context.Context, taskID string, body []byte) {
	if b.cache == nil {
		return
	}
	var env struct {
		Code int `json:"code"`
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Code != 0 {
		return
	}
	if !gen.NormalizeStatus(env.Data.Status).Terminal() {
		return
	}
	if err := b.cache.Set(ctx, cache.TaskKey(taskID), string(body), b.taskTTL); err != nil {
		b.logger.Warn("task cache write failed",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
}

// taskIDFromRequest 提取任务 id：Go 1.22+ 路由模式变量优先，直接挂载
// 无模式变量时回退到路径末段截取。
func taskIDFromRequest(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.Trim(r.URL.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return ""
}
