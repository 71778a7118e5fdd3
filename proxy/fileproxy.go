package proxy

import (
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/internal/tlsutil"
)

// =============================================================================
// 🗂️ 文件代理
// =============================================================================

// forwardedHeaders 文件代理允许透传的响应头白名单。上游的 CORS 与
// Transfer-Encoding 头不在名单内，一律丢弃。
var forwardedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Disposition",
	"Cache-Control",
	"Etag",
	"Last-Modified",
}

// FileProxy 把 GET /proxy?url=… 的目标资源流式转发给浏览器。
type FileProxy struct {
	client *http.Client
	logger *zap.Logger
	rec    Recorder
}

// FileProxyOption 配置 FileProxy。
type FileProxyOption func(*FileProxy)

// WithFileProxyClient 覆盖转发用 HTTP 客户端（测试注入用）。
func WithFileProxyClient(client *http.Client) FileProxyOption {
	return func(p *FileProxy) { p.client = client }
}

// WithFileProxyRecorder 注入转发结果观测回调。
func WithFileProxyRecorder(rec Recorder) FileProxyOption {
	return func(p *FileProxy) { p.rec = rec }
}

// NewFileProxy 创建文件代理。logger 为 nil 时退化为 zap.NewNop()。
// 缺省转发客户端不设全局超时 — 大模型文件的下载时长由请求 ctx 决定。
func NewFileProxy(logger *zap.Logger, opts ...FileProxyOption) *FileProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FileProxy{
		client: tlsutil.StreamingHTTPClient(),
		logger: logger.With(zap.String("component", "file_proxy")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleProxy 流式转发目标资源
// @Summary 文件代理
// @Description 代理下载模型/贴图文件，仅透传安全响应头白名单
// @Tags 代理
// @Produce octet-stream
// @Param url query string true "目标资源地址（http/https）"
// @Success 200 {file} binary "目标资源内容"
// @Failure 400 {object} proxyError "url 参数缺失或不合法"
// @Failure 502 {object} proxyError "目标不可达"
// @Router /proxy [get]
func (p *FileProxy) HandleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeProxyError(w, http.StatusMethodNotAllowed, "method not allowed")
		record(p.rec, routeFile, http.StatusMethodNotAllowed, 0)
		return
	}

	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeProxyError(w, http.StatusBadRequest, "missing url parameter")
		record(p.rec, routeFile, http.StatusBadRequest, 0)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeProxyError(w, http.StatusBadRequest, "unsupported proxy target")
		record(p.rec, routeFile, http.StatusBadRequest, 0)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, "invalid proxy target")
		record(p.rec, routeFile, http.StatusBadRequest, 0)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// 目标地址可能携带签名令牌，日志只记主机名
		p.logger.Warn("proxy target fetch failed",
			zap.String("host", target.Host),
			zap.Error(err),
		)
		writeProxyError(w, http.StatusBadGateway, "failed to fetch proxy target")
		record(p.rec, routeFile, http.StatusBadGateway, 0)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for _, k := range forwardedHeaders {
		for _, v := range resp.Header.Values(k) {
			header.Add(k, v)
		}
	}
	// 上游状态码原样透传：CDN 的 404/403 对编辑器同样有意义
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		// 响应头已发出，中断只能记日志；浏览器取消下载是常态
		p.logger.Debug("proxy stream interrupted",
			zap.String("host", target.Host),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
	}
	record(p.rec, routeFile, resp.StatusCode, n)
}
