package main

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/sceneflow/api/handlers"
	"github.com/BaSui01/sceneflow/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware 包装一层 http.Handler。
type Middleware func(http.Handler) http.Handler

// Chain 按声明顺序串联中间件：列表里的第一个最先看到请求。
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 🔖 请求 ID
// =============================================================================

type ctxKeyRequestID struct{}

// RequestIDFromContext 取出当前请求的 ID；链上没挂 RequestID 中间件时返回空串。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// RequestID 为每个请求生成 UUID 并写入 X-Request-ID 响应头与请求上下文。
// 客户端自带的 ID 原样沿用，方便编辑器把一次交互串到服务端日志。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
		})
	}
}

// =============================================================================
// 🛟 Panic 恢复
// =============================================================================

// Recovery 拦截 handler panic：记录堆栈后回 500，进程继续服务。
// Recovery 在 RequestID 外层，请求 ID 只能从响应头拿（两层共享同一 header map）。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", w.Header().Get("X-Request-ID")),
					zap.Stack("stack"),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📝 请求日志
// =============================================================================

// statusRecorder 只为日志捕获状态码，别的都透传。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// RequestLogger 每个请求一行结构化访问日志，带请求 ID。
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sr, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sr.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

// =============================================================================
// 🔒 安全响应头
// =============================================================================

// SecurityHeaders 给所有响应加固定安全头。
func SecurityHeaders() Middleware {
	const csp = "default-src 'self'"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🌍 CORS
// =============================================================================

// CORS 只对白名单内的来源回 CORS 头。白名单为空时一律不回
// Allow-Origin：浏览器侧的跨域请求会被拒，生产环境必须显式配置来源。
func CORS(allowedOrigins []string) Middleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && len(allowed) == 0 {
				// 未配置白名单的跨域预检直接拒绝
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

// ipLimiters 按客户端 IP 维护 token bucket，long-idle 的表项由 sweep 回收。
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*ipLimiterEntry
	rps     rate.Limit
	burst   int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (t *ipLimiters) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[ip]
	if !ok {
		e = &ipLimiterEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (t *ipLimiters) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			for ip, e := range t.entries {
				if time.Since(e.lastSeen) > 3*time.Minute {
					delete(t.entries, ip)
				}
			}
			t.mu.Unlock()
		}
	}
}

// RateLimiter 按 IP 限流。ctx 取消时停掉后台回收 goroutine。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	table := &ipLimiters{
		entries: make(map[string]*ipLimiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go table.sweep(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !table.get(ip).Allow() {
				logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","message":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🔑 API Key 认证
// =============================================================================

// APIKeyAuth 校验 X-API-Key 请求头。skipPaths 内的路径（健康检查等）放行。
// allowQueryAPIKey 放行 ?api_key= 查询参数：浏览器的 WebSocket 握手无法
// 自定义请求头，事件流只能走查询参数。
func APIKeyAuth(validKeys []string, skipPaths []string, allowQueryAPIKey bool, logger *zap.Logger) Middleware {
	keys := make(map[string]struct{}, len(validKeys))
	for _, k := range validKeys {
		keys[k] = struct{}{}
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	presented := func(r *http.Request) string {
		if k := r.Header.Get("X-API-Key"); k != "" {
			return k
		}
		if allowQueryAPIKey {
			return r.URL.Query().Get("api_key")
		}
		return ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := keys[presented(r)]; !ok {
				logger.Warn("request rejected: invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"invalid or missing API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📊 指标采集
// =============================================================================

// meteredWriter 捕获状态码和响应字节数；实现 http.Flusher，
// 文件代理的流式下载要靠它逐块冲刷。
type meteredWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

func (mw *meteredWriter) WriteHeader(code int) {
	if mw.wroteHeader {
		return
	}
	mw.status = code
	mw.wroteHeader = true
	mw.ResponseWriter.WriteHeader(code)
}

func (mw *meteredWriter) Write(b []byte) (int, error) {
	if !mw.wroteHeader {
		mw.WriteHeader(http.StatusOK)
	}
	n, err := mw.ResponseWriter.Write(b)
	mw.bytes += int64(n)
	return n, err
}

func (mw *meteredWriter) Flush() {
	if f, ok := mw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware 按 method/路径/状态记录请求指标。路径先经
// normalizePath 归一，避免资产/任务 ID 撑爆 Prometheus 标签基数。
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &meteredWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(mw, r)

			reqSize := r.ContentLength
			if reqSize < 0 {
				reqSize = 0
			}
			collector.RecordHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				mw.status,
				time.Since(start),
				reqSize,
				mw.bytes,
			)
		})
	}
}

// pathSegmentPattern 识别动态路径段：UUID、8 位以上十六进制、纯数字。
var pathSegmentPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`,
)

// normalizePath 把动态路径段替换成 ":id"：
//
//	/api/v1/assets/abc12345      -> /api/v1/assets/:id
//	/api/v1/scene/transform-mode -> 原样返回
func normalizePath(path string) string {
	// 静态路由直接命中，跳过正则
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/version", "/metrics",
		"/api/v1/scene", "/api/v1/scene/objects", "/api/v1/scene/selection",
		"/api/v1/scene/selection/transform", "/api/v1/scene/transform-mode",
		"/api/v1/scene/clear", "/api/v1/scene/undo", "/api/v1/scene/redo",
		"/api/v1/scene/history", "/api/v1/scene/render-settings",
		"/api/v1/assets", "/api/v1/assets/import", "/api/v1/assets/generate",
		"/api/v1/notifications", "/api/v1/camera", "/api/v1/camera/orbit",
		"/api/v1/camera/active", "/api/v1/backend", "/api/v1/backend/test",
		"/api/v1/events", "/proxy", "/upload", "/task":
		return path
	}

	segments := strings.Split(path, "/")
	normalized := false
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if pathSegmentPattern.MatchString(seg) {
			segments[i] = ":id"
			normalized = true
		}
	}
	if !normalized {
		return path
	}
	return strings.Join(segments, "/")
}

// =============================================================================
// 🔭 OTel 追踪
// =============================================================================

// OTelTracing 为每个请求开 span。span 名用归一化路径，和指标的
// 基数策略保持一致；入站 trace 上下文从请求头提取。
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := otel.GetTextMapPropagator()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			tracer := otel.Tracer("sceneflow/http")
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLFull(r.URL.String()),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
		})
	}
}
