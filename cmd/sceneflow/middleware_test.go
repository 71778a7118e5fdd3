package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// okHandler 回 200 的空处理器，给只关心中间件行为的用例用。
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	want := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}
	for name, value := range want {
		assert.Equal(t, value, w.Header().Get(name), name)
	}
}

func TestChain_EveryLayerTouchesResponse(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"), "安全头层生效")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"), "请求 ID 层生效")
}

func TestRequestID_PreservesClientProvidedID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-from-client")
	handler.ServeHTTP(w, r)

	assert.Equal(t, "req-from-client", seen)
	assert.Equal(t, "req-from-client", w.Header().Get("X-Request-ID"))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/scene", "/api/v1/scene"},
		{"/api/v1/scene/transform-mode", "/api/v1/scene/transform-mode"},
		{"/api/v1/assets/import", "/api/v1/assets/import"},
		{"/api/v1/assets/a1b2c3d4e5f6", "/api/v1/assets/:id"},
		{"/api/v1/scene/objects/0d9f3a7b-1c2e-4f5a-9b8c-7d6e5f4a3b2c", "/api/v1/scene/objects/:id"},
		{"/api/v1/notifications/12345678", "/api/v1/notifications/:id"},
		{"/task/98765432", "/task/:id"},
		{"/proxy", "/proxy"},
		{"/upload", "/upload"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.path), "path %s", tt.path)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret-key"}, []string{"/health"}, true, zap.NewNop())(okHandler())

	t.Run("valid header key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scene", nil)
		r.Header.Set("X-API-Key", "secret-key")
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("valid query key", func(t *testing.T) {
		// 浏览器 WebSocket 握手无法自定义请求头，走查询参数
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/events?api_key=secret-key", nil)
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scene", nil)
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip path bypasses auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:5173"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scene", nil)
		r.Header.Set("Origin", "http://localhost:5173")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("unknown origin gets no CORS headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scene", nil)
		r.Header.Set("Origin", "http://evil.example.com")
		handler.ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/scene", nil)
		r.Header.Set("Origin", "http://localhost:5173")
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRateLimiter_RejectsAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// rps 接近 0，burst 2：第三个请求必然被限
	handler := RateLimiter(ctx, 0.0001, 2, zap.NewNop())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scene", nil)
		r.RemoteAddr = "10.0.0.1:4242"
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestWSOriginPatterns(t *testing.T) {
	patterns := wsOriginPatterns([]string{
		"http://localhost:3000",
		"https://editor.example.com",
		"not a url",
	})
	assert.Equal(t, []string{"localhost:3000", "editor.example.com"}, patterns)
}
