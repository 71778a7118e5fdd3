package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

// decodeEnvelope 解出统一响应信封。
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON_SetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	cause := errors.New("field prompt: required")

	tests := []struct {
		name        string
		err         *types.Error
		wantStatus  int
		wantDetails string
	}{
		{
			name:        "invalid request carries cause as details",
			err:         types.NewError(types.ErrInvalidRequest, "prompt is required").WithCause(cause),
			wantStatus:  http.StatusBadRequest,
			wantDetails: cause.Error(),
		},
		{
			name:       "task not found",
			err:        types.NewError(types.ErrTaskNotFound, "task not found"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "rate limited",
			err:        types.NewError(types.ErrRateLimited, "too many requests"),
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "backend unreachable surfaces retryable",
			err:        types.NewError(types.ErrBackendUnreachable, "backend is not reachable").WithRetryable(true),
			wantStatus: http.StatusBadGateway,
		},
		{
			// 5xx 不回显内部细节
			name:       "internal error hides cause",
			err:        types.NewError(types.ErrInternalError, "store unavailable").WithCause(errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, tt.err.Retryable, resp.Error.Retryable)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
		})
	}
}

func TestWriteError_ExplicitStatusWins(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrInvalidRequest, "conflict").WithHTTPStatus(http.StatusConflict)

	WriteError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusConflict, w.Code, "显式 HTTPStatus 优先于错误码映射")
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden, "origin not allowed", zap.NewNop())

	assert.Equal(t, http.StatusForbidden, w.Code)

	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrForbidden), resp.Error.Code)
	assert.Equal(t, "origin not allowed", resp.Error.Message)
}

func TestToError(t *testing.T) {
	// 链上已有结构化错误时原样取出
	structured := types.NewError(types.ErrTaskNotFound, "no such task")
	assert.Same(t, structured, toError(structured, "fallback"))

	wrapped := types.NewError(types.ErrRateLimited, "slow down")
	assert.Same(t, wrapped, toError(wrapped.WithCause(errors.New("x")), "fallback"))

	// 普通 error 按内部错误兜底，原错误挂到 Cause 上
	plain := errors.New("boom")
	got := toError(plain, "operation failed")
	assert.Equal(t, types.ErrInternalError, got.Code)
	assert.Equal(t, "operation failed", got.Message)
	assert.ErrorIs(t, got, plain)
}

// =============================================================================
// 🧪 请求体解码
// =============================================================================

func postJSON(body string) (*httptest.ResponseRecorder, *http.Request) {
	return httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	t.Run("valid JSON", func(t *testing.T) {
		w, r := postJSON(`{"name":"test","value":123}`)

		var got payload
		require.NoError(t, DecodeJSONBody(w, r, &got, zap.NewNop()))
		assert.Equal(t, payload{Name: "test", Value: 123}, got)
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		w, r := postJSON(`{"name":"test",}`)

		var got payload
		require.Error(t, DecodeJSONBody(w, r, &got, zap.NewNop()))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		w, r := postJSON(`{"name":"test","unknown":"field"}`)

		var got payload
		require.Error(t, DecodeJSONBody(w, r, &got, zap.NewNop()))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body returns 400", func(t *testing.T) {
		w, r := postJSON("")

		var got payload
		require.Error(t, DecodeJSONBody(w, r, &got, zap.NewNop()))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		resp := decodeEnvelope(t, w)
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Message, "empty")
	})

	t.Run("oversized body returns 413", func(t *testing.T) {
		w, r := postJSON(`{"name":"` + strings.Repeat("x", 2<<20) + `"}`)

		var got payload
		require.Error(t, DecodeJSONBody(w, r, &got, zap.NewNop()))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "超过 1 MB 上限要回 413")
	})
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"plain application/json", "application/json", true},
		{"with charset", "application/json; charset=utf-8", true},
		{"uppercase charset", "application/json; charset=UTF-8", true},
		{"extra whitespace", "application/json;  charset=utf-8", true},
		{"text/plain", "text/plain", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusBadRequest, w.Code, "拒绝时要顺手写好 400 响应")
			}
		})
	}
}

// =============================================================================
// 🧪 状态码捕获
// =============================================================================

func TestResponseWriter_FirstHeaderWins(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode, "重复 WriteHeader 被吞掉")
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrProxyTarget, http.StatusBadRequest},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrTaskNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrPollExhausted, http.StatusGatewayTimeout},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrBackendUnreachable, http.StatusBadGateway},
		{types.ErrBackendRejected, http.StatusBadGateway},
		{types.ErrTaskFailed, http.StatusBadGateway},
		{types.ErrUploadFailed, http.StatusBadGateway},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError}, // 表外默认
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
