package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sceneflow/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, nil, WithRetryPolicy(fastPolicy(2)))
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, code int, data any, message string) {
	payload, _ := json.Marshal(map[string]any{
		"code":    code,
		"message": message,
		"data":    data,
	})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func TestClient_UploadImage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err, "multipart field must be named file")
		defer file.Close()
		assert.Equal(t, "chair.png", header.Filename)
		content, _ := io.ReadAll(file)
		assert.Equal(t, "fake-image-bytes", string(content))

		writeEnvelope(w, 0, map[string]string{"image_token": "tok-123"}, "")
	}))

	token, err := c.UploadImage(context.Background(), "chair.png", strings.NewReader("fake-image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestClient_UploadRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// 重试必须重放完整 multipart 体
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		writeEnvelope(w, 0, map[string]string{"image_token": "tok-retry"}, "")
	}))

	token, err := c.UploadImage(context.Background(), "a.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "tok-retry", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CreateImageTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/task", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "image_to_model", body["type"])
		file := body["file"].(map[string]any)
		assert.Equal(t, "png", file["type"])
		assert.Equal(t, "tok-123", file["file_token"])

		writeEnvelope(w, 0, map[string]string{"task_id": "task-9"}, "")
	}))

	id, err := c.CreateImageTask(context.Background(), "tok-123", "png")
	require.NoError(t, err)
	assert.Equal(t, "task-9", id)
}

func TestClient_CreateTextTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text_to_model", body["type"])
		assert.Equal(t, "a red chair", body["prompt"])
		assert.NotContains(t, body, "file")

		writeEnvelope(w, 0, map[string]string{"task_id": "task-10"}, "")
	}))

	id, err := c.CreateTextTask(context.Background(), "a red chair")
	require.NoError(t, err)
	assert.Equal(t, "task-10", id)
}

func TestClient_ApplicationErrorNeverRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, 2003, nil, "prompt contains forbidden words")
	}))

	_, err := c.CreateTextTask(context.Background(), "bad prompt")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "code!=0 is an application error, no retry")
	assert.Equal(t, types.ErrBackendRejected, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "prompt contains forbidden words", "vendor message must surface")
}

func TestClient_AuthErrorIsDistinct(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.CreateTextTask(context.Background(), "chair")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	e := types.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, types.ErrAuthentication, e.Code)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus)
	assert.False(t, e.Retryable)
}

func TestClient_GetTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/task/task-9", r.URL.Path)
		writeEnvelope(w, 0, map[string]any{
			"status":   "RUNNING",
			"progress": 42.5,
			"output":   map[string]string{"base_model": "https://cdn/base.glb"},
		}, "")
	}))

	result, err := c.GetTask(context.Background(), "task-9")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, result.Status)
	assert.Equal(t, "RUNNING", result.RawStatus)
	assert.Equal(t, 42.5, result.Progress)
	assert.Equal(t, "https://cdn/base.glb", result.Output.BestModelURL())
	assert.Equal(t, "task-9", result.TaskID)
}

func TestClient_GetTaskDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.GetTask(context.Background(), "task-9")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "轮询器自己管理错误预算，客户端不得内部重试")
	e := types.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus)
	assert.True(t, e.Retryable)
}

func TestClient_GetTaskNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetTask(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrTaskNotFound, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestClient_TestConnection(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		wantCode types.ErrorCode
	}{
		{name: "200 reachable", status: http.StatusOK},
		{name: "404 proves routing works", status: http.StatusNotFound},
		{name: "401 bad key", status: http.StatusUnauthorized, wantErr: true, wantCode: types.ErrAuthentication},
		{name: "403 bad key", status: http.StatusForbidden, wantErr: true, wantCode: types.ErrAuthentication},
		{name: "503 backend down", status: http.StatusServiceUnavailable, wantErr: true, wantCode: types.ErrUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/task/connection-test", r.URL.Path)
				w.WriteHeader(tt.status)
			}))

			err := c.TestConnection(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		})
	}
}

func TestClient_TestConnectionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // 立即关掉，留下一个必然拒绝连接的地址

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	err := c.TestConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendUnreachable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestClient_SetBaseURLTakesEffect(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, map[string]string{"task_id": "t"}, "")
	}))

	c.SetBaseURL("http://127.0.0.1:1") // 不可达
	_, err := c.CreateTextTask(context.Background(), "chair")
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendUnreachable, types.GetErrorCode(err))

	c.SetBaseURL(srv.URL + "/") // 末尾斜杠必须被归一化
	id, err := c.CreateTextTask(context.Background(), "chair")
	require.NoError(t, err)
	assert.Equal(t, "t", id)
	assert.Equal(t, srv.URL+"/", c.BaseURL())
}

func TestClient_NoAuthHeaderWithoutKey(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		writeEnvelope(w, 0, map[string]string{"task_id": "t"}, "")
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil, WithRetryPolicy(fastPolicy(0)))
	_, err := c.CreateTextTask(context.Background(), "chair")
	require.NoError(t, err)
	assert.False(t, sawAuth.Load())
}

func TestFileTypeFromName(t *testing.T) {
	assert.Equal(t, "png", FileTypeFromName("chair.PNG"))
	assert.Equal(t, "jpg", FileTypeFromName("photo.jpg"))
	assert.Equal(t, "webp", FileTypeFromName("a.b.webp"))
	assert.Equal(t, "png", FileTypeFromName("noext"), "缺省按 png 处理")
}

func ExampleClient_TestConnection() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil)
	if err := c.TestConnection(context.Background()); err == nil {
		fmt.Println("backend reachable")
	}
	// Output: backend reachable
}
