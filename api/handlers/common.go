package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// maxRequestBody JSON 请求体上限。编辑器操作的请求都很小，
// 大文件走 multipart 上传通道，不经过这里。
const maxRequestBody = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 是所有 JSON 端点共用的信封：成功带 Data，失败带 Error，
// 两者互斥。
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 是信封里的错误块，字段取自 types.Error。
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 只参与选状态码，不落 JSON
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 按给定状态码序列化任意负载，探测端点等不走信封的响应也用它。
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已发出，编码失败只能由连接层兜底
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 以 200 发出带 Data 的成功信封。
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应（从 types.Error）。
// 4xx 记 Warn 并把底层原因放进 details 方便调用方自查；
// 5xx 记 Error，内部细节不回显。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := httpStatusFor(err)

	info := &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}
	if status < http.StatusInternalServerError && err.Cause != nil {
		info.Details = err.Cause.Error()
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 临时拼一个 types.Error 再走 WriteError，给没有现成
// 错误对象的调用点用。
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	err := types.NewError(code, message).WithHTTPStatus(status)
	WriteError(w, err, logger)
}

// toError 把任意 error 规整为 *types.Error；链上没有结构化错误时按内部错误兜底
func toError(err error, fallback string) *types.Error {
	if e := types.AsError(err); e != nil {
		return e
	}
	return types.NewError(types.ErrInternalError, fallback).WithCause(err)
}

// =============================================================================
// 🔄 错误码与状态码的换算
// =============================================================================

// statusByCode 错误码 → HTTP 状态码。不在表里的一律按 500 处理。
var statusByCode = map[types.ErrorCode]int{
	// 4xx 客户端错误
	types.ErrInvalidRequest: http.StatusBadRequest,
	types.ErrProxyTarget:    http.StatusBadRequest,
	types.ErrAuthentication: http.StatusUnauthorized,
	types.ErrUnauthorized:   http.StatusUnauthorized,
	types.ErrForbidden:      http.StatusForbidden,
	types.ErrNotFound:       http.StatusNotFound,
	types.ErrTaskNotFound:   http.StatusNotFound,
	types.ErrRateLimited:    http.StatusTooManyRequests,

	// 5xx 服务端 / 上游错误
	types.ErrTimeout:            http.StatusGatewayTimeout,
	types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
	types.ErrPollExhausted:      http.StatusGatewayTimeout,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrUpstreamError:      http.StatusBadGateway,
	types.ErrBackendUnreachable: http.StatusBadGateway,
	types.ErrBackendRejected:    http.StatusBadGateway,
	types.ErrTaskFailed:         http.StatusBadGateway,
	types.ErrUploadFailed:       http.StatusBadGateway,
	types.ErrInternalError:      http.StatusInternalServerError,
}

// httpStatusFor 决定响应状态码：显式设置优先，其次查错误码映射表。
func httpStatusFor(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	return mapErrorCodeToHTTPStatus(err.Code)
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// =============================================================================
// 🛡️ 请求体校验
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体（上限 1 MB，拒绝未知字段）。
// 超限回 413，空请求体和格式错误回 400；出错时响应已写好，
// 调用方拿到非 nil 直接 return 即可。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, apiErr, logger)
		return apiErr
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var apiErr *types.Error
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		apiErr = types.NewError(types.ErrInvalidRequest, "request body exceeds 1 MB").
			WithCause(err).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	case errors.Is(err, io.EOF):
		apiErr = types.NewError(types.ErrInvalidRequest, "request body is empty").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
	default:
		apiErr = types.NewError(types.ErrInvalidRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
	}
	WriteError(w, apiErr, logger)
	return apiErr
}

// ValidateContentType 验证 Content-Type（容忍 charset 参数与大小写差异）
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, apiErr, logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 状态码捕获
// =============================================================================

// ResponseWriter 给 http.ResponseWriter 套一层，把实际发出的状态码
// 留给访问日志和指标中间件读。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 包装 w，状态码先按 200 记。
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只记录第一次设置的状态码，重复调用被吞掉。
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode = code
	rw.Written = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write 未显式设置状态码时按 200 处理。
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
