package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/internal/tlsutil"
	"github.com/BaSui01/sceneflow/types"
)

const providerName = "generation-backend"

// connectionProbePath 连通性探测路径。后端对不存在的任务返回 404，
// 这恰好证明请求已被路由到任务函数 — 404 因而视为成功。
const connectionProbePath = "/task/connection-test"

// Client 是任务 API 的 HTTP 客户端：上传参考图、创建生成任务、查询
// 任务状态。基地址可在运行期切换（持久化偏好写入时），其余配置不可变。
//
// 上传与建任务经重试器消化瞬态错误；GetTask 不在客户端内重试 —
// 轮询器拥有自己的错误预算（连续瞬态计数 + 快速失败分类）。
type Client struct {
	mu  sync.RWMutex // 保护 baseURL
	cfg ClientConfig

	client       *http.Client
	uploadClient *http.Client
	retryer      Retryer
	logger       *zap.Logger
}

// ClientOption 配置 Client。
type ClientOption func(*Client)

// WithRetryPolicy 覆盖上传/建任务的重试策略。
func WithRetryPolicy(policy *RetryPolicy) ClientOption {
	return func(c *Client) { c.retryer = NewBackoffRetryer(policy, c.logger) }
}

// NewClient 创建任务 API 客户端。logger 为 nil 时退化为 zap.NewNop()。
func NewClient(cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	def := DefaultClientConfig()
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

	c := &Client{
		cfg:          cfg,
		client:       tlsutil.SecureHTTPClient(cfg.Timeout),
		uploadClient: tlsutil.SecureHTTPClient(cfg.UploadTimeout),
		logger:       logger.With(zap.String("component", "gen_client")),
	}
	c.retryer = NewBackoffRetryer(DefaultRetryPolicy(), c.logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回当前后端基地址。
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.BaseURL
}

// SetBaseURL 运行期切换后端基地址（持久化偏好变更时调用）。
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL == "" {
		return
	}
	c.mu.Lock()
	c.cfg.BaseURL = baseURL
	c.mu.Unlock()
	c.logger.Info("backend base url changed", zap.String("base_url", baseURL))
}

func (c *Client) endpoint(path string) string {
	c.mu.RLock()
	base := c.cfg.BaseURL
	c.mu.RUnlock()
	return strings.TrimRight(base, "/") + path
}

// =============================================================================
// 📤 上传
// =============================================================================

// UploadImage 以 multipart 表单（字段名 file）上传参考图，返回
// image_token。整个请求体先构建完毕再发送，重试时可以重放。
func (c *Client) UploadImage(ctx context.Context, filename string, file io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", types.NewError(types.ErrUploadFailed, "failed to create form file").WithCause(err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", types.NewError(types.ErrUploadFailed, "failed to read image").WithCause(err)
	}
	if err := writer.Close(); err != nil {
		return "", types.NewError(types.ErrUploadFailed, "failed to finalize form").WithCause(err)
	}

	var token string
	err = c.retryer.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), bytes.NewReader(buf.Bytes()))
		if err != nil {
			return types.NewError(types.ErrUploadFailed, "failed to build upload request").WithCause(err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		c.authorize(req)

		data, err := c.roundTrip(c.uploadClient, req)
		if err != nil {
			return err
		}
		var out uploadData
		if err := json.Unmarshal(data, &out); err != nil {
			return types.NewError(types.ErrUploadFailed, "failed to decode upload response").WithCause(err)
		}
		if out.ImageToken == "" {
			return types.NewError(types.ErrUploadFailed, "backend returned empty image token")
		}
		token = out.ImageToken
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("image uploaded", zap.String("filename", filename))
	return token, nil
}

// =============================================================================
// 🧾 任务创建与查询
// =============================================================================

// CreateImageTask 用上传换来的 file_token 创建 image_to_model 任务。
// fileType 是原文件扩展名（png/jpg/webp…），为空时取 png。
func (c *Client) CreateImageTask(ctx context.Context, fileToken, fileType string) (string, error) {
	if fileType == "" {
		fileType = "png"
	}
	return c.createTask(ctx, taskRequest{
		Type: "image_to_model",
		File: &taskFile{Type: fileType, FileToken: fileToken},
	})
}

// CreateTextTask 创建 text_to_model 任务。
func (c *Client) CreateTextTask(ctx context.Context, prompt string) (string, error) {
	return c.createTask(ctx, taskRequest{Type: "text_to_model", Prompt: prompt})
}

func (c *Client) createTask(ctx context.Context, body taskRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "failed to encode task request").WithCause(err)
	}

	var taskID string
	err = c.retryer.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/task"), bytes.NewReader(payload))
		if err != nil {
			return types.NewError(types.ErrInternalError, "failed to build task request").WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		data, err := c.roundTrip(c.client, req)
		if err != nil {
			return err
		}
		var out createData
		if err := json.Unmarshal(data, &out); err != nil {
			return types.NewError(types.ErrUpstreamError, "failed to decode task response").WithCause(err)
		}
		if out.TaskID == "" {
			return types.NewError(types.ErrUpstreamError, "backend returned empty task id")
		}
		taskID = out.TaskID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("generation task created",
		zap.String("task_id", taskID),
		zap.String("type", body.Type),
	)
	return taskID, nil
}

// GetTask 查询任务状态并把厂商状态字符串归一化。错误不在此处重试。
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/task/"+taskID), nil)
	if err != nil {
		return TaskResult{}, types.NewError(types.ErrInternalError, "failed to build status request").WithCause(err)
	}
	c.authorize(req)

	data, err := c.roundTrip(c.client, req)
	if err != nil {
		return TaskResult{}, err
	}

	var out taskData
	if err := json.Unmarshal(data, &out); err != nil {
		return TaskResult{}, types.NewError(types.ErrUpstreamError, "failed to decode status response").WithCause(err)
	}
	return TaskResult{
		TaskID:    taskID,
		Status:    NormalizeStatus(out.Status),
		RawStatus: out.Status,
		Progress:  out.Progress,
		Output:    out.Output,
	}, nil
}

// =============================================================================
// 🔌 连通性探测
// =============================================================================

// TestConnection 探测后端可达性。404 视为成功 — 它证明请求穿透到了
// 任务路由（代理函数存在且转发正常），只是探测用的任务 id 不存在。
// 401/403 说明密钥配置有问题，区别于一般失败单独上报。
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(connectionProbePath), nil)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to build probe request").WithCause(err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrBackendUnreachable, "backend is not reachable").
			WithCause(err).WithProvider(providerName).WithRetryable(true)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// 可达性反证：路由正确，探测任务不存在而已
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, "backend rejected the API key").
			WithHTTPStatus(resp.StatusCode).WithProvider(providerName)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("backend error: status=%d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).WithProvider(providerName).WithRetryable(true)
	case resp.StatusCode >= 400:
		return types.NewError(types.ErrBackendRejected, fmt.Sprintf("backend rejected probe: status=%d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).WithProvider(providerName)
	default:
		return nil
	}
}

// =============================================================================
// 🔧 请求底座
// =============================================================================

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	key := c.cfg.APIKey
	c.mu.RUnlock()
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// roundTrip 执行请求并拆掉统一响应包装，返回 data 原始字节。
// 错误分类见 types 错误码：传输失败与 5xx/429 可重试，4xx 与业务码
// 非零不可重试。
func (c *Client) roundTrip(client *http.Client, req *http.Request) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, types.NewError(types.ErrTimeout, "request cancelled").WithCause(ctxErr)
		}
		return nil, types.NewError(types.ErrBackendUnreachable, "backend request failed").
			WithCause(err).WithProvider(providerName).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read backend response").
			WithCause(err).WithProvider(providerName).WithRetryable(true)
	}

	if err := classifyHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "invalid backend envelope").
			WithCause(err).WithProvider(providerName)
	}
	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("backend error code %d", env.Code)
		}
		// 应用级错误：厂商消息原样透出，绝不重试
		return nil, types.NewError(types.ErrBackendRejected, msg).WithProvider(providerName)
	}
	return env.Data, nil
}

// classifyHTTPStatus 把 HTTP 层失败映射到错误分类。
func classifyHTTPStatus(status int, body []byte) error {
	if status < 400 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 256 {
		detail = detail[:256]
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, "backend rejected the API key").
			WithHTTPStatus(status).WithProvider(providerName)
	case status == http.StatusNotFound:
		return types.NewError(types.ErrTaskNotFound, "task not found").
			WithHTTPStatus(status).WithProvider(providerName)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, "backend rate limit exceeded").
			WithHTTPStatus(status).WithProvider(providerName).WithRetryable(true)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("backend error: status=%d body=%s", status, detail)).
			WithHTTPStatus(status).WithProvider(providerName).WithRetryable(true)
	default:
		return types.NewError(types.ErrBackendRejected, fmt.Sprintf("backend rejected request: status=%d body=%s", status, detail)).
			WithHTTPStatus(status).WithProvider(providerName)
	}
}

// FileTypeFromName 从文件名推导任务 file.type 字段（小写扩展名）。
func FileTypeFromName(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "png"
	}
	return ext
}
