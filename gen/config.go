package gen

import "time"

// ClientConfig 配置任务 API 客户端。
type ClientConfig struct {
	// BaseURL 是后端基地址（本地代理或直连厂商），可被持久化偏好覆盖。
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// UploadTimeout 单独放宽：参考图可能有几十 MB。
	UploadTimeout time.Duration `json:"upload_timeout,omitempty" yaml:"upload_timeout,omitempty"`
}

// DefaultClientConfig 返回默认客户端配置。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		UploadTimeout: 120 * time.Second,
	}
}

// PollConfig 配置任务状态轮询。
type PollConfig struct {
	// Interval 固定轮询间隔。
	Interval time.Duration `json:"interval" yaml:"interval"`
	// MaxAttempts 轮询次数上限（150 次 × 2s ≈ 5 分钟）。
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// MaxTransientErrors 连续瞬态错误阈值，达到即放弃。
	MaxTransientErrors int `json:"max_transient_errors" yaml:"max_transient_errors"`
}

// DefaultPollConfig 返回默认轮询节奏：2 秒一查，上限 150 次。
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:           2000 * time.Millisecond,
		MaxAttempts:        150,
		MaxTransientErrors: 4,
	}
}
