// =============================================================================
// 📦 SceneFlow 默认配置
// =============================================================================
// 各组件的出厂值集中在这里，Load 读文件前先拿这份打底
// =============================================================================
package config

import "time"

// DefaultConfig 返回一整套出厂配置。
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Backend:    DefaultBackendConfig(),
		Vendor:     DefaultVendorConfig(),
		Generation: DefaultGenerationConfig(),
		Editor:     DefaultEditorConfig(),
		Redis:      DefaultRedisConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 网关监听、CORS 与限流的出厂值。
// 放行的源覆盖本地开发常用的 CRA 与 Vite 端口。
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // 文件代理流式响应不设全局写超时
		ShutdownTimeout: 15 * time.Second,
		CORSAllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// DefaultBackendConfig 返回默认后端配置。
// 默认指向本服务自带的代理端点，偏好文件可以改指向别处。
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		UploadTimeout: 120 * time.Second,
	}
}

// DefaultVendorConfig 厂商侧出厂值。密钥没有默认，必须显式配置。
func DefaultVendorConfig() VendorConfig {
	return VendorConfig{
		BaseURL:       "https://api.tripo3d.ai/v2/openapi",
		Timeout:       30 * time.Second,
		UploadTimeout: 120 * time.Second,
	}
}

// DefaultGenerationConfig 生成任务的轮询与重试节奏。
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PollInterval:       2000 * time.Millisecond,
		MaxPollAttempts:    150, // × 2s ≈ 5 分钟
		MaxTransientErrors: 4,
		MaxRetries:         3,
		RetryInitialDelay:  1 * time.Second,
		RetryMaxDelay:      30 * time.Second,
	}
}

// DefaultEditorConfig 编辑器历史与偏好文件的出厂值。
func DefaultEditorConfig() EditorConfig {
	return EditorConfig{
		HistoryLimit:    0, // 0 = 不驱逐，深度只受内存约束
		PreferencesPath: "preferences.yaml",
	}
}

// DefaultRedisConfig 任务缓存的出厂值。默认不启用，单机部署用不上。
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		TaskTTL:      24 * time.Hour,
	}
}

// DefaultLogConfig 生产取向的日志出厂值：JSON 到 stdout。
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 遥测出厂值。默认关，开启后以 10% 采样起步。
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "sceneflow",
		SampleRate:   0.1,
	}
}
