// =============================================================================
// 📦 SceneFlow 配置加载器
// =============================================================================
// 三层叠加出最终配置：出厂值打底，YAML 文件盖一层，环境变量盖最后一层。
// 容器部署可以完全不带文件，只靠 SCENEFLOW_* 变量跑起来。
//
// 典型用法：
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("sceneflow.yaml").
//	    WithValidator(extraCheck).
//	    Load()
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 聚合 SceneFlow 全部可调项，按子系统分区。
type Config struct {
	// Server 网关监听、限流与 TLS
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Backend 编辑器网络层要访问的任务后端（默认是本服务自带的代理）
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Vendor 代理转发的上游厂商 API（密钥只存在于这里）
	Vendor VendorConfig `yaml:"vendor" env:"VENDOR"`

	// Generation 生成任务轮询与重试配置
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// Editor 编辑器状态引擎配置
	Editor EditorConfig `yaml:"editor" env:"EDITOR"`

	// Redis 终态任务缓存，可选
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log zap 日志器的装配参数
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry OpenTelemetry 开关与端点
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 控制两个监听面：业务网关和指标端口。
type ServerConfig struct {
	// 网关监听端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// /metrics 独立监听端口，与网关分开避免被限流和鉴权波及
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时。文件代理走流式转发，0 表示不限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表（为空时网关鉴权关闭）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 允许 ?api_key= 查询参数携带 Key（浏览器 WebSocket 无法自定义请求头）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 限流：每 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流：突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// TLS 证书文件，与 TLSKeyFile 同时设置时走 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥文件
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// BackendConfig 任务后端配置（编辑器客户端视角）
type BackendConfig struct {
	// 基地址，可被持久化偏好覆盖
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 客户端随请求发送的 Key（直连厂商时才需要）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 普通请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 上传超时，单独放宽
	UploadTimeout time.Duration `yaml:"upload_timeout" env:"UPLOAD_TIMEOUT"`
}

// VendorConfig 上游厂商配置（代理视角）
type VendorConfig struct {
	// 厂商 API 基地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 注入 Authorization: Bearer 的密钥，绝不回显、绝不记日志
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 转发超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 上传转发超时
	UploadTimeout time.Duration `yaml:"upload_timeout" env:"UPLOAD_TIMEOUT"`
}

// GenerationConfig 生成任务配置
type GenerationConfig struct {
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 轮询次数上限
	MaxPollAttempts int `yaml:"max_poll_attempts" env:"MAX_POLL_ATTEMPTS"`
	// 连续瞬态错误阈值
	MaxTransientErrors int `yaml:"max_transient_errors" env:"MAX_TRANSIENT_ERRORS"`
	// 上传/建任务的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 重试初始延迟
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	// 重试延迟上限
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
}

// EditorConfig 编辑器状态引擎配置
type EditorConfig struct {
	// 撤销历史上限，0 表示不驱逐
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// 持久化偏好文件路径，空串禁用持久化
	// 通知的 4000ms 存活期是行为常量，不在配置里
	PreferencesPath string `yaml:"preferences_path" env:"PREFERENCES_PATH"`
}

// RedisConfig 描述终态任务缓存用的 Redis 连接。
type RedisConfig struct {
	// 是否启用（终态任务缓存是可选优化，关掉代理照常工作）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// host:port 形式的地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 连接密码，留空表示无鉴权
	Password string `yaml:"password" env:"PASSWORD"`
	// 逻辑库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 池里保底的空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 终态任务结果的缓存时长
	TaskTTL time.Duration `yaml:"task_ttl" env:"TASK_TTL"`
}

// LogConfig 喂给 zap 日志器的装配参数。
type LogConfig struct {
	// 最低输出级别，取 debug / info / warn / error 之一
	Level string `yaml:"level" env:"LEVEL"`
	// 编码格式，json 进采集器，console 给人看
	Format string `yaml:"format" env:"FORMAT"`
	// 输出目的地，stdout / stderr 或文件路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否附带调用点文件行号
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否在 Error 级别附带堆栈
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 控制 OpenTelemetry 链路追踪的装配。
type TelemetryConfig struct {
	// 关着时完全不建 OTLP 连接
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 收集端地址
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 上报用的服务名
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 头部采样比例，0 到 1
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 攒齐加载参数后一次性执行，链式方法都返回自身。
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 给出环境变量前缀为 SCENEFLOW 的加载器。
func NewLoader() *Loader {
	return &Loader{envPrefix: "SCENEFLOW"}
}

// WithConfigPath 指定 YAML 文件位置，不设则跳过文件层。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 换掉环境变量前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加一个校验函数，在内置 Validate 之外再把关。
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次叠加出厂值、YAML 文件、环境变量，最后跑校验器。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.applyFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := applyEnv(cfg, l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// applyFile 把 YAML 文件叠在默认值上。文件不存在不算错，容器环境
// 常常只用环境变量；未知键直接报错，拼错的键名不该被静默吞掉。
func (l *Loader) applyFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件等同默认值
			return nil
		}
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv 用环境变量覆盖配置，键名由 env tag 逐层拼出，
// 如 SCENEFLOW_SERVER_HTTP_PORT。
func applyEnv(cfg *Config, prefix string) error {
	return overrideStruct(reflect.ValueOf(cfg).Elem(), prefix)
}

func overrideStruct(v reflect.Value, prefix string) error {
	for _, sf := range reflect.VisibleFields(v.Type()) {
		tag := sf.Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}

		key := prefix + "_" + tag
		fv := v.FieldByIndex(sf.Index)

		if fv.Kind() == reflect.Struct {
			if err := overrideStruct(fv, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// assign 把字符串解析成字段类型。只支持配置里实际用到的类型：
// 字符串、整数、时长、浮点、布尔和逗号分隔的字符串切片。
func assign(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem())
		}
		field.Set(reflect.ValueOf(splitList(raw)))

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// splitList 逗号分隔，元素两侧空白剔除，空元素丢弃。
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// 🔍 快捷入口与校验
// =============================================================================

// MustLoad 给测试和 main 之外的简单场景用，加载失败直接 panic。
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 不读文件，只叠环境变量。
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 做结构性检查，把所有问题攒成一条错误返回。
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.HTTPPort == c.Server.MetricsPort {
		errs = append(errs, "http_port and metrics_port must differ")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url must not be empty")
	}
	if c.Generation.PollInterval <= 0 {
		errs = append(errs, "generation.poll_interval must be positive")
	}
	if c.Generation.MaxPollAttempts <= 0 {
		errs = append(errs, "generation.max_poll_attempts must be positive")
	}
	if c.Generation.MaxTransientErrors <= 0 {
		errs = append(errs, "generation.max_transient_errors must be positive")
	}
	if c.Editor.HistoryLimit < 0 {
		errs = append(errs, "editor.history_limit must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr required when redis is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
