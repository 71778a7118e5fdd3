// Package cache 封装 Redis 访问。业务上只有一个用途：终态任务记录的
// 读写（厂商代理用它省掉对已完成任务的重复回源），附带连接健康检查。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 错误与键命名
// =============================================================================

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed 管理器已关闭，后续操作全部拒绝
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 报告 err 是否落在未命中语义上，调用方据此区分
// “没缓存”和“缓存坏了”。
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// taskKeyPrefix 终态任务记录的键前缀
const taskKeyPrefix = "sceneflow:task:"

// TaskKey 返回任务记录的缓存键。
// 只有终态任务（completed/error）才会被写入：它们不再变化，可以安全复用。
func TaskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// 连接与探活的超时上限。
const (
	connectTimeout = 5 * time.Second
	probeTimeout   = 5 * time.Second
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Config 是 Manager 的连接与运行参数。
type Config struct {
	// Redis 地址，host:port
	Addr string `yaml:"addr" json:"addr"`

	// 连接密码，空串表示无鉴权
	Password string `yaml:"password" json:"password"`

	// 逻辑库编号
	DB int `yaml:"db" json:"db"`

	// 写入未显式给 TTL 时用的过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// go-redis 内部命令重试上限
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 池里保底的空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 后台连通性探测的间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 给出本机开发用的出厂参数。
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		DefaultTTL:          24 * time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 在 go-redis 客户端外面包一层：默认 TTL、幂等关闭语义、
// 周期性连通性探活。
type Manager struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	closed atomic.Bool
	done   chan struct{}
}

// NewManager 建连并启动探活循环。Ping 不通直接报错，
// 是降级直通还是中止启动由调用方决定。
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		rdb:    rdb,
		ttl:    cfg.DefaultTTL,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go m.watch(cfg.HealthCheckInterval)
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
	)
	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 读缓存。键不存在返回 ErrCacheMiss，其余错误包装后上抛。
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}

	val, err := m.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrCacheMiss
	case err != nil:
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set 写缓存。ttl ≤ 0 时套用默认 TTL；任务记录不允许写出无限期的键。
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if ttl <= 0 {
		ttl = m.ttl
	}
	if err := m.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON 读缓存并反序列化到 dest。
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 序列化后写缓存。
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除若干键，不存在的键静默跳过。
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if len(keys) == 0 {
		return nil
	}
	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连通性，就绪探针直接挂这个方法。
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.rdb.Ping(ctx).Err()
}

// Close 幂等关闭：停掉探活循环并释放连接池。
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)
	m.logger.Info("closing cache manager")
	return m.rdb.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// watch 周期性 Ping，失败只记日志不采取动作；
// Close 后立刻退出，不等下一个 tick。
func (m *Manager) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := m.Ping(ctx)
		cancel()

		switch {
		case errors.Is(err, ErrClosed):
			return
		case err != nil:
			m.logger.Warn("cache health check failed", zap.Error(err))
		default:
			m.logger.Debug("cache health check passed")
		}
	}
}
