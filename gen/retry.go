package gen

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// 抖动幅度：实际等待在基准值 ±25% 内浮动，错开多客户端的重试节拍。
const jitterFraction = 0.25

// RetryPolicy 定义瞬态错误的指数退避重试策略。
//
// 只有 types.IsRetryable 判定为真（超时、连接失败、5xx、限流）的错误
// 参与重试；应用级错误（后端业务码非零）与认证错误立即向上传播。
type RetryPolicy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 首次重试前的基准延迟
	MaxDelay     time.Duration // 单次延迟上限
	Multiplier   float64       // 指数倍增因子
	Jitter       bool          // 叠加随机抖动

	// OnRetry 每次重试前回调（测试与指标挂钩用）。
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy 返回上传/建任务场景的默认策略。
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// normalized 返回修正过非法字段的副本。按值接收，调用方的策略不被改写。
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Retryer 以统一策略执行可重试操作。
type Retryer interface {
	Do(ctx context.Context, fn func() error) error
}

type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器。policy 为 nil 时使用默认策略。
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: policy.normalized(), logger: logger}
}

// Do 执行 fn。首次失败且错误可重试时按退避节奏追加尝试，
// 次数用尽后返回包装错误，原始错误经 %w 链仍可提取。
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !types.IsRetryable(err) {
		return err
	}

	for attempt := 1; attempt <= r.policy.MaxRetries; attempt++ {
		delay := r.backoff(attempt)
		r.logger.Debug("retrying backend call",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		if err = fn(); err == nil {
			r.logger.Info("backend call recovered", zap.Int("attempt", attempt))
			return nil
		}
		if !types.IsRetryable(err) {
			return err
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(err),
	)
	return fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, err)
}

// backoff 计算第 attempt 次重试前的等待：initial·multiplier^(attempt-1)
// 截到 MaxDelay，叠加可选抖动后不低于 InitialDelay。
func (r *backoffRetryer) backoff(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.policy.MaxDelay))
	if r.policy.Jitter {
		d *= 1 + jitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, float64(r.policy.InitialDelay)))
}
