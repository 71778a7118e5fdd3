package gen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sceneflow/types"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func transientErr() error {
	return types.NewError(types.ErrUpstreamError, "backend hiccup").WithRetryable(true)
}

func TestRetryer_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return transientErr()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_NonRetryableFailsFast(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(5), nil)

	appErr := types.NewError(types.ErrBackendRejected, "prompt rejected")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return appErr
	})

	assert.Equal(t, 1, calls, "application errors must never be retried")
	assert.Same(t, appErr, types.AsError(err))
}

func TestRetryer_ExhaustsRetries(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(2), nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return transientErr()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt + 2 retries")
	assert.Contains(t, err.Error(), "failed after 2 retries")
	// 包装后原始错误码仍可提取
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestRetryer_ContextCancelDuringBackoff(t *testing.T) {
	policy := &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Hour, // 退避窗口内必须响应取消
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}
	r := NewBackoffRetryer(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func() error {
			calls++
			return transientErr()
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retryer did not honor cancellation")
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Positive(t, delay)
	}
	r := NewBackoffRetryer(policy, nil)

	_ = r.Do(context.Background(), func() error { return transientErr() })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoff_ExponentialGrowthWithCap(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 1*time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 4*time.Second, r.backoff(3))
	assert.Equal(t, 8*time.Second, r.backoff(4))
	assert.Equal(t, 8*time.Second, r.backoff(7), "capped at MaxDelay")
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, nil).(*backoffRetryer)

	for i := 0; i < 200; i++ {
		d := r.backoff(3) // 基值 4s，抖动 ±25%
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestNewBackoffRetryer_NormalizesCopyOnly(t *testing.T) {
	p := &RetryPolicy{MaxRetries: -5, Multiplier: 0.1}
	r := NewBackoffRetryer(p, nil)

	// 调用方的策略保持原样
	assert.Equal(t, -5, p.MaxRetries)
	assert.Equal(t, 0.1, p.Multiplier)

	// 重试器内部按修正值运行：负数次数等同不重试
	calls := 0
	_ = r.Do(context.Background(), func() error {
		calls++
		return transientErr()
	})
	assert.Equal(t, 1, calls)
}

func TestRetryer_PlainErrorsAreNotRetried(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("untyped failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "untyped errors carry no retryable flag")
}
