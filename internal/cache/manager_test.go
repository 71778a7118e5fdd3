package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

// newTestManager 起一个 miniredis 并挂上 Manager，清理交给 t.Cleanup。
func newTestManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	m, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestTaskKey(t *testing.T) {
	assert.Equal(t, "sceneflow:task:tsk-123", TaskKey("tsk-123"))
	assert.Equal(t, "sceneflow:task:", TaskKey(""))
}

// 终态任务记录的典型往返：按 TaskKey 写入信封原文，读回逐字节一致。
func TestManager_TaskRecordRoundTrip(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	envelope := `{"code":0,"data":{"taskId":"tsk-9","status":"completed"}}`
	require.NoError(t, m.Set(ctx, TaskKey("tsk-9"), envelope, time.Hour))

	got, err := m.Get(ctx, TaskKey("tsk-9"))
	require.NoError(t, err)
	assert.Equal(t, envelope, got)
}

func TestManager_MissIsCacheMiss(t *testing.T) {
	_, m := newTestManager(t)

	val, err := m.Get(context.Background(), TaskKey("not-there"))
	assert.Empty(t, val)
	assert.True(t, IsCacheMiss(err), "未命中要能用 IsCacheMiss 判别，代理靠它决定回源")
	assert.False(t, IsCacheMiss(fmt.Errorf("boom")))
}

// ttl ≤ 0 时套用默认 TTL，不允许写出无限期的键。
func TestManager_SetAppliesDefaultTTL(t *testing.T) {
	mr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, m.Set(ctx, "k2", "v", -time.Second))
	assert.Equal(t, time.Minute, mr.TTL("k2"))
}

func TestManager_ExplicitTTLExpires(t *testing.T) {
	mr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", "v", 100*time.Millisecond))

	got, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.FastForward(200 * time.Millisecond)

	_, err = m.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err), "过期后等同未命中")
}

func TestManager_Delete(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, m.Set(ctx, "b", "2", time.Minute))

	require.NoError(t, m.Delete(ctx, "a", "b", "missing"))
	_, err := m.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))

	// 空键列表是显式 no-op
	assert.NoError(t, m.Delete(ctx))
}

func TestManager_JSONRoundTrip(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	type record struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	in := record{TaskID: "tsk-1", Status: "completed"}
	require.NoError(t, m.SetJSON(ctx, TaskKey(in.TaskID), in, time.Hour))

	var out record
	require.NoError(t, m.GetJSON(ctx, TaskKey(in.TaskID), &out))
	assert.Equal(t, in, out)
}

func TestManager_JSONErrors(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	// 不可序列化的值
	assert.Error(t, m.SetJSON(ctx, "bad", make(chan int), time.Minute))

	// 未命中原样透传，调用方仍可用 IsCacheMiss 判别
	var out map[string]any
	assert.True(t, IsCacheMiss(m.GetJSON(ctx, "absent", &out)))

	// 键里存的不是 JSON
	require.NoError(t, m.Set(ctx, "plain", "not a json", time.Minute))
	err := m.GetJSON(ctx, "plain", &out)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_ClosedRejectsOperations(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Close())
	assert.NoError(t, m.Close(), "重复 Close 是 no-op")

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", "v", time.Minute), ErrClosed)
	assert.ErrorIs(t, m.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
}

func TestManager_Ping(t *testing.T) {
	mr, m := newTestManager(t)
	assert.NoError(t, m.Ping(context.Background()))

	// Redis 掉线后 Ping 要能反映出来，就绪探针依赖这一点
	mr.Close()
	assert.Error(t, m.Ping(context.Background()))
}

func TestNewManager_UnreachableAddr(t *testing.T) {
	m, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	require.Error(t, err, "建连失败要立刻报错，调用方才能决定是否降级直通")
	assert.Nil(t, m)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := TaskKey(fmt.Sprintf("tsk-%d", n))
			if err := m.Set(ctx, key, "done", time.Minute); err != nil {
				t.Error(err)
				return
			}
			got, err := m.Get(ctx, key)
			if err != nil || got != "done" {
				t.Errorf("Get(%s) = %q, %v", key, got, err)
			}
		}(i)
	}
	wg.Wait()
}
