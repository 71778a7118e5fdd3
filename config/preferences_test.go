// 持久化偏好测试。
package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefChange struct{ key, value string }

type prefSink struct {
	mu      sync.Mutex
	changes []prefChange
}

func (s *prefSink) record(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, prefChange{key, value})
}

func (s *prefSink) all() []prefChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]prefChange, len(s.changes))
	copy(out, s.changes)
	return out
}

func TestPreferences_SetPersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	p := NewPreferences(path, nil)
	require.NoError(t, p.Load())

	require.NoError(t, p.SetBackendBaseURL("http://proxy.internal:9000"))

	// 每次变更立即写盘：文件此刻就必须在
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), PreferenceKeyBackendURL)
	assert.Contains(t, string(data), "http://proxy.internal:9000")

	// 新实例启动时读回同一个值
	fresh := NewPreferences(path, nil)
	require.NoError(t, fresh.Load())
	assert.Equal(t, "http://proxy.internal:9000", fresh.BackendBaseURL())
}

func TestPreferences_MissingFileIsFirstRun(t *testing.T) {
	p := NewPreferences(filepath.Join(t.TempDir(), "never-written.yaml"), nil)
	require.NoError(t, p.Load())
	assert.Empty(t, p.BackendBaseURL())
}

func TestPreferences_InMemoryWhenPathEmpty(t *testing.T) {
	p := NewPreferences("", nil)
	require.NoError(t, p.Load())

	require.NoError(t, p.SetBackendBaseURL("http://a"))
	assert.Equal(t, "http://a", p.BackendBaseURL())
}

func TestPreferences_SetNotifiesSubscribers(t *testing.T) {
	p := NewPreferences(filepath.Join(t.TempDir(), "prefs.yaml"), nil)
	sink := &prefSink{}
	p.OnChange(sink.record)

	require.NoError(t, p.SetBackendBaseURL("http://a"))
	require.NoError(t, p.SetBackendBaseURL("http://a")) // 同值：不落盘不通知
	require.NoError(t, p.SetBackendBaseURL("http://b"))

	changes := sink.all()
	require.Len(t, changes, 2)
	assert.Equal(t, prefChange{PreferenceKeyBackendURL, "http://a"}, changes[0])
	assert.Equal(t, prefChange{PreferenceKeyBackendURL, "http://b"}, changes[1])
}

func TestPreferences_ExternalEditTriggersReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	p := NewPreferences(path, nil)
	require.NoError(t, p.Load())
	require.NoError(t, p.SetBackendBaseURL("http://original"))

	sink := &prefSink{}
	p.OnChange(sink.record)
	require.NoError(t, p.Watch())
	t.Cleanup(p.Close)

	// 外部进程直接改文件
	require.NoError(t, os.WriteFile(path,
		[]byte(PreferenceKeyBackendURL+": http://edited-outside\n"), 0644))
	bumpModTime(t, path)

	require.Eventually(t, func() bool {
		return p.BackendBaseURL() == "http://edited-outside"
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return len(sink.all()) >= 1 },
		time.Second, 10*time.Millisecond)
	last := sink.all()[len(sink.all())-1]
	assert.Equal(t, PreferenceKeyBackendURL, last.key)
	assert.Equal(t, "http://edited-outside", last.value)
}

func TestPreferences_MalformedExternalFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	p := NewPreferences(path, nil)
	require.NoError(t, p.Load())
	require.NoError(t, p.SetBackendBaseURL("http://keep-me"))

	require.NoError(t, p.Watch())
	t.Cleanup(p.Close)

	require.NoError(t, os.WriteFile(path, []byte("{{{ not yaml"), 0644))
	bumpModTime(t, path)

	// 坏文件不得破坏内存里的值
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, "http://keep-me", p.BackendBaseURL())
}

func TestPreferences_WatchWithoutPathIsNoop(t *testing.T) {
	p := NewPreferences("", nil)
	assert.NoError(t, p.Watch())
	assert.NotPanics(t, p.Close)
}

func TestPreferences_GenericKeys(t *testing.T) {
	p := NewPreferences(filepath.Join(t.TempDir(), "prefs.yaml"), nil)

	require.NoError(t, p.Set("some.other.key", "value"))
	assert.Equal(t, "value", p.Get("some.other.key"))
	assert.Empty(t, p.Get("unset-key"))
}
