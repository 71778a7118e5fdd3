// 持久化编辑器偏好。
//
// 内存之外只持久化一项状态：任务后端基地址，固定键
// sceneflow.backend.base_url。启动时读取一次，每次变更立即写盘；
// 文件被外部编辑时经 FileWatcher 重载并通知订阅者。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PreferenceKeyBackendURL 是后端基地址偏好的固定存储键。
const PreferenceKeyBackendURL = "sceneflow.backend.base_url"

// Preferences 是一个小的键值偏好存储，落盘为 YAML 映射。
// path 为空时退化为纯内存存储（测试、一次性运行）。
type Preferences struct {
	mu     sync.RWMutex
	path   string
	values map[string]string

	callbacks []func(key, value string)
	watcher   *FileWatcher
	logger    *zap.Logger
}

// NewPreferences 创建偏好存储，不做任何 IO。
func NewPreferences(path string, logger *zap.Logger) *Preferences {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preferences{
		path:   path,
		values: make(map[string]string),
		logger: logger.With(zap.String("component", "preferences")),
	}
}

// Load 从磁盘读取偏好。文件不存在不算错误——首次运行就是这样。
func (p *Preferences) Load() error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse preferences: %w", err)
	}

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()

	p.logger.Info("preferences loaded",
		zap.String("path", p.path),
		zap.Int("keys", len(values)),
	)
	return nil
}

// Get 返回键对应的值，未设置时返回空串。
func (p *Preferences) Get(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[key]
}

// Set 更新键值并立即写盘，然后通知订阅者。值未变化时不落盘不通知。
func (p *Preferences) Set(key, value string) error {
	p.mu.Lock()
	if p.values[key] == value {
		p.mu.Unlock()
		return nil
	}
	p.values[key] = value
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	if err := p.save(snapshot); err != nil {
		return err
	}
	p.notify(key, value)
	return nil
}

// BackendBaseURL 返回持久化的后端基地址，未设置时为空串。
func (p *Preferences) BackendBaseURL() string {
	return p.Get(PreferenceKeyBackendURL)
}

// SetBackendBaseURL 持久化后端基地址。
func (p *Preferences) SetBackendBaseURL(url string) error {
	return p.Set(PreferenceKeyBackendURL, url)
}

// OnChange 注册变更回调：本进程 Set 或外部文件编辑都会触发。
// 回调在调用者/监听 goroutine 上执行，必须快速返回。
func (p *Preferences) OnChange(callback func(key, value string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// Watch 启动对偏好文件的外部修改监听。path 为空时是空操作。
func (p *Preferences) Watch() error {
	if p.path == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher != nil {
		return nil
	}

	w, err := NewFileWatcher(p.path, WithWatcherLogger(p.logger))
	if err != nil {
		return fmt.Errorf("failed to watch preferences: %w", err)
	}
	w.OnChange(func(event FileEvent) {
		if event.Op == FileOpRemove {
			return
		}
		p.reload()
	})
	if err := w.Start(); err != nil {
		return err
	}
	p.watcher = w
	return nil
}

// Close 停止文件监听。
func (p *Preferences) Close() {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// reload 重读文件并对变化的键逐个通知。自己写盘触发的事件会在
// 这里对比出“无变化”，静默结束。
func (p *Preferences) reload() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		p.logger.Warn("failed to reload preferences", zap.Error(err))
		return
	}
	fresh := make(map[string]string)
	if err := yaml.Unmarshal(data, &fresh); err != nil {
		p.logger.Warn("ignoring malformed preferences file", zap.Error(err))
		return
	}

	type change struct{ key, value string }
	var changes []change

	p.mu.Lock()
	for key, value := range fresh {
		if p.values[key] != value {
			changes = append(changes, change{key, value})
		}
	}
	for key := range p.values {
		if _, still := fresh[key]; !still {
			changes = append(changes, change{key, ""})
		}
	}
	p.values = fresh
	p.mu.Unlock()

	for _, c := range changes {
		p.logger.Info("preference changed externally", zap.String("key", c.key))
		p.notify(c.key, c.value)
	}
}

func (p *Preferences) snapshotLocked() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// save 原子写盘：先写临时文件再改名，避免写一半被 watcher 读走。
func (p *Preferences) save(values map[string]string) error {
	if p.path == "" {
		return nil
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp preferences: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

func (p *Preferences) notify(key, value string) {
	p.mu.RLock()
	callbacks := make([]func(string, string), len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.RUnlock()
	for _, cb := range callbacks {
		cb(key, value)
	}
}
