// 偏好/配置文件变更监听器。
//
// 纯轮询实现（1s 间隔 + 防抖），不依赖平台 fsnotify；对单个小文件
// 足够灵敏，也躲开了编辑器原子改名导致的 inode 失踪问题。
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileEvent 描述一次被观测到的文件变化。
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 是变化类型。
type FileOp int

const (
	// FileOpCreate 文件出现
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容更新
	FileOpWrite
	// FileOpRemove 文件消失
	FileOpRemove
)

// String 输出大写操作名，进日志用。
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileWatcher 监听单个文件的创建/修改/删除。
type FileWatcher struct {
	mu sync.Mutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running   bool
	done      chan struct{}
	events    chan FileEvent
	callbacks []func(FileEvent)

	lastMod   time.Time
	seenEver  bool
	logger    *zap.Logger
	loopsDone sync.WaitGroup
}

// WatcherOption 调整监听器行为。
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置事件防抖窗口
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounceDelay = d }
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.pollInterval = d }
}

// WithWatcherLogger 注入日志器。传 nil 维持静默。
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher 创建监听器。文件暂不存在是合法状态，会等它出现。
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path must not be empty")
	}
	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		done:          make(chan struct{}),
		events:        make(chan FileEvent, 16),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
		w.seenEver = true
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return w, nil
}

// OnChange 注册变更回调。回调在监听 goroutine 上执行。
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询与分发循环。重复调用报错。
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	w.loopsDone.Add(2)
	go w.pollLoop()
	go w.dispatchLoop()

	w.logger.Debug("file watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop 停止监听并等待内部 goroutine 退出。幂等。
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	w.loopsDone.Wait()
	w.logger.Debug("file watcher stopped", zap.String("path", w.path))
}

func (w *FileWatcher) pollLoop() {
	defer w.loopsDone.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if event, changed := w.check(); changed {
				select {
				case w.events <- event:
				case <-w.done:
					return
				}
			}
		}
	}
}

// check 对比修改时间，返回应上报的事件。
func (w *FileWatcher) check() (FileEvent, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.seenEver {
			w.seenEver = false
			w.lastMod = time.Time{}
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: time.Now()}, true
		}
		return FileEvent{}, false
	}

	switch {
	case !w.seenEver:
		w.seenEver = true
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: time.Now()}, true
	case info.ModTime().After(w.lastMod):
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: time.Now()}, true
	}
	return FileEvent{}, false
}

// dispatchLoop 防抖后把最后一个事件交给回调。
func (w *FileWatcher) dispatchLoop() {
	defer w.loopsDone.Done()

	var (
		pending  *FileEvent
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case <-w.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event := <-w.events:
			pending = &event
			if debounce == nil {
				debounce = time.NewTimer(w.debounceDelay)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.debounceDelay)
			}
			fire = debounce.C
		case <-fire:
			if pending == nil {
				continue
			}
			event := *pending
			pending = nil
			fire = nil

			w.mu.Lock()
			callbacks := make([]func(FileEvent), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.Unlock()

			w.logger.Debug("dispatching file event",
				zap.String("path", event.Path),
				zap.String("op", event.Op.String()),
			)
			for _, cb := range callbacks {
				cb(event)
			}
		}
	}
}

// IsRunning 报告监听器是否在运行。
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
