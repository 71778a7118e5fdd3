package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 监听器生命周期
// =============================================================================

// Config 单个监听器的配置。网关和指标端口各建一个 Manager。
type Config struct {
	// Addr 监听地址，":0" 表示随机端口（测试用）
	Addr string `yaml:"addr" json:"addr"`

	// ReadTimeout 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout 写超时。0 表示不限制
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout keep-alive 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// MaxHeaderBytes 请求头大小上限
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// ShutdownTimeout 优雅关闭的等待上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认监听配置。
// WriteTimeout 默认 0：文件代理的流式下载与 WebSocket 会话不能被
// 全局写超时掐断，超时交给各 handler 的 ctx。
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Manager 包装一个 http.Server：非阻塞启动、异步错误上报、优雅关闭。
type Manager struct {
	srv    *http.Server
	cfg    Config
	logger *zap.Logger

	mu   sync.RWMutex
	ln   net.Listener
	done bool

	errs chan error
}

// NewManager 创建监听器管理器。handler 是装配好的完整路由（含中间件链）。
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http_server")),
		errs:   make(chan error, 1),
	}
}

// =============================================================================
// 🎯 启动与关闭
// =============================================================================

// Start 绑定端口并在后台开始服务，立即返回。
func (m *Manager) Start() error {
	return m.start("", "")
}

// StartTLS 同 Start，但走 HTTPS。
func (m *Manager) StartTLS(certFile, keyFile string) error {
	return m.start(certFile, keyFile)
}

func (m *Manager) start(certFile, keyFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.done:
		return fmt.Errorf("server is closed")
	case m.ln != nil:
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	m.ln = ln

	serve := func() error { return m.srv.Serve(ln) }
	scheme := "http"
	if certFile != "" {
		serve = func() error { return m.srv.ServeTLS(ln, certFile, keyFile) }
		scheme = "https"
	}

	m.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("scheme", scheme),
	)

	go func() {
		if err := serve(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("server failed", zap.Error(err))
			// 只保留第一个错误，Errors() 的消费者一次关闭只处理一条
			select {
			case m.errs <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown 优雅关闭：停止接受新连接，等在途请求完成，
// 最多等 ShutdownTimeout。重复调用是安全的空操作。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return nil
	}
	m.done = true

	sctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	if err := m.srv.Shutdown(sctx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}

	m.ln = nil
	m.logger.Info("server stopped")
	return nil
}

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或服务异常退出，然后关闭。
func (m *Manager) WaitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		m.logger.Info("received shutdown signal")
	case err := <-m.errs:
		m.logger.Error("server exited unexpectedly", zap.Error(err))
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 返回异步错误通道。服务 goroutine 挂掉时会收到一条。
func (m *Manager) Errors() <-chan error {
	return m.errs
}

// =============================================================================
// 🔧 查询
// =============================================================================

// Addr 返回实际监听地址。":0" 启动后这里拿到的是真实端口；
// 未启动时返回配置地址。
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 服务是否仍在运行（未进入关闭流程）。
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.done
}
