package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/BaSui01/sceneflow/api/handlers"
	"github.com/BaSui01/sceneflow/config"
	"github.com/BaSui01/sceneflow/gen"
	"github.com/BaSui01/sceneflow/internal/cache"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/server"
	"github.com/BaSui01/sceneflow/internal/telemetry"
	"github.com/BaSui01/sceneflow/proxy"
	"github.com/BaSui01/sceneflow/scene"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 SceneFlow 的主服务器：状态引擎、生成流水线、双代理与
// REST/WebSocket 网关的装配点。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	collector *metrics.Collector
	providers *telemetry.Providers
	prefs     *config.Preferences
	store     *scene.Store
	client    *gen.Client
	pipeline  *gen.Pipeline
	taskCache *cache.Manager
	backend   *proxy.Backend
	fileProxy *proxy.FileProxy

	// Handlers
	healthHandler  *handlers.HealthHandler
	sceneHandler   *handlers.SceneHandler
	assetHandler   *handlers.AssetHandler
	cameraHandler  *handlers.CameraHandler
	backendHandler *handlers.BackendHandler
	eventsHandler  *handlers.EventsHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化核心组件（存储、流水线、代理）
	if err := s.initCore(); err != nil {
		return fmt.Errorf("failed to init core components: %w", err)
	}

	// 2. 初始化 Handlers
	s.initHandlers()

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("preferences_persisted", s.cfg.Editor.PreferencesPath != ""),
		zap.Bool("task_cache_enabled", s.taskCache != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initCore 按依赖顺序装配核心组件：
// 指标 → 偏好 → 存储 → 任务客户端 → 流水线 → 缓存 → 双代理。
func (s *Server) initCore() error {
	// 指标收集器
	s.collector = metrics.NewCollector("sceneflow", s.logger)

	// 持久化偏好。读不到坏文件不致命：用默认值继续跑
	s.prefs = config.NewPreferences(s.cfg.Editor.PreferencesPath, s.logger)
	if err := s.prefs.Load(); err != nil {
		s.logger.Warn("failed to load preferences, using defaults", zap.Error(err))
	}
	if err := s.prefs.Watch(); err != nil {
		s.logger.Warn("preferences file watch unavailable", zap.Error(err))
	}

	// 状态引擎
	s.store = scene.NewStore(
		scene.WithLogger(s.logger),
		scene.WithHistoryLimit(s.cfg.Editor.HistoryLimit),
	)

	// 存储事件驱动的指标：操作计数 + 历史深度 + 活跃通知数。
	// 事件总线异步分发，这里回读存储不会和发布方互锁。
	s.store.Events().SubscribeAll(func(ev scene.Event) {
		s.collector.RecordStoreOp(string(ev.Type))
		past, future := s.store.HistoryLengths()
		s.collector.SetHistoryDepth(past, future)
		s.collector.SetActiveNotifications(len(s.store.Notifications()))
	})

	// 任务 API 客户端。持久化偏好里的地址优先于配置文件
	clientCfg := gen.ClientConfig{
		BaseURL:       s.cfg.Backend.BaseURL,
		APIKey:        s.cfg.Backend.APIKey,
		Timeout:       s.cfg.Backend.Timeout,
		UploadTimeout: s.cfg.Backend.UploadTimeout,
	}
	if saved := s.prefs.BackendBaseURL(); saved != "" {
		clientCfg.BaseURL = saved
	}
	s.client = gen.NewClient(clientCfg, s.logger, gen.WithRetryPolicy(&gen.RetryPolicy{
		MaxRetries:   s.cfg.Generation.MaxRetries,
		InitialDelay: s.cfg.Generation.RetryInitialDelay,
		MaxDelay:     s.cfg.Generation.RetryMaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}))

	// 外部编辑偏好文件也能切换后端地址（API 写入走 BackendHandler，
	// 那条路径已经先持久化再切换）
	s.prefs.OnChange(func(key, value string) {
		if key == config.PreferenceKeyBackendURL && value != "" {
			s.client.SetBaseURL(value)
			s.logger.Info("backend base URL updated from preferences",
				zap.String("base_url", value))
		}
	})

	// 生成流水线：上传 → 建任务 → 轮询到终态，进度落回存储
	s.pipeline = gen.NewPipeline(s.client, s.store, gen.PollConfig{
		Interval:           s.cfg.Generation.PollInterval,
		MaxAttempts:        s.cfg.Generation.MaxPollAttempts,
		MaxTransientErrors: s.cfg.Generation.MaxTransientErrors,
	}, s.logger, gen.WithNotifier(s.store), gen.WithRecorder(s.collector))

	// 终态任务缓存（可选）。Redis 不可达时降级为直通，不阻塞启动
	if s.cfg.Redis.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Redis.TaskTTL,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			s.logger.Warn("redis unavailable, terminal task cache disabled", zap.Error(err))
		} else {
			s.taskCache = mgr
		}
	}

	// 厂商转发代理（密钥只在这里注入）
	backendOpts := []proxy.BackendOption{proxy.WithBackendRecorder(s.collector)}
	if s.taskCache != nil {
		backendOpts = append(backendOpts, proxy.WithTaskCache(s.taskCache, s.cfg.Redis.TaskTTL))
	}
	s.backend = proxy.NewBackend(proxy.Config{
		BaseURL:       s.cfg.Vendor.BaseURL,
		APIKey:        s.cfg.Vendor.APIKey,
		Timeout:       s.cfg.Vendor.Timeout,
		UploadTimeout: s.cfg.Vendor.UploadTimeout,
	}, s.logger, backendOpts...)

	// 文件代理
	s.fileProxy = proxy.NewFileProxy(s.logger, proxy.WithFileProxyRecorder(s.collector))

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewBackendHealthCheck("backend", s.client.TestConnection))
	if s.taskCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.taskCache.Ping))
	}

	s.sceneHandler = handlers.NewSceneHandler(s.store, s.logger)
	s.assetHandler = handlers.NewAssetHandler(s.store, s.pipeline, s.logger)
	s.cameraHandler = handlers.NewCameraHandler(s.store, s.logger)
	s.backendHandler = handlers.NewBackendHandler(s.client, s.prefs, s.logger)
	s.eventsHandler = handlers.NewEventsHandler(s.store, s.logger,
		handlers.WithSessionRecorder(s.collector),
		handlers.WithOriginPatterns(wsOriginPatterns(s.cfg.Server.CORSAllowedOrigins)),
	)

	s.logger.Info("Handlers initialized")
}

// wsOriginPatterns 把 CORS 来源 URL 映射为 WebSocket 握手允许的主机模式
// （"http://localhost:5173" → "localhost:5173"）。
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 场景与编辑器状态
	// ========================================
	mux.HandleFunc("/api/v1/scene", s.sceneHandler.HandleState)
	mux.HandleFunc("/api/v1/scene/objects", s.sceneHandler.HandleObjects)
	mux.HandleFunc("/api/v1/scene/objects/model", s.sceneHandler.HandleAddModel)
	mux.HandleFunc("/api/v1/scene/objects/light", s.sceneHandler.HandleAddLight)
	mux.HandleFunc("/api/v1/scene/objects/camera", s.sceneHandler.HandleAddCamera)
	mux.HandleFunc("/api/v1/scene/objects/{id}", s.sceneHandler.HandleObject)
	mux.HandleFunc("/api/v1/scene/selection", s.sceneHandler.HandleSelection)
	mux.HandleFunc("/api/v1/scene/selection/transform", s.sceneHandler.HandleSelectedTransform)
	mux.HandleFunc("/api/v1/scene/transform-mode", s.sceneHandler.HandleTransformMode)
	mux.HandleFunc("/api/v1/scene/clear", s.sceneHandler.HandleClear)
	mux.HandleFunc("/api/v1/scene/undo", s.sceneHandler.HandleUndo)
	mux.HandleFunc("/api/v1/scene/redo", s.sceneHandler.HandleRedo)
	mux.HandleFunc("/api/v1/scene/history", s.sceneHandler.HandleHistory)
	mux.HandleFunc("/api/v1/scene/render-settings", s.sceneHandler.HandleRenderSettings)

	// 通知队列
	mux.HandleFunc("/api/v1/notifications", s.sceneHandler.HandleNotifications)
	mux.HandleFunc("/api/v1/notifications/{id}", s.sceneHandler.HandleDismissNotification)

	// ========================================
	// 资产与生成流水线
	// ========================================
	mux.HandleFunc("/api/v1/assets", s.assetHandler.HandleAssets)
	mux.HandleFunc("/api/v1/assets/import", s.assetHandler.HandleImport)
	mux.HandleFunc("/api/v1/assets/generate", s.assetHandler.HandleGenerate)
	mux.HandleFunc("/api/v1/assets/{id}", s.assetHandler.HandleAsset)

	// 相机协调
	mux.HandleFunc("/api/v1/camera", s.cameraHandler.HandleCamera)
	mux.HandleFunc("/api/v1/camera/orbit", s.cameraHandler.HandleOrbit)
	mux.HandleFunc("/api/v1/camera/active", s.cameraHandler.HandleActiveCamera)

	// 后端地址偏好
	mux.HandleFunc("/api/v1/backend", s.backendHandler.HandleBackend)
	mux.HandleFunc("/api/v1/backend/test", s.backendHandler.HandleTestConnection)

	// 事件流（WebSocket）
	mux.HandleFunc("/api/v1/events", s.eventsHandler.HandleEvents)

	// ========================================
	// 代理端点。/upload /task 与任务客户端的路径约定一致，
	// 默认配置下编辑器网络层直接打回本服务
	// ========================================
	mux.HandleFunc("/proxy", s.fileProxy.HandleProxy)
	mux.HandleFunc("/upload", s.backend.HandleUpload)
	mux.HandleFunc("/task", s.backend.HandleCreateTask)
	mux.HandleFunc("/task/{id}", s.backend.HandleGetTask)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	// API Key 列表为空时网关鉴权关闭（本地单用户部署）
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	middlewares = append(middlewares,
		MetricsMiddleware(s.collector),
		OTelTracing(),
	)
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待退出条件：SIGINT/SIGTERM，或任一服务器异常退出。
func (s *Server) WaitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-s.httpManager.Errors():
			return fmt.Errorf("http server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		select {
		case err := <-s.metricsManager.Errors():
			return fmt.Errorf("metrics server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("server exited unexpectedly", zap.Error(err))
	} else {
		s.logger.Info("received shutdown signal")
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。顺序：先停入口（HTTP、WS 会话），
// 再停后台（流水线、存储），最后关外部连接与遥测。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器（WS 连接是 hijacked 的，不在 Shutdown 等待范围内）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 断开全部事件流会话并退订事件总线
	if s.eventsHandler != nil {
		s.eventsHandler.Close()
	}

	// 3. 取消在途生成 job
	if s.pipeline != nil {
		s.pipeline.Close()
	}

	// 4. 停掉存储（通知过期定时器、事件总线）
	if s.store != nil {
		s.store.Close()
	}

	// 5. 关闭外部连接
	if s.taskCache != nil {
		if err := s.taskCache.Close(); err != nil {
			s.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if s.prefs != nil {
		s.prefs.Close()
	}

	// 6. 冲刷遥测数据
	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	// 7. 关闭 Metrics 服务器（最后停，关闭期间还能抓一轮指标）
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
