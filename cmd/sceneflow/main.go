// =============================================================================
// SceneFlow 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	sceneflow serve                       # 启动服务
//	sceneflow serve --config config.yaml  # 指定配置文件
//	sceneflow version                     # 显示版本信息
//	sceneflow health                      # 健康检查
// =============================================================================

// @title SceneFlow API
// @version 1.0.0
// @description SceneFlow is the state and history engine behind a browser 3D scene editor, exposed as a standalone Go service.
// @description
// @description ## Features
// @description - Scene entity store with snapshot undo/redo
// @description - 3D asset generation pipeline (image/text to model) with task polling
// @description - Camera reconciliation and auto-expiring notifications
// @description - Server-side vendor proxy (API key injection) and file proxy
// @description - Live state push over WebSocket

// @contact.name SceneFlow Team
// @contact.url https://github.com/BaSui01/sceneflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/sceneflow/config"
	"github.com/BaSui01/sceneflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, rest := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		runServe(rest)
	case "version":
		printVersion()
	case "health":
		runHealthCheck(rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "sceneflow: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

// fatalf 启动早期还没有 logger，错误直接落 stderr。
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting sceneflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.Int("pid", os.Getpid()),
	)

	// 遥测装配失败不拦启动，退化为无遥测运行
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	srv := NewServer(cfg, logger, providers)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	srv.WaitForShutdown()

	logger.Info("sceneflow stopped")
}

// loadConfig 加载并校验配置，失败直接退出进程。
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}
	return cfg
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.TrimRight(*addr, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fatalf("health check failed: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatalf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("sceneflow %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
	fmt.Printf("  go:         %s\n", runtime.Version())
}

func printUsage() {
	fmt.Println(`SceneFlow - 3D scene editor state engine

Usage:
  sceneflow <command> [options]

Commands:
  serve     Start the SceneFlow server
  version   Show version information
  health    Probe a running server's /health endpoint
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'health':
  --addr <url>      Server base address (default http://localhost:8080)

Examples:
  sceneflow serve
  sceneflow serve --config /etc/sceneflow/config.yaml
  sceneflow health --addr http://localhost:8080
  sceneflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 按 config.LogConfig 构建 zap，构建失败退回生产默认配置。
func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if console {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
