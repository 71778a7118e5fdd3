package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/sceneflow/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// =============================================================================
// 🔭 OTel SDK 装配
// =============================================================================

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 遥测关闭时两个字段都是 nil，Shutdown 是空操作。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 装配 OTel SDK 并注册为全局 provider。cfg.Enabled 为 false 时
// 不建任何 exporter，返回 noop Providers，进程不产生外连。
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, otel setup skipped")
		return &Providers{}, nil
	}
	if cfg.OTLPEndpoint == "" {
		// gRPC exporter 是懒连接的，空端点的错误会拖到上报时才暴露
		return nil, fmt.Errorf("telemetry enabled but otlp_endpoint is empty")
	}

	ctx := context.Background()

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("otel providers installed",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(detectVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}

// Shutdown 冲刷未上报的 span/指标并关闭 exporter。
// 对 nil 或 noop Providers 调用是安全的。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	flush := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
		}
	}
	if p.tp != nil {
		flush("tracer provider", p.tp.Shutdown)
	}
	if p.mp != nil {
		flush("meter provider", p.mp.Shutdown)
	}
	return errors.Join(errs...)
}

// detectVersion 从构建信息取模块版本，测试二进制里拿到 "(devel)" 时回退 "dev"。
func detectVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return "dev"
}
