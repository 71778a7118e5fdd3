// Package telemetry 负责 OpenTelemetry 的装配：按配置建好
// TracerProvider 与 MeterProvider 并注册为全局实例。
// 开关关闭时返回空 Providers，全程不触碰 OTLP 端点。
package telemetry
