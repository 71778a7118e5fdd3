// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package main 是 sceneflow 可执行程序：装配状态引擎、生成流水线、
双代理与 REST/WebSocket 网关，然后看住它们直到进程退出。

# 子命令

serve 读 YAML 配置起服务；version 打印 ldflags 注入的
Version/BuildTime/GitCommit；health 对运行中的实例发一次
活性探测并以退出码回报结果。

# 装配顺序

NewServer 自底向上建组件：日志 → 指标 → 存储 → 缓存 →
生成客户端/流水线 → 双代理 → 处理器 → 路由。中间件按
Recovery、RequestID、SecurityHeaders、RequestLogger、CORS、
RateLimiter、APIKeyAuth、MetricsMiddleware、OTelTracing 的
顺序包住路由，恐慌恢复永远在最外层。

# 运行期

网关和 /metrics 各占一个端口，各由一个 server.Manager 看管。
偏好文件由 config.FileWatcher 盯着，外部编辑后端地址实时生效。
收到 SIGINT/SIGTERM 或任一监听器异常时走统一的排空顺序：
HTTP 先停、WebSocket 断开、流水线与存储随后，缓存和遥测
最后冲刷。
*/
package main
