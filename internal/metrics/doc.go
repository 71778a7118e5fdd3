// 版权所有 2025 SceneFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 定义 SceneFlow 的 Prometheus 指标面：HTTP 网关、
场景存储、生成任务、双代理、缓存与 WebSocket 六组指标由
一个 Collector 统一持有。

# 概述

所有指标经 promauto 挂到默认 Registry 上，共享 sceneflow
namespace；记录入口都是 Collector 上的方法，业务代码不直接
接触 prometheus 包的类型。Collector 为 nil 时各记录方法均为
空操作，测试无需装配指标。

# 指标分组

  - HTTP：请求计数、时延直方图与请求/响应体大小，label 为
    method/path/status，status 压成 2xx/3xx/4xx/5xx 档。
  - 场景存储：按操作分类的状态变更计数、undo/redo 栈深度
    Gauge、展示中通知数量。
  - 生成任务：终态计数与端到端耗时（kind/status），轮询周期
    按 outcome 计数。
  - 代理：按 route 的请求计数与下行字节量。
  - 缓存：按 cache_type 的命中/未命中计数。
  - WebSocket：在线会话 Gauge 与事件广播计数。
*/
package metrics
