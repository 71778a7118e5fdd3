// 版权所有 2025 SceneFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 监听器的生命周期。SceneFlow 开两个监听器：
网关端口（REST + WebSocket）和指标端口（/metrics），各由一个
Manager 负责。

# 概述

Manager 把 net/http.Server 的绑定、后台服务、错误上报和排空
收拢到一处。Start 绑定端口后立即返回，服务跑在独立 goroutine
里；serve 过程中的异常通过 Errors() 通道上抛，由装配层决定
是否整体退停。

# 核心类型

  - Manager：单个监听器的管理器。Start/StartTLS 非阻塞启动，
    Shutdown 在限定时间内排空在途请求，WaitForShutdown 把
    SIGINT/SIGTERM 和服务异常折叠成同一条退出路径。
  - Config：监听地址与各项超时。WriteTimeout 默认为 0——
    文件代理的流式下载和 WebSocket 长连接不能被全局写超时
    掐断，超时控制下放给各 handler 的 context。

# 行为约定

  - Addr 在 ":0" 启动后返回实际分配的端口，测试靠它定位服务。
  - Shutdown 幂等，重复调用返回 nil。
  - 错误通道容量为 1，只保留首个 serve 错误；一次关闭流程
    只消费一条。
*/
package server
