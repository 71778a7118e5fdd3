// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 SceneFlow 网关的各组 HTTP 端点。

# 概述

场景对象编辑、资产导入与 AI 生成、相机协调、通知、撤销/重做、
WebSocket 事件流、健康检查都在这里落地。处理器之间不互相引用，
共享的只有 common.go 里的响应信封和解码辅助；对外全部是标准
net/http.HandlerFunc，路由注册与中间件装配放在 cmd 层。

# 处理器

  - SceneHandler    场景对象 CRUD、选中、变换模式、渲染配置与历史操作
  - AssetHandler    资产导入、文生/图生 3D 任务、后端偏好与连通性探测
  - CameraHandler   自由相机状态、轨道观察上报、场景相机激活
  - EventsHandler   把存储层事件总线桥成 WebSocket 推送
  - HealthHandler   /health /healthz 活性 + /ready 并发就绪探测

# 响应约定

所有端点回同一个信封：success、data、error、timestamp 四个字段。
错误体由 ErrorInfo 承载（code/message/retryable），HTTP 状态码从
types.ErrorCode 映射得出；4xx 会把底层原因放进 details，5xx 不回显。
请求体解码统一走 DecodeJSONBody：封顶 1 MB（超限回 413）、拒绝
未知字段；Content-Type 校验交给 ValidateContentType。
*/
package handlers
