// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
包 gen 是 3D 生成任务 API 的客户端边界：上传参考图、创建生成任务、
轮询任务状态，并把厂商侧自由格式的状态字符串归一化为四个规范状态。

# 概述

编辑器的资产从这里诞生：一张参考图经 UploadImage 换取 image_token，
CreateImageTask / CreateTextTask 提交生成任务拿到 task_id，Poller 以固定
2 秒间隔轮询直到任务终结，Pipeline 把整条链路串起来并将进度回写到任何
实现 AssetUpdater 的存储（scene.Store 天然满足）。

# 核心类型

  - Client — 任务 API 的 HTTP 客户端（上传、建任务、查状态、连通性探测）。
  - Status — 规范任务状态：Pending / Processing / Completed / Error。
  - TaskResult — 单次状态查询结果（状态、进度、模型产物链接）。
  - Poller — 定时轮询器，自带瞬态错误计数与快速失败分类。
  - Pipeline — 上传 → 建任务 → 轮询 → 回写 的编排器。

# 不变量

  - 未识别的厂商状态一律归一化为 Pending（上游如此约定，风险已知：
    轮询器的尝试上限兜底）。
  - 连通性探测中 404 视为成功 — 它证明后端可达且路由正确。
  - 应用级错误（code≠0）绝不重试；401/403/404/5xx 在轮询中快速失败；
    仅瞬态错误（超时、连接失败）参与退避重试与连击计数。
*/
package gen
