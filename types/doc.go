// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 SceneFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 scene、gen、proxy、
gateway 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - Asset / AssetStatus   — 生成资产及其四态规范化生命周期
  - SceneObject           — 场景对象联合体（Model / Light / Camera）
  - Transform / Vec3      — float32 变换与三维向量运算
  - EditorState           — 选择、变换模式、激活相机等瞬态编辑状态
  - CameraState           — 自由轨道相机状态（带显式写入版本号）
  - RenderSettings        — 风格化渲染配置（可撤销域的一部分）
  - Notification          — 自动过期的用户提示消息
  - Error / ErrorCode     — 结构化错误体系，含 HTTP 状态码、Retryable 标记

# 主要能力

  - 联合体构造：NewModelObject / NewLightObject / NewCameraObject
  - 部分更新：ObjectPatch / AssetPatch / TransformPatch 等 Apply 合并
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 默认值：DefaultLightPosition、DefaultCameraPosition、DefaultRenderSettings
*/
package types
