// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package scene 实现编辑器的状态与历史引擎：实体存储、快照式撤销/重做、
相机协调与自动过期通知。

# 概述

scene 是整个引擎的核心。Store 作为可注入的状态容器持有全部画布状态 —
资产列表、场景对象（模型/灯光/相机联合体）、选择与变换模式、渲染配置、
自由轨道相机状态 — 并以显式操作暴露全部变更入口。每个实例自成一体，
测试按用例新建即可隔离。

# 核心类型

  - Store       — 唯一事实来源；所有操作相对彼此原子
  - Snapshot    — 变更前捕获的 {场景对象, 渲染配置, 选中 id} 不可变副本
  - EventBus    — 按发布顺序分发状态变更事件（网关广播依赖该顺序）
  - Notifier    — 固定 4 秒存活期的通知队列
  - CameraPose  — store→视口 的相机应用指令

# 不变量

  - 先快照后变更：每个场景变更操作先把变更前状态压入过去栈并清空未来栈
  - 重做只能紧跟撤销链：任何新的前向编辑都会使未来栈失效
  - 陈旧 id 与锁定对象：静默空操作，绝不报错，也不产生历史条目
  - 删除清理：删除选中对象清空选择，删除激活相机退回自由模式
  - 相机无反馈环：重入防护 + 0.05 位置阈值双重防线，二者缺一不可
  - 版本号只随显式写入递增，连续轨道同步不触碰它
*/
package scene
