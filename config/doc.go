// Package config 提供 SceneFlow 的配置管理功能。
//
// 包含配置加载（YAML 文件 + 环境变量覆盖）、持久化编辑器偏好
// 与偏好文件的变更监听。后端基地址是唯一的持久化偏好：启动时
// 读取，每次变更立即写盘。
package config
