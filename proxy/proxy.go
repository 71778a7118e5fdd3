package proxy

import (
	"encoding/json"
	"net/http"
)

// 代理路由标签（观测维度，不是 URL 路径）。
const (
	routeFile       = "file"
	routeUpload     = "upload"
	routeTaskCreate = "task_create"
	routeTaskGet    = "task_get"
)

// taskCacheType 终态任务缓存的观测标签。
const taskCacheType = "task"

// Recorder 接收代理转发的观测回调：每次转发的路由标签、响应状态与
// 转发字节数，以及任务缓存的命中/未命中。*metrics.Collector 实现了
// 该接口；nil 表示不上报。
type Recorder interface {
	RecordProxyRequest(route string, status int, bytes int64)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

func record(rec Recorder, route string, status int, bytes int64) {
	if rec != nil {
		rec.RecordProxyRequest(route, status, bytes)
	}
}

// proxyError 是代理自产错误的响应体，形状对齐厂商信封（code + message）。
type proxyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeProxyError 回写代理自产的错误。HTTP 状态码承载分类 —
// 网关客户端按状态码而非信封内容判定可重试性。
func writeProxyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(proxyError{Code: status, Message: message})
}
