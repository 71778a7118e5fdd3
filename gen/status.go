package gen

import "strings"

// statusAliases 收录已知的厂商状态原文。表外字符串按上游约定归为
// Pending — 新的终态字符串会因此被轮询到尝试上限，修改该策略前先
// 确认厂商文档。
var statusAliases = map[string]Status{
	"queued":  StatusPending,
	"pending": StatusPending,
	"created": StatusPending,

	"running":      StatusProcessing,
	"starting":     StatusProcessing,
	"processing":   StatusProcessing,
	"initializing": StatusProcessing,

	"success":   StatusCompleted,
	"succeeded": StatusCompleted,
	"finished":  StatusCompleted,
	"completed": StatusCompleted,

	"failed":        StatusError,
	"banned":        StatusError,
	"expired":       StatusError,
	"cancelled":     StatusError,
	"unknown":       StatusError,
	"unknown_error": StatusError,
}

// NormalizeStatus 把厂商状态字符串归一化为规范状态。大小写与首尾空白
// 不敏感。
func NormalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusPending
}
