package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 存活与就绪探测
// =============================================================================

// 总状态与单项结果在响应里的取值。
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	checkPass       = "pass"
	checkFail       = "fail"
)

// readyTimeout 就绪探测的总时限，所有检查项共用同一个 ctx。
const readyTimeout = 5 * time.Second

// HealthHandler 承接 /health、/healthz、/ready 与 /version 四组端点。
// 存活探测永远回 200；就绪探测逐项跑注册进来的 HealthCheck。
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 是就绪探测的最小单元：报个名字，在 ctx 时限内探一次。
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 是探测端点的响应体。Checks 只在就绪探测里出现。
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy | unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 记录一项检查跑完后的落点。
type CheckResult struct {
	Status  string `json:"status"` // pass | fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 返回一个还没挂任何检查项的处理器。
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// RegisterCheck 把一项检查挂进就绪探测，存活探测不受影响。
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// snapshot 拷贝一份检查列表，探测期间不挡注册。
func (h *HealthHandler) snapshot() []HealthCheck {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HealthCheck(nil), h.checks...)
}

// =============================================================================
// 🎯 探测端点
// =============================================================================

// HandleHealth 响应 /health。
// @Summary 存活探测
// @Description 进程在即回 200，不碰任何下游依赖
// @Tags 运维
// @Produce json
// @Success 200 {object} HealthStatus "进程存活"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeAlive(w)
}

// HandleHealthz 响应 /healthz，给 liveness probe 用的别名路径。
// @Summary 存活探测（探针别名）
// @Description 与 /health 行为一致，方便按惯例配置 livenessProbe
// @Tags 运维
// @Produce json
// @Success 200 {object} HealthStatus "进程存活"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeAlive(w)
}

// writeAlive 活跃度探针只回答「进程活着」，不做依赖探测。
func (h *HealthHandler) writeAlive(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
	})
}

// HandleReady 响应 /ready 与 /readyz。
// @Summary 就绪探测
// @Description 并发跑完全部注册检查（生成后端连通、任务缓存可用），任一失败即 503
// @Tags 运维
// @Produce json
// @Success 200 {object} HealthStatus "全部检查通过"
// @Failure 503 {object} HealthStatus "存在失败的检查项"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := h.snapshot()
	results := make([]CheckResult, len(checks))

	// 并发探测：就绪延迟取决于最慢的一项，而不是所有检查之和
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk HealthCheck) {
			defer wg.Done()
			results[i] = h.runCheck(ctx, chk)
		}(i, chk)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	code := http.StatusOK
	for i, chk := range checks {
		status.Checks[chk.Name()] = results[i]
		if results[i].Status == checkFail {
			status.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
		}
	}

	WriteJSON(w, code, status)
}

// runCheck 执行单项检查并折叠成结果，失败记 Warn。
func (h *HealthHandler) runCheck(ctx context.Context, chk HealthCheck) CheckResult {
	start := time.Now()
	err := chk.Check(ctx)
	latency := time.Since(start)

	if err != nil {
		h.logger.Warn("health check failed",
			zap.String("check", chk.Name()),
			zap.Error(err),
			zap.Duration("latency", latency),
		)
		return CheckResult{
			Status:  checkFail,
			Message: err.Error(),
			Latency: latency.String(),
		}
	}
	return CheckResult{
		Status:  checkPass,
		Latency: latency.String(),
	}
}

// HandleVersion 构造 /version 的处理函数。
// @Summary 构建信息
// @Description 返回编译期注入的版本号、构建时间与提交哈希
// @Tags 运维
// @Produce json
// @Success 200 {object} map[string]string "构建信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	// 三个值整个进程生命周期不变，注册路由时拼一次就够
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 依赖探测适配
// =============================================================================

// probeCheck 把一个探测函数适配成 HealthCheck。
type probeCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func (c probeCheck) Name() string                    { return c.name }
func (c probeCheck) Check(ctx context.Context) error { return c.probe(ctx) }

// BackendHealthCheck 探测生成后端连通性。probe 通常包装
// gen.Client.TestConnection — 探测路径返回 404 即视为可达。
type BackendHealthCheck struct{ probeCheck }

// NewBackendHealthCheck 用给定探测函数包一个后端检查项。
func NewBackendHealthCheck(name string, probe func(ctx context.Context) error) *BackendHealthCheck {
	return &BackendHealthCheck{probeCheck{name: name, probe: probe}}
}

// RedisHealthCheck 探测任务缓存连通性。Redis 是可选依赖，
// 未启用时不注册这一项。
type RedisHealthCheck struct{ probeCheck }

// NewRedisHealthCheck 用 Ping 函数包一个缓存检查项。
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{probeCheck{name: name, probe: ping}}
}
