package gen

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// TaskFetcher 抽象状态查询，Client 满足它；测试用假实现。
type TaskFetcher interface {
	GetTask(ctx context.Context, taskID string) (TaskResult, error)
}

// CycleRecorder 按轮询周期计数结果（ok / transient_error / fatal_error）。
type CycleRecorder interface {
	RecordPollCycle(outcome string)
}

// UpdateFunc 在每个成功的轮询周期与终态时被调用。回调在轮询 goroutine
// 上执行，实现方自己负责串行化（Store 的操作本身就是原子的）。
type UpdateFunc func(update TaskUpdate)

// Poller 以固定间隔轮询单个任务直到终态。同一任务同一时刻至多一次
// 在途查询（查询与下一个 tick 串行），不同任务的轮询相互独立。
//
// 自停条件：
//   - 终态（Completed / Error）
//   - 连续瞬态错误达到 MaxTransientErrors（成功一次即清零）
//   - HTTP 401/403/404/5xx 或后端业务错误 — 立即失败，不消耗错误预算
//   - 次数达到 MaxAttempts
//   - ctx 取消（资产被删除等外部原因）
type Poller struct {
	fetcher TaskFetcher
	cfg     PollConfig
	logger  *zap.Logger
	rec     CycleRecorder
}

// PollerOption 配置 Poller。
type PollerOption func(*Poller)

// WithPollRecorder 让每个轮询周期的结果进入指标。
func WithPollRecorder(rec CycleRecorder) PollerOption {
	return func(p *Poller) { p.rec = rec }
}

// NewPoller 创建轮询器。cfg 的零值字段回填默认值。
func NewPoller(fetcher TaskFetcher, cfg PollConfig, logger *zap.Logger, opts ...PollerOption) *Poller {
	def := DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxTransientErrors <= 0 {
		cfg.MaxTransientErrors = def.MaxTransientErrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "gen_poller")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) recordCycle(outcome string) {
	if p.rec != nil {
		p.rec.RecordPollCycle(outcome)
	}
}

// Poll 阻塞直到任务终态或轮询自停，终态结果随 err 一并返回。
// 首次查询发生在第一个 tick 之后（任务刚创建时立即查询没有意义）。
func (p *Poller) Poll(ctx context.Context, taskID string, onUpdate UpdateFunc) (TaskResult, error) {
	if onUpdate == nil {
		onUpdate = func(TaskUpdate) {}
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	log := p.logger.With(zap.String("task_id", taskID))
	transient := 0

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Info("polling cancelled", zap.Int("attempt", attempt))
			return TaskResult{}, ctx.Err()
		case <-ticker.C:
		}

		result, err := p.fetcher.GetTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return TaskResult{}, ctx.Err()
			}
			if pollFatal(err) {
				p.recordCycle("fatal_error")
				log.Error("polling failed", zap.Int("attempt", attempt), zap.Error(err))
				onUpdate(TaskUpdate{TaskID: taskID, Status: StatusError, ErrorMsg: errorMessage(err)})
				return TaskResult{}, err
			}
			transient++
			p.recordCycle("transient_error")
			log.Warn("transient poll error",
				zap.Int("attempt", attempt),
				zap.Int("consecutive", transient),
				zap.Error(err),
			)
			if transient >= p.cfg.MaxTransientErrors {
				wrapped := types.NewError(types.ErrPollExhausted,
					fmt.Sprintf("giving up after %d consecutive transient errors", transient)).WithCause(err)
				onUpdate(TaskUpdate{TaskID: taskID, Status: StatusError, ErrorMsg: wrapped.Message})
				return TaskResult{}, wrapped
			}
			continue
		}
		transient = 0
		p.recordCycle("ok")

		switch result.Status {
		case StatusCompleted:
			modelURL := result.Output.BestModelURL()
			log.Info("task completed",
				zap.Int("attempt", attempt),
				zap.String("model_url", modelURL),
			)
			onUpdate(TaskUpdate{
				TaskID:   taskID,
				Status:   StatusCompleted,
				Progress: result.Progress,
				ModelURL: modelURL,
			})
			return result, nil
		case StatusError:
			msg := fmt.Sprintf("generation failed with status %q", result.RawStatus)
			log.Warn("task failed", zap.Int("attempt", attempt), zap.String("raw_status", result.RawStatus))
			onUpdate(TaskUpdate{TaskID: taskID, Status: StatusError, ErrorMsg: msg})
			return result, types.NewError(types.ErrTaskFailed, msg)
		default:
			log.Debug("task in progress",
				zap.Int("attempt", attempt),
				zap.String("status", string(result.Status)),
				zap.Float64("progress", result.Progress),
			)
			onUpdate(TaskUpdate{TaskID: taskID, Status: result.Status, Progress: result.Progress})
		}
	}

	err := types.NewError(types.ErrPollExhausted,
		fmt.Sprintf("task did not finish within %d attempts", p.cfg.MaxAttempts))
	onUpdate(TaskUpdate{TaskID: taskID, Status: StatusError, ErrorMsg: err.Message})
	return TaskResult{}, err
}

// pollFatal 判定状态查询错误是否立即终止轮询：401/403/404/5xx 和
// 业务层拒绝都不值得继续轮询；传输层故障（超时、连接失败）与 429
// 走连续错误预算。
func pollFatal(err error) bool {
	e := types.AsError(err)
	if e == nil {
		return false
	}
	if e.Code == types.ErrBackendRejected {
		return true
	}
	switch {
	case e.HTTPStatus == http.StatusUnauthorized,
		e.HTTPStatus == http.StatusForbidden,
		e.HTTPStatus == http.StatusNotFound,
		e.HTTPStatus >= http.StatusInternalServerError:
		return true
	}
	return false
}

func errorMessage(err error) string {
	if e := types.AsError(err); e != nil {
		return e.Message
	}
	return err.Error()
}
