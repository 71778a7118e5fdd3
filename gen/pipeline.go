package gen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

// AssetUpdater 接收生成进度对资产的增量更新。*scene.Store 满足它：
// 对已删除资产的更新是静默空操作，所以轮询回调永远不需要判活。
type AssetUpdater interface {
	UpdateAsset(id string, patch types.AssetPatch)
}

// Notifier 接收面向用户的生成结果消息，可选。
type Notifier interface {
	Notify(typ types.NotificationType, message string) types.Notification
}

// Recorder 接收生成链的观测数据，*metrics.Collector 隐式满足它。
type Recorder interface {
	RecordGenerationTask(kind, status string, duration time.Duration)
	CycleRecorder
}

// Pipeline 编排一条完整的生成链：上传参考图 → 创建任务 → 轮询到终态，
// 进度与结果通过 AssetUpdater 落回资产。每个资产一个后台 job，可单独
// 取消（资产删除时），Close 统一收尾。
type Pipeline struct {
	backend Backend
	poller  *Poller
	updater AssetUpdater
	logger  *zap.Logger

	notifier Notifier
	rec      Recorder

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]context.CancelFunc // assetID → job cancel
	closed bool
}

// Backend 是流水线需要的后端能力子集，*Client 满足它。
type Backend interface {
	UploadImage(ctx context.Context, filename string, file io.Reader) (string, error)
	CreateImageTask(ctx context.Context, fileToken, fileType string) (string, error)
	CreateTextTask(ctx context.Context, prompt string) (string, error)
	TaskFetcher
}

// PipelineOption 配置 Pipeline。
type PipelineOption func(*Pipeline)

// WithNotifier 让流水线在任务终态时发一条用户可见通知。
func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// WithRecorder 让任务终态与轮询周期进入指标。
func WithRecorder(rec Recorder) PipelineOption {
	return func(p *Pipeline) {
		p.rec = rec
		p.poller.rec = rec
	}
}

// NewPipeline 创建生成流水线。
func NewPipeline(backend Backend, updater AssetUpdater, pollCfg PollConfig, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		backend: backend,
		poller:  NewPoller(backend, pollCfg, logger),
		updater: updater,
		logger:  logger.With(zap.String("component", "gen_pipeline")),
		rootCtx: ctx,
		cancel:  cancel,
		jobs:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartImageJob 启动 image_to_model 生成。file 在调用方 goroutine 内
// 读完（请求体在 handler 返回后即失效），网络部分全部异步。
func (p *Pipeline) StartImageJob(assetID, filename string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to read uploaded image").WithCause(err)
	}
	if len(data) == 0 {
		return types.NewError(types.ErrInvalidRequest, "uploaded image is empty")
	}

	return p.startJob(assetID, "image", func(ctx context.Context) (string, error) {
		token, err := p.backend.UploadImage(ctx, filename, bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		return p.backend.CreateImageTask(ctx, token, FileTypeFromName(filename))
	})
}

// StartTextJob 启动 text_to_model 生成。
func (p *Pipeline) StartTextJob(assetID, prompt string) error {
	if prompt == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt must not be empty")
	}
	return p.startJob(assetID, "text", func(ctx context.Context) (string, error) {
		return p.backend.CreateTextTask(ctx, prompt)
	})
}

// startJob 注册并派生后台 job。create 返回任务 id，之后进入轮询。
func (p *Pipeline) startJob(assetID, kind string, create func(context.Context) (string, error)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return types.NewError(types.ErrServiceUnavailable, "generation pipeline is shut down")
	}
	if _, running := p.jobs[assetID]; running {
		p.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("generation already running for asset %s", assetID))
	}
	ctx, cancel := context.WithCancel(p.rootCtx)
	p.jobs[assetID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.finishJob(assetID, cancel)
		p.run(ctx, assetID, kind, create)
	}()
	return nil
}

func (p *Pipeline) run(ctx context.Context, assetID, kind string, create func(context.Context) (string, error)) {
	log := p.logger.With(zap.String("asset_id", assetID), zap.String("kind", kind))
	start := time.Now()

	taskID, err := create(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("generation cancelled before task creation")
			return
		}
		log.Error("failed to start generation", zap.Error(err))
		p.record(kind, "failed", time.Since(start))
		p.failAsset(assetID, errorMessage(err))
		return
	}
	log = log.With(zap.String("task_id", taskID))
	log.Info("generation task started")

	// 任务已被后端受理，资产进入 processing
	st := types.AssetProcessing
	p.updater.UpdateAsset(assetID, types.AssetPatch{Status: &st})

	result, err := p.poller.Poll(ctx, taskID, func(u TaskUpdate) {
		p.applyUpdate(assetID, u)
	})
	elapsed := time.Since(start)
	switch {
	case err == nil:
		log.Info("generation finished",
			zap.Duration("elapsed", elapsed),
			zap.String("model_url", result.Output.BestModelURL()),
		)
		p.record(kind, "completed", elapsed)
		p.notify(types.NotifySuccess, "3D model generated successfully")
	case ctx.Err() != nil:
		log.Info("generation cancelled", zap.Duration("elapsed", elapsed))
		p.record(kind, "cancelled", elapsed)
	default:
		log.Warn("generation failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		p.record(kind, "failed", elapsed)
		p.notify(types.NotifyError, "3D model generation failed: "+errorMessage(err))
	}
}

func (p *Pipeline) record(kind, status string, elapsed time.Duration) {
	if p.rec != nil {
		p.rec.RecordGenerationTask(kind, status, elapsed)
	}
}

// applyUpdate 把轮询增量翻译成资产补丁。规范状态与资产状态按值一一
// 对应，直接转换。
func (p *Pipeline) applyUpdate(assetID string, u TaskUpdate) {
	st := types.AssetStatus(u.Status)
	patch := types.AssetPatch{Status: &st}
	if u.ModelURL != "" {
		patch.ModelURL = &u.ModelURL
	}
	if u.ErrorMsg != "" {
		patch.ErrorMsg = &u.ErrorMsg
	}
	p.updater.UpdateAsset(assetID, patch)
}

func (p *Pipeline) failAsset(assetID, msg string) {
	st := types.AssetError
	p.updater.UpdateAsset(assetID, types.AssetPatch{Status: &st, ErrorMsg: &msg})
	p.notify(types.NotifyError, "3D model generation failed: "+msg)
}

func (p *Pipeline) notify(typ types.NotificationType, message string) {
	if p.notifier != nil {
		p.notifier.Notify(typ, message)
	}
}

func (p *Pipeline) finishJob(assetID string, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	delete(p.jobs, assetID)
	p.mu.Unlock()
}

// Cancel 终止某个资产的在途生成（资产删除路径）。没有对应 job 时
// 是空操作。
func (p *Pipeline) Cancel(assetID string) {
	p.mu.Lock()
	cancel, ok := p.jobs[assetID]
	p.mu.Unlock()
	if ok {
		cancel()
		p.logger.Info("generation cancelled", zap.String("asset_id", assetID))
	}
}

// Running 报告资产是否有在途生成。
func (p *Pipeline) Running(assetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.jobs[assetID]
	return ok
}

// Close 取消全部在途 job 并等待 goroutine 退出。幂等。
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Info("generation pipeline closed")
}
