package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/rs/zerolog"
)

const (
	// DefaultPoolSize 默认并发数
	DefaultPoolSize = 25
	// DefaultShutdownGrace 关闭时等待运行中任务的时长
	DefaultShutdownGrace = 30 * time.Second

	localRunnerName = "local"
)

// LocalAsyncRunner 进程内有界worker池运行器（对外导出）
// 每次提交启动一个goroutine等待池令牌，池满时排队而不是拒绝
type LocalAsyncRunner struct {
	mu        sync.Mutex
	pool      chan struct{}
	registry  *task.Registry
	repo      instance.Repository
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	mode      PersistMode
	admission bool
	queueSize int
	grace     time.Duration
	now       func() time.Time

	queued  int
	running int
	closed  bool
	latched error

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// LocalOption 本地运行器选项
type LocalOption func(*LocalAsyncRunner)

// WithPoolSize 设置并发数
func WithPoolSize(n int) LocalOption {
	return func(r *LocalAsyncRunner) {
		if n > 0 {
			r.pool = make(chan struct{}, n)
		}
	}
}

// WithPersistMode 设置持久化失败的处理方式
func WithPersistMode(m PersistMode) LocalOption {
	return func(r *LocalAsyncRunner) {
		r.mode = m
	}
}

// WithAdmissionControl 开启准入控制
// 运行中加排队的任务数达到 并发数+queueSize 后 HasOpenSlots 返回false，Execute 返回 ErrNoOpenSlots
func WithAdmissionControl(queueSize int) LocalOption {
	return func(r *LocalAsyncRunner) {
		if queueSize < 0 {
			queueSize = 0
		}
		r.admission = true
		r.queueSize = queueSize
	}
}

// WithShutdownGrace 设置关闭等待时长
func WithShutdownGrace(d time.Duration) LocalOption {
	return func(r *LocalAsyncRunner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLocalLogger 设置日志
func WithLocalLogger(l zerolog.Logger) LocalOption {
	return func(r *LocalAsyncRunner) {
		r.logger = l
	}
}

// WithLocalMetrics 设置指标
func WithLocalMetrics(m *metrics.Metrics) LocalOption {
	return func(r *LocalAsyncRunner) {
		r.metrics = m
	}
}

// WithLocalClock 设置状态时间点使用的时钟
func WithLocalClock(now func() time.Time) LocalOption {
	return func(r *LocalAsyncRunner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewLocalAsyncRunner 创建本地运行器
// registry: 执行体注册中心，按实例的执行体名称解析
func NewLocalAsyncRunner(registry *task.Registry, opts ...LocalOption) *LocalAsyncRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &LocalAsyncRunner{
		pool:     make(chan struct{}, DefaultPoolSize),
		registry: registry,
		logger:   zerolog.Nop(),
		grace:    DefaultShutdownGrace,
		now:      time.Now,
		rootCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("runner", localRunnerName).Logger()
	return r
}

// Bind 绑定实例持久化协作者
func (r *LocalAsyncRunner) Bind(repo instance.Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo = repo
}

// Capacity 并发数
func (r *LocalAsyncRunner) Capacity() int {
	return cap(r.pool)
}

// Stats 返回排队中和运行中的任务数
func (r *LocalAsyncRunner) Stats() (queued, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queued, r.running
}

// HasOpenSlots 未开启准入控制时始终为true（池通过排队施加背压）
func (r *LocalAsyncRunner) HasOpenSlots(_ *instance.TaskInstance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	return r.hasRoomLocked()
}

func (r *LocalAsyncRunner) hasRoomLocked() bool {
	if !r.admission {
		return true
	}
	return r.queued+r.running < cap(r.pool)+r.queueSize
}

// Execute 提交任务后立即返回
func (r *LocalAsyncRunner) Execute(ctx context.Context, inst *instance.TaskInstance) error {
	if inst == nil {
		return fmt.Errorf("任务实例不能为空")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerShutdown
	}
	if r.latched != nil {
		err := r.latched
		r.mu.Unlock()
		return err
	}
	if !r.hasRoomLocked() {
		r.mu.Unlock()
		return ErrNoOpenSlots
	}
	r.queued++
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.InFlight(localRunnerName, 1)
	go r.work(inst)
	return nil
}

func (r *LocalAsyncRunner) work(inst *instance.TaskInstance) {
	defer r.wg.Done()
	defer r.metrics.InFlight(localRunnerName, -1)

	select {
	case r.pool <- struct{}{}:
	case <-r.rootCtx.Done():
		r.mu.Lock()
		r.queued--
		r.mu.Unlock()
		inst.Transition(instance.Failure.WithMessage("运行器已关闭，任务未开始执行"), r.now())
		r.metrics.TaskFinished(localRunnerName, "cancelled")
		r.persist(inst)
		return
	}
	defer func() { <-r.pool }()

	r.mu.Lock()
	r.queued--
	r.running++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	r.run(inst)
}

// run 在当前goroutine中同步执行任务体，完成后持久化一次
func (r *LocalAsyncRunner) run(inst *instance.TaskInstance) {
	inst.Transition(instance.Executing, r.now())

	ctx := task.WithInstanceID(r.rootCtx, inst.ID())
	ctx = task.WithTaskName(ctx, inst.TaskName())
	ctx = task.WithModelID(ctx, inst.ModelID())

	start := time.Now()
	if err := r.invoke(ctx, inst); err != nil {
		inst.Transition(instance.Failure.WithMessage(err.Error()), r.now())
		r.metrics.TaskFinished(localRunnerName, "failure")
		r.logger.Warn().
			Err(err).
			Str("instance_id", inst.ID()).
			Str("task", inst.TaskName()).
			Msg("任务执行失败")
	} else {
		inst.Transition(instance.ExecutionComplete.WithMessage(
			fmt.Sprintf("任务 %s 执行完成，耗时 %s", inst.TaskName(), time.Since(start).Round(time.Millisecond))), r.now())
		r.metrics.TaskFinished(localRunnerName, "success")
		r.logger.Debug().
			Str("instance_id", inst.ID()).
			Str("task", inst.TaskName()).
			Msg("任务执行完成")
	}
	r.persist(inst)
}

func (r *LocalAsyncRunner) invoke(ctx context.Context, inst *instance.TaskInstance) (err error) {
	name := inst.BodyName()
	defer func() {
		if p := recover(); p != nil {
			err = &TaskExecutionError{InstanceID: inst.ID(), Body: name, Panic: p}
		}
	}()

	if r.registry == nil {
		return &TaskExecutionError{InstanceID: inst.ID(), Body: name, Err: task.ErrBodyNotFound}
	}
	body, err := r.registry.Resolve(name)
	if err != nil {
		return &TaskExecutionError{InstanceID: inst.ID(), Body: name, Err: err}
	}
	if err := body.Run(ctx, inst.Context(), inst.Config()); err != nil {
		return &TaskExecutionError{InstanceID: inst.ID(), Body: name, Err: err}
	}
	return nil
}

// persist 无ID时Insert，否则Update
func (r *LocalAsyncRunner) persist(inst *instance.TaskInstance) {
	r.mu.Lock()
	repo := r.repo
	r.mu.Unlock()

	id := inst.ID()
	var w *PersistenceWarning
	switch {
	case repo == nil:
		w = &PersistenceWarning{InstanceID: id, Op: "持久化", Err: fmt.Errorf("未绑定Repository")}
	case id == "":
		if err := repo.Insert(context.Background(), inst); err != nil {
			w = &PersistenceWarning{InstanceID: id, Op: "插入", Err: err}
		}
	default:
		if err := repo.Update(context.Background(), inst); err != nil {
			w = &PersistenceWarning{InstanceID: id, Op: "更新", Err: err}
		}
	}
	if w == nil {
		return
	}

	r.metrics.PersistFailed(localRunnerName)
	r.logger.Warn().Err(w.Err).Str("instance_id", id).Str("op", w.Op).Msg("实例持久化失败")
	if r.mode == FailFast {
		r.mu.Lock()
		if r.latched == nil {
			r.latched = w
		}
		r.mu.Unlock()
	}
}

// Shutdown 停止接收任务，取消根context并在宽限期内等待worker退出
// 任务体需要自行检查ctx才能及时响应中断
func (r *LocalAsyncRunner) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		err := r.latched
		r.mu.Unlock()
		return err
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case <-done:
		r.logger.Info().Msg("本地运行器已关闭")
	case <-timer.C:
		queued, running := r.Stats()
		r.logger.Warn().Int("queued", queued).Int("running", running).Msg("关闭超时，仍有任务未退出")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latched
}

// Wait 等待所有已提交的任务结束
func (r *LocalAsyncRunner) Wait() {
	r.wg.Wait()
}

var _ EngineRunner = (*LocalAsyncRunner)(nil)
