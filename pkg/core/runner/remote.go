package runner

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/rs/zerolog"
)

const (
	// DefaultQueueName 默认远程队列
	DefaultQueueName = "default"

	// ConfigQueueName 实例配置中覆盖目标队列的键
	ConfigQueueName = "QueueName"
	// ConfigLoadWeight 实例配置中覆盖负载权重的键
	ConfigLoadWeight = "LoadWeight"

	remoteRunnerName = "remote"
)

// JobSpec 提交给外部调度器的作业描述
type JobSpec struct {
	Name       string              `json:"name"`
	InstanceID string              `json:"instance_id"`
	BodyName   string              `json:"body"`
	Input      map[string][]string `json:"input"`
	Context    map[string][]string `json:"context"`
	QueueName  string              `json:"queue"`
	LoadWeight int                 `json:"load_weight"`
}

// RemoteScheduler 外部调度器协作者
type RemoteScheduler interface {
	Submit(ctx context.Context, spec JobSpec) (string, error)
	IsComplete(ctx context.Context, jobID string) (bool, error)
	Kill(ctx context.Context, jobID string) (bool, error)
}

// CapacityReporter 可选接口，调度器能报告队列余量时用于 HasOpenSlots
type CapacityReporter interface {
	HasCapacity(queue string, weight int) bool
}

// RemoteDelegatingRunner 将任务打包为作业交给外部调度器（对外导出）
// 不驱动实例状态机，也不持久化实例；结果由外部调度器或监控方负责
type RemoteDelegatingRunner struct {
	mu        sync.Mutex
	scheduler RemoteScheduler
	queue     string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	lastJobID string
	closed    bool
}

// RemoteOption 远程运行器选项
type RemoteOption func(*RemoteDelegatingRunner)

// WithQueueName 设置默认目标队列
func WithQueueName(name string) RemoteOption {
	return func(r *RemoteDelegatingRunner) {
		if name != "" {
			r.queue = name
		}
	}
}

// WithRemoteLogger 设置日志
func WithRemoteLogger(l zerolog.Logger) RemoteOption {
	return func(r *RemoteDelegatingRunner) {
		r.logger = l
	}
}

// WithRemoteMetrics 设置指标
func WithRemoteMetrics(m *metrics.Metrics) RemoteOption {
	return func(r *RemoteDelegatingRunner) {
		r.metrics = m
	}
}

// NewRemoteDelegatingRunner 创建远程运行器
func NewRemoteDelegatingRunner(scheduler RemoteScheduler, opts ...RemoteOption) *RemoteDelegatingRunner {
	r := &RemoteDelegatingRunner{
		scheduler: scheduler,
		queue:     DefaultQueueName,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("runner", remoteRunnerName).Logger()
	return r
}

// Bind 远程运行器不持久化实例，忽略
func (r *RemoteDelegatingRunner) Bind(instance.Repository) {}

// BuildJobSpec 根据实例构造作业描述
// 实例配置中的 QueueName/LoadWeight 优先于运行器默认值
func (r *RemoteDelegatingRunner) BuildJobSpec(inst *instance.TaskInstance) JobSpec {
	cfg := inst.Config()
	queue := cfg.First(ConfigQueueName)
	if queue == "" {
		queue = r.queue
	}
	weight := inst.LoadWeight()
	if w, err := strconv.Atoi(cfg.First(ConfigLoadWeight)); err == nil && w > 0 {
		weight = w
	}
	return JobSpec{
		Name:       inst.TaskName(),
		InstanceID: inst.ID(),
		BodyName:   inst.BodyName(),
		Input:      cfg,
		Context:    inst.Context().Snapshot(),
		QueueName:  queue,
		LoadWeight: weight,
	}
}

// Execute 提交一次作业，不等待完成
func (r *RemoteDelegatingRunner) Execute(ctx context.Context, inst *instance.TaskInstance) error {
	if inst == nil {
		return fmt.Errorf("任务实例不能为空")
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRunnerShutdown
	}

	spec := r.BuildJobSpec(inst)
	jobID, err := r.scheduler.Submit(ctx, spec)
	if err != nil {
		return fmt.Errorf("提交远程作业失败: %w", err)
	}

	r.mu.Lock()
	r.lastJobID = jobID
	r.mu.Unlock()

	r.metrics.JobSubmitted(spec.QueueName)
	r.logger.Info().
		Str("job_id", jobID).
		Str("queue", spec.QueueName).
		Str("task", spec.Name).
		Msg("作业已提交")
	return nil
}

// LastJobID 最近一次提交的作业ID
func (r *RemoteDelegatingRunner) LastJobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastJobID
}

// IsComplete 查询最近一次作业是否完成
func (r *RemoteDelegatingRunner) IsComplete(ctx context.Context) (bool, error) {
	jobID := r.LastJobID()
	if jobID == "" {
		return false, nil
	}
	return r.scheduler.IsComplete(ctx, jobID)
}

// Kill 尽力终止最近一次作业，没有作业时返回false
func (r *RemoteDelegatingRunner) Kill(ctx context.Context) (bool, error) {
	jobID := r.LastJobID()
	if jobID == "" {
		return false, nil
	}
	return r.scheduler.Kill(ctx, jobID)
}

// HasOpenSlots 调度器实现 CapacityReporter 时询问其余量，否则为true
func (r *RemoteDelegatingRunner) HasOpenSlots(inst *instance.TaskInstance) bool {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return false
	}
	reporter, ok := r.scheduler.(CapacityReporter)
	if !ok || inst == nil {
		return true
	}
	spec := r.BuildJobSpec(inst)
	return reporter.HasCapacity(spec.QueueName, spec.LoadWeight)
}

// Shutdown 停止接收新作业，已提交的作业不受影响
func (r *RemoteDelegatingRunner) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ EngineRunner = (*RemoteDelegatingRunner)(nil)
