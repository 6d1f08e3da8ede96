// Package engine 定时触发任务并交给运行器执行（对外导出）
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// 触发结果
const (
	OutcomeSubmitted = "submitted"
	OutcomeBlocked   = "blocked"
	OutcomeError     = "error"
)

// JobDefinition 定时任务定义（对外导出）
type JobDefinition struct {
	Name       string
	Cron       string
	ModelID    string
	Body       string
	Config     task.Config
	LoadWeight int
}

// Validate 校验任务定义
func (d JobDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("定时任务名称不能为空")
	}
	if d.Body == "" {
		return fmt.Errorf("定时任务 %s 未设置执行体", d.Name)
	}
	if d.Cron == "" {
		return fmt.Errorf("定时任务 %s 未设置Cron表达式", d.Name)
	}
	if _, err := cronParser.Parse(d.Cron); err != nil {
		return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", d.Name, err)
	}
	return nil
}

// 支持秒级精度
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type registeredJob struct {
	mu      sync.Mutex // 串行化同一任务的触发
	def     JobDefinition
	entry   cron.EntryID
	blocked *instance.TaskInstance // 上次因无空闲槽位未提交的实例
}

// CronScheduler 定时调度器（对外导出）
// 每次触发创建新的任务实例；运行器没有空闲槽位时实例保留到下次触发并累加推迟次数
type CronScheduler struct {
	cron    *cron.Cron
	runner  runner.EngineRunner
	jobs    map[string]*registeredJob
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// SchedulerOption 调度器选项
type SchedulerOption func(*CronScheduler)

// WithSchedulerLogger 设置日志
func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(cs *CronScheduler) {
		cs.logger = l
	}
}

// WithSchedulerMetrics 设置指标
func WithSchedulerMetrics(m *metrics.Metrics) SchedulerOption {
	return func(cs *CronScheduler) {
		cs.metrics = m
	}
}

// WithSchedulerClock 设置实例创建时间使用的时钟
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(cs *CronScheduler) {
		if now != nil {
			cs.now = now
		}
	}
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(r runner.EngineRunner, opts ...SchedulerOption) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &CronScheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		runner: r,
		jobs:   make(map[string]*registeredJob),
		ctx:    ctx,
		cancel: cancel,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// RegisterJob 注册定时任务（对外导出）
func (cs *CronScheduler) RegisterJob(def JobDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.jobs[def.Name]; exists {
		return fmt.Errorf("定时任务 %s 已注册", def.Name)
	}

	name := def.Name
	entryID, err := cs.cron.AddFunc(def.Cron, func() {
		if _, err := cs.Trigger(name); err != nil {
			cs.logger.Error().Err(err).Str("job", name).Msg("定时触发失败")
		}
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.jobs[name] = &registeredJob{def: def, entry: entryID}

	cs.logger.Info().Str("job", name).Str("cron", def.Cron).Msg("已注册定时任务")
	return nil
}

// UnregisterJob 取消注册定时任务（对外导出）
func (cs *CronScheduler) UnregisterJob(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job, exists := cs.jobs[name]
	if !exists {
		return fmt.Errorf("定时任务 %s 未注册", name)
	}
	cs.cron.Remove(job.entry)
	delete(cs.jobs, name)

	cs.logger.Info().Str("job", name).Msg("已取消注册定时任务")
	return nil
}

// Jobs 已注册的任务名称（排序后）
func (cs *CronScheduler) Jobs() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger 立即触发一次任务，返回触发结果
// 同一任务的多次触发串行执行，提交期间不持有调度器锁，不同任务互不阻塞
func (cs *CronScheduler) Trigger(name string) (string, error) {
	cs.mu.Lock()
	job, exists := cs.jobs[name]
	cs.mu.Unlock()
	if !exists {
		return OutcomeError, fmt.Errorf("定时任务 %s 未注册", name)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	inst := job.blocked
	if inst == nil {
		inst = instance.New(instance.Spec{
			ModelID:    job.def.ModelID,
			TaskName:   job.def.Name,
			Body:       job.def.Body,
			Config:     job.def.Config,
			LoadWeight: job.def.LoadWeight,
			CreatedAt:  cs.now(),
		})
	}

	if !cs.runner.HasOpenSlots(inst) {
		return cs.block(job, inst), nil
	}
	err := cs.runner.Execute(cs.ctx, inst)
	if errors.Is(err, runner.ErrNoOpenSlots) {
		return cs.block(job, inst), nil
	}
	if err != nil {
		cs.metrics.SchedulerTriggered(name, OutcomeError)
		return OutcomeError, fmt.Errorf("提交定时任务 %s 失败: %w", name, err)
	}

	job.blocked = nil
	cs.metrics.SchedulerTriggered(name, OutcomeSubmitted)
	cs.logger.Debug().Str("job", name).Int("times_blocked", inst.TimesBlocked()).Msg("定时任务已提交")
	return OutcomeSubmitted, nil
}

func (cs *CronScheduler) block(job *registeredJob, inst *instance.TaskInstance) string {
	n := inst.MarkBlocked()
	job.blocked = inst
	cs.metrics.SchedulerTriggered(job.def.Name, OutcomeBlocked)
	cs.logger.Warn().Str("job", job.def.Name).Int("times_blocked", n).Msg("运行器没有空闲槽位，推迟到下次触发")
	return OutcomeBlocked
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	cs.logger.Info().Msg("定时调度器已启动")
}

// Stop 停止定时调度器并等待正在进行的触发结束（对外导出）
func (cs *CronScheduler) Stop() {
	<-cs.cron.Stop().Done()
	cs.cancel()
	cs.logger.Info().Msg("定时调度器已停止")
}
