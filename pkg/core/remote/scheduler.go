// Package remote 提供基于watermill消息总线的外部调度器实现（对外导出）
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/wengine/pkg/core/cache"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// TopicCompleted 作业完成事件
	TopicCompleted = "jobs.completed"
	// TopicKill 作业终止事件
	TopicKill = "jobs.kill"

	topicQueuePrefix = "jobs."

	// DefaultRetention 终态作业记录的保留时长
	DefaultRetention = 10 * time.Minute
)

// ErrNoWorker 进程内总线上目标队列没有worker订阅
var ErrNoWorker = errors.New("队列没有可用的worker")

// TopicForQueue 队列对应的提交主题
func TopicForQueue(queue string) string {
	return topicQueuePrefix + queue
}

// JobStatus 作业状态
type JobStatus string

const (
	StatusSubmitted JobStatus = "SUBMITTED"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
	StatusKilled    JobStatus = "KILLED"
)

// Terminal 是否终态
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusKilled
}

// JobEnvelope 提交主题上的消息体
type JobEnvelope struct {
	JobID       string         `json:"job_id"`
	Spec        runner.JobSpec `json:"spec"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// CompletionEvent 完成主题上的消息体
type CompletionEvent struct {
	JobID      string    `json:"job_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// KillEvent 终止主题上的消息体
type KillEvent struct {
	JobID string `json:"job_id"`
}

// PubSub 调度器使用的消息总线
type PubSub interface {
	message.Publisher
	message.Subscriber
}

type jobRecord struct {
	spec   runner.JobSpec
	status JobStatus
	err    string
}

// PubSubScheduler 通过消息总线分发作业的调度器（对外导出）
// 实现 runner.RemoteScheduler 和 runner.CapacityReporter
// jobs 只保存未结束的作业，终态记录移入 finished 并在保留期后过期
type PubSubScheduler struct {
	mu        sync.RWMutex
	pubsub    PubSub
	inProcess bool
	router    *message.Router
	jobs      map[string]*jobRecord
	finished  *cache.TTLCache[*jobRecord]
	retention time.Duration
	load      map[string]int
	workers   map[string]int
	capacity  map[string]int
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option 调度器选项
type Option func(*PubSubScheduler)

// WithPubSub 使用外部消息总线，默认使用进程内gochannel
func WithPubSub(ps PubSub) Option {
	return func(s *PubSubScheduler) {
		s.pubsub = ps
	}
}

// WithQueueCapacity 设置队列的负载上限，未设置的队列不限制
func WithQueueCapacity(queue string, weight int) Option {
	return func(s *PubSubScheduler) {
		s.capacity[queue] = weight
	}
}

// WithRetention 设置终态作业记录的保留时长
func WithRetention(d time.Duration) Option {
	return func(s *PubSubScheduler) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(s *PubSubScheduler) {
		s.logger = l
	}
}

// NewPubSubScheduler 创建调度器，需调用Start后才会处理完成事件
func NewPubSubScheduler(opts ...Option) (*PubSubScheduler, error) {
	s := &PubSubScheduler{
		jobs:      make(map[string]*jobRecord),
		retention: DefaultRetention,
		load:      make(map[string]int),
		workers:   make(map[string]int),
		capacity:  make(map[string]int),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.finished = cache.New[*jobRecord](s.retention, s.retention)

	wmLogger := NewLoggerAdapter(s.logger)
	if s.pubsub == nil {
		// 非持久化总线在无订阅者时直接丢弃消息，提交前需确认队列有worker
		s.inProcess = true
		s.pubsub = gochannel.NewGoChannel(
			gochannel.Config{
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: false,
			},
			wmLogger,
		)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		s.finished.Close()
		return nil, fmt.Errorf("创建消息路由器失败: %w", err)
	}
	router.AddNoPublisherHandler(
		"job_completed_handler",
		TopicCompleted,
		s.pubsub,
		s.handleCompleted,
	)
	s.router = router
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start 启动消息路由器并等待其就绪
func (s *PubSubScheduler) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.router.Run(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("消息路由器退出")
		}
	}()

	select {
	case <-s.router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭路由器和消息总线
func (s *PubSubScheduler) Close() error {
	if err := s.router.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("关闭路由器失败")
	}
	s.cancel()
	s.wg.Wait()
	s.finished.Close()
	return s.pubsub.Close()
}

// PubSub 返回底层消息总线，供QueueWorker订阅
func (s *PubSubScheduler) PubSub() PubSub {
	return s.pubsub
}

// Submit 发布作业到队列主题并返回作业ID
func (s *PubSubScheduler) Submit(ctx context.Context, spec runner.JobSpec) (string, error) {
	if spec.QueueName == "" {
		spec.QueueName = runner.DefaultQueueName
	}
	jobID := uuid.NewString()
	payload, err := json.Marshal(JobEnvelope{JobID: jobID, Spec: spec, SubmittedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("序列化作业失败: %w", err)
	}

	s.mu.Lock()
	if s.inProcess && s.workers[spec.QueueName] == 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("提交到队列 %s 失败: %w", spec.QueueName, ErrNoWorker)
	}
	s.jobs[jobID] = &jobRecord{spec: spec, status: StatusSubmitted}
	s.load[spec.QueueName] += spec.LoadWeight
	s.mu.Unlock()

	msg := message.NewMessage(jobID, payload)
	msg.Metadata.Set("queue", spec.QueueName)
	msg.Metadata.Set("instance_id", spec.InstanceID)
	msg.SetContext(ctx)

	if err := s.pubsub.Publish(TopicForQueue(spec.QueueName), msg); err != nil {
		s.mu.Lock()
		if rec, ok := s.jobs[jobID]; ok {
			delete(s.jobs, jobID)
			s.load[spec.QueueName] -= rec.spec.LoadWeight
		}
		s.mu.Unlock()
		return "", fmt.Errorf("发布作业失败: %w", err)
	}
	s.logger.Debug().Str("job_id", jobID).Str("queue", spec.QueueName).Msg("作业已发布")
	return jobID, nil
}

// Status 查询作业状态
func (s *PubSubScheduler) Status(jobID string) (JobStatus, bool) {
	s.mu.RLock()
	var status JobStatus
	rec, ok := s.jobs[jobID]
	if ok {
		status = rec.status
	}
	s.mu.RUnlock()
	if ok {
		return status, true
	}
	if rec, ok := s.finished.Get(jobID); ok {
		return rec.status, true
	}
	return "", false
}

// IsComplete 作业是否已结束（成功、失败或被终止）
func (s *PubSubScheduler) IsComplete(ctx context.Context, jobID string) (bool, error) {
	status, ok := s.Status(jobID)
	if !ok {
		return false, fmt.Errorf("作业 %s 不存在", jobID)
	}
	return status.Terminal(), nil
}

// Kill 标记作业为终止并广播终止事件，已结束的作业返回false
func (s *PubSubScheduler) Kill(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.finishLocked(jobID, rec, StatusKilled, "")
	s.mu.Unlock()

	payload, err := json.Marshal(KillEvent{JobID: jobID})
	if err != nil {
		return false, fmt.Errorf("序列化终止事件失败: %w", err)
	}
	if err := s.pubsub.Publish(TopicKill, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return true, fmt.Errorf("发布终止事件失败: %w", err)
	}
	return true, nil
}

// HasCapacity 队列未结束作业的负载加上weight不超过上限时为true
func (s *PubSubScheduler) HasCapacity(queue string, weight int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.capacity[queue]
	if !ok {
		return true
	}
	return s.load[queue]+weight <= limit
}

// attachWorker 登记队列上的worker，由QueueWorker在订阅成功后调用
func (s *PubSubScheduler) attachWorker(queue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[queue]++
}

func (s *PubSubScheduler) detachWorker(queue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[queue] > 0 {
		s.workers[queue]--
	}
}

// finishLocked 将作业转为终态，释放队列负载并移入终态记录
func (s *PubSubScheduler) finishLocked(jobID string, rec *jobRecord, status JobStatus, errMsg string) {
	rec.status = status
	rec.err = errMsg
	delete(s.jobs, jobID)
	s.load[rec.spec.QueueName] -= rec.spec.LoadWeight
	if s.load[rec.spec.QueueName] <= 0 {
		delete(s.load, rec.spec.QueueName)
	}
	s.finished.Set(jobID, rec)
}

func (s *PubSubScheduler) handleCompleted(msg *message.Message) error {
	var ev CompletionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		s.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("丢弃无法解析的完成事件")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 已终止的作业不在jobs中，其完成事件被忽略
	rec, ok := s.jobs[ev.JobID]
	if !ok {
		return nil
	}
	if ev.Success {
		s.finishLocked(ev.JobID, rec, StatusSucceeded, "")
	} else {
		s.finishLocked(ev.JobID, rec, StatusFailed, ev.Error)
	}
	return nil
}

var (
	_ runner.RemoteScheduler  = (*PubSubScheduler)(nil)
	_ runner.CapacityReporter = (*PubSubScheduler)(nil)
)
