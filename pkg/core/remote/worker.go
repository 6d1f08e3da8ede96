package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Handler 处理一个作业
type Handler func(ctx context.Context, spec runner.JobSpec) error

// BodyHandler 通过执行体注册中心执行作业
func BodyHandler(registry *task.Registry) Handler {
	return func(ctx context.Context, spec runner.JobSpec) error {
		body, err := registry.Resolve(spec.BodyName)
		if err != nil {
			return err
		}
		ctx = task.WithInstanceID(ctx, spec.InstanceID)
		ctx = task.WithTaskName(ctx, spec.Name)
		return body.Run(ctx, task.NewExecutionContext(spec.Context), task.Config(spec.Input))
	}
}

// QueueWorker 订阅一个队列主题，逐个执行作业并发布完成事件
// 已被终止的作业会被跳过，运行中的作业收到终止事件时取消其context
type QueueWorker struct {
	mu      sync.Mutex
	sched   *PubSubScheduler
	queue   string
	handler Handler
	logger  zerolog.Logger

	current       string
	cancelCurrent context.CancelFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueueWorker 创建队列worker
func NewQueueWorker(sched *PubSubScheduler, queue string, handler Handler, logger zerolog.Logger) *QueueWorker {
	if queue == "" {
		queue = runner.DefaultQueueName
	}
	return &QueueWorker{
		sched:   sched,
		queue:   queue,
		handler: handler,
		logger:  logger.With().Str("queue", queue).Logger(),
	}
}

// Start 同步完成订阅后在后台处理消息
func (w *QueueWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	jobs, err := w.sched.PubSub().Subscribe(ctx, TopicForQueue(w.queue))
	if err != nil {
		cancel()
		return fmt.Errorf("订阅队列 %s 失败: %w", w.queue, err)
	}
	kills, err := w.sched.PubSub().Subscribe(ctx, TopicKill)
	if err != nil {
		cancel()
		return fmt.Errorf("订阅终止事件失败: %w", err)
	}
	w.cancel = cancel
	w.sched.attachWorker(w.queue)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		for msg := range jobs {
			w.process(ctx, msg)
			msg.Ack()
		}
	}()
	go func() {
		defer w.wg.Done()
		for msg := range kills {
			w.onKill(msg)
			msg.Ack()
		}
	}()
	return nil
}

// Stop 停止订阅并等待当前作业结束
func (w *QueueWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.sched.detachWorker(w.queue)
	w.cancel()
	w.cancel = nil
	w.wg.Wait()
}

func (w *QueueWorker) process(ctx context.Context, msg *message.Message) {
	var env JobEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		w.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("丢弃无法解析的作业")
		return
	}
	if status, ok := w.sched.Status(env.JobID); ok && status == StatusKilled {
		w.logger.Info().Str("job_id", env.JobID).Msg("作业已被终止，跳过")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.current = env.JobID
	w.cancelCurrent = cancel
	w.mu.Unlock()

	err := w.safeHandle(jobCtx, env.Spec)

	w.mu.Lock()
	w.current = ""
	w.cancelCurrent = nil
	w.mu.Unlock()
	cancel()

	ev := CompletionEvent{JobID: env.JobID, Success: err == nil, FinishedAt: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
		w.logger.Warn().Err(err).Str("job_id", env.JobID).Msg("作业执行失败")
	}
	payload, _ := json.Marshal(ev)
	if perr := w.sched.PubSub().Publish(TopicCompleted, message.NewMessage(env.JobID, payload)); perr != nil {
		w.logger.Error().Err(perr).Str("job_id", env.JobID).Msg("发布完成事件失败")
	}
}

func (w *QueueWorker) safeHandle(ctx context.Context, spec runner.JobSpec) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("作业panic: %v", p)
		}
	}()
	return w.handler(ctx, spec)
}

func (w *QueueWorker) onKill(msg *message.Message) {
	var ev KillEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == ev.JobID && w.cancelCurrent != nil {
		w.cancelCurrent()
		w.logger.Info().Str("job_id", ev.JobID).Msg("已中断运行中的作业")
	}
}
