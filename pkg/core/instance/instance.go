package instance

import (
	"context"
	"sync"
	"time"

	"github.com/LENAX/wengine/pkg/core/task"
)

// Repository 实例持久化协作者
// 不同实例上的 Insert/Update 可能被多个worker并发调用，实现必须各自保证安全
type Repository interface {
	// Insert 首次保存实例，成功后实例获得ID
	Insert(ctx context.Context, inst *TaskInstance) error
	// Update 保存已有ID的实例
	Update(ctx context.Context, inst *TaskInstance) error
}

// Spec 创建实例所需的静态信息
type Spec struct {
	ModelID    string
	TaskName   string
	Body       string
	Config     task.Config
	Context    *task.ExecutionContext
	LoadWeight int
	CreatedAt  time.Time
}

// TaskInstance 一次任务执行的可变记录，可被多个goroutine同时访问
type TaskInstance struct {
	mu           sync.RWMutex
	id           string
	modelID      string
	taskName     string
	body         string
	config       task.Config
	ec           *task.ExecutionContext
	loadWeight   int
	state        WorkflowState
	info         ProcessorInfo
	timesBlocked int
}

// New 创建处于Pending状态、尚未分配ID的实例
func New(spec Spec) *TaskInstance {
	created := spec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	ec := spec.Context
	if ec == nil {
		ec = task.NewExecutionContext(nil)
	}
	weight := spec.LoadWeight
	if weight <= 0 {
		weight = 1
	}
	return &TaskInstance{
		modelID:    spec.ModelID,
		taskName:   spec.TaskName,
		body:       spec.Body,
		config:     copyConfig(spec.Config),
		ec:         ec,
		loadWeight: weight,
		state:      Pending,
		info:       ProcessorInfo{CreationDate: created.UTC().Truncate(time.Millisecond)},
	}
}

// ID 实例ID，未持久化时为空
func (t *TaskInstance) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// SetID 设置实例ID（由Repository调用）
func (t *TaskInstance) SetID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = id
}

// ModelID 所属工作流模型
func (t *TaskInstance) ModelID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.modelID
}

// TaskName 任务名称
func (t *TaskInstance) TaskName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.taskName
}

// BodyName 执行体名称
func (t *TaskInstance) BodyName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.body
}

// Config 返回配置副本
func (t *TaskInstance) Config() task.Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyConfig(t.config)
}

// Context 共享执行上下文
func (t *TaskInstance) Context() *task.ExecutionContext {
	return t.ec
}

// LoadWeight 相对负载权重
func (t *TaskInstance) LoadWeight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loadWeight
}

// State 当前状态
func (t *TaskInstance) State() WorkflowState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Info 生命周期时间点副本
func (t *TaskInstance) Info() ProcessorInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.clone()
}

// TimesBlocked 因无空闲槽位被推迟的次数
func (t *TaskInstance) TimesBlocked() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timesBlocked
}

// MarkBlocked 记录一次推迟
func (t *TaskInstance) MarkBlocked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timesBlocked++
	return t.timesBlocked
}

// Transition 切换状态并记录时间点
// 进入RUNNING类别时设置执行时间（仅首次），进入DONE类别时设置完成时间
func (t *TaskInstance) Transition(s WorkflowState, at time.Time) {
	at = at.UTC().Truncate(time.Millisecond)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	switch s.Category {
	case CategoryRunning:
		if t.info.ExecutionDate == nil {
			t.info.ExecutionDate = &at
		}
	case CategoryDone:
		t.info.CompletionDate = &at
	}
}

// Stub 当前快照的轻量视图
func (t *TaskInstance) Stub() ProcessorStub {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ProcessorStub{
		InstanceID:   t.id,
		ModelID:      t.modelID,
		TaskName:     t.taskName,
		State:        t.state,
		Info:         t.info.clone(),
		TimesBlocked: t.timesBlocked,
	}
}

func copyConfig(c task.Config) task.Config {
	out := make(task.Config, len(c))
	for k, v := range c {
		out[k] = append([]string(nil), v...)
	}
	return out
}
