package instance

import (
	"sort"
	"strconv"
	"time"

	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/LENAX/wengine/pkg/index"
)

// 保留键，其余键视为实例元数据
const (
	KeyModelID        = "ModelId"
	KeyTaskName       = "TaskName"
	KeyTaskBody       = "TaskBody"
	KeyState          = "State"
	KeyStateCategory  = "StateCategory"
	KeyStateMessage   = "StateMessage"
	KeyCreationDate   = index.CreationDate
	KeyExecutionDate  = "ExecutionDate"
	KeyCompletionDate = "CompletionDate"
	KeyTimesBlocked   = "TimesBlocked"
	KeyLoadWeight     = "LoadWeight"
)

var reservedKeys = map[string]bool{
	KeyModelID:        true,
	KeyTaskName:       true,
	KeyTaskBody:       true,
	KeyState:          true,
	KeyStateCategory:  true,
	KeyStateMessage:   true,
	KeyCreationDate:   true,
	KeyExecutionDate:  true,
	KeyCompletionDate: true,
	KeyTimesBlocked:   true,
	KeyLoadWeight:     true,
}

// IsReserved 是否为保留键
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// ToBuckets 将实例快照转换为属性桶
// 配置和共享上下文中与保留键同名的项会被忽略，两者同名时以配置为准
func (t *TaskInstance) ToBuckets() []*query.TermBucket {
	snapshot := t.ec.Snapshot()

	t.mu.RLock()
	defer t.mu.RUnlock()

	b := query.NewTermBucket(index.BucketName,
		query.NewTerm(KeyModelID, t.modelID),
		query.NewTerm(KeyTaskName, t.taskName),
		query.NewTerm(KeyTaskBody, t.body),
		query.NewTerm(KeyState, t.state.Name),
		query.NewTerm(KeyStateCategory, string(t.state.Category)),
		query.NewTerm(KeyCreationDate, index.FormatDate(t.info.CreationDate)),
		query.NewTerm(KeyTimesBlocked, strconv.Itoa(t.timesBlocked)),
		query.NewTerm(KeyLoadWeight, strconv.Itoa(t.loadWeight)),
	)
	if t.state.Message != "" {
		b.AddTerm(query.NewTerm(KeyStateMessage, t.state.Message))
	}
	if t.info.ExecutionDate != nil {
		b.AddTerm(query.NewTerm(KeyExecutionDate, index.FormatDate(*t.info.ExecutionDate)))
	}
	if t.info.CompletionDate != nil {
		b.AddTerm(query.NewTerm(KeyCompletionDate, index.FormatDate(*t.info.CompletionDate)))
	}
	seen := make(map[string]bool)
	for _, src := range []map[string][]string{t.config, snapshot} {
		for _, k := range sortedKeys(src) {
			if IsReserved(k) || seen[k] {
				continue
			}
			seen[k] = true
			b.AddTerm(query.NewTerm(k, src[k]...))
		}
	}
	return []*query.TermBucket{b}
}

// StubFromBucket 从属性桶构造轻量视图
// 桶中缺少CreationDate时使用created（通常取自查询回执）
func StubFromBucket(id string, b *query.TermBucket, created time.Time) ProcessorStub {
	stub := ProcessorStub{
		InstanceID: id,
		ModelID:    first(b, KeyModelID),
		TaskName:   first(b, KeyTaskName),
		State:      stateFromBucket(b),
		Info:       ProcessorInfo{CreationDate: created.UTC()},
	}
	if ts, ok := dateOf(b, KeyCreationDate); ok {
		stub.Info.CreationDate = ts
	}
	if ts, ok := dateOf(b, KeyExecutionDate); ok {
		stub.Info.ExecutionDate = &ts
	}
	if ts, ok := dateOf(b, KeyCompletionDate); ok {
		stub.Info.CompletionDate = &ts
	}
	stub.TimesBlocked, _ = strconv.Atoi(first(b, KeyTimesBlocked))
	return stub
}

// Metadata 返回桶中所有项（含保留键），供元数据过滤使用
func Metadata(b *query.TermBucket) map[string][]string {
	out := make(map[string][]string, b.Len())
	for _, term := range b.Terms() {
		out[term.Name] = append([]string(nil), term.Values...)
	}
	return out
}

// FromBucket 从属性桶重建完整实例
func FromBucket(id string, b *query.TermBucket, created time.Time) *TaskInstance {
	stub := StubFromBucket(id, b, created)
	meta := make(map[string][]string)
	for _, term := range b.Terms() {
		if !IsReserved(term.Name) {
			meta[term.Name] = append([]string(nil), term.Values...)
		}
	}
	weight, _ := strconv.Atoi(first(b, KeyLoadWeight))

	inst := New(Spec{
		ModelID:    stub.ModelID,
		TaskName:   stub.TaskName,
		Body:       first(b, KeyTaskBody),
		Config:     task.Config(meta),
		Context:    task.NewExecutionContext(meta),
		LoadWeight: weight,
		CreatedAt:  stub.Info.CreationDate,
	})
	inst.id = id
	inst.state = stub.State
	inst.info = stub.Info
	inst.timesBlocked = stub.TimesBlocked
	return inst
}

func stateFromBucket(b *query.TermBucket) WorkflowState {
	name := first(b, KeyState)
	state, ok := StateByName(name)
	if !ok {
		state = WorkflowState{Name: name}
	}
	if c := first(b, KeyStateCategory); c != "" {
		state.Category = Category(c)
	}
	state.Message = first(b, KeyStateMessage)
	return state
}

func first(b *query.TermBucket, key string) string {
	term, ok := b.Term(key)
	if !ok {
		return ""
	}
	return term.FirstValue()
}

func dateOf(b *query.TermBucket, key string) (time.Time, bool) {
	s := first(b, key)
	if s == "" {
		return time.Time{}, false
	}
	ts, err := index.ParseDate(s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
