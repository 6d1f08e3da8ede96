package task

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// ExecutionContext 同一工作流实例内任务共享的元数据（对外导出）
// 可被多个worker并发读写
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string][]string
}

// NewExecutionContext 创建共享上下文，initial会被复制
func NewExecutionContext(initial map[string][]string) *ExecutionContext {
	ec := &ExecutionContext{values: make(map[string][]string, len(initial))}
	for k, v := range initial {
		ec.values[k] = append([]string(nil), v...)
	}
	return ec
}

// Get 获取键的所有值
func (ec *ExecutionContext) Get(key string) []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return append([]string(nil), ec.values[key]...)
}

// GetString 获取键的第一个值，不存在时返回空串
func (ec *ExecutionContext) GetString(key string) string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if vals := ec.values[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// GetInt 获取整数值
func (ec *ExecutionContext) GetInt(key string) (int, error) {
	s := ec.GetString(key)
	if s == "" {
		return 0, fmt.Errorf("参数 %s 不存在", key)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("参数 %s 类型不是整数: %q", key, s)
	}
	return i, nil
}

// Has 判断键是否存在
func (ec *ExecutionContext) Has(key string) bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	_, ok := ec.values[key]
	return ok
}

// Set 覆盖键的值
func (ec *ExecutionContext) Set(key string, values ...string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.values[key] = append([]string(nil), values...)
}

// Add 追加值
func (ec *ExecutionContext) Add(key string, values ...string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.values[key] = append(ec.values[key], values...)
}

// Keys 按字母序返回所有键
func (ec *ExecutionContext) Keys() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	keys := make([]string, 0, len(ec.values))
	for k := range ec.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot 返回当前内容的深拷贝
func (ec *ExecutionContext) Snapshot() map[string][]string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string][]string, len(ec.values))
	for k, v := range ec.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}
