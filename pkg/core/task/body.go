// Package task 定义任务执行体、执行体注册中心和共享执行上下文（对外导出）
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrBodyNotFound 执行体未注册
var ErrBodyNotFound = errors.New("任务执行体未注册")

// Config 任务的静态配置，键对应多值
type Config map[string][]string

// First 返回键的第一个值
func (c Config) First(key string) string {
	if vals := c[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Keys 返回所有键（排序）
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Body 任务执行体
// 返回错误或panic都会使实例进入Failure状态；应自行检查ctx以响应中断
type Body interface {
	Run(ctx context.Context, ec *ExecutionContext, cfg Config) error
}

// BodyFunc 函数适配器
type BodyFunc func(ctx context.Context, ec *ExecutionContext, cfg Config) error

// Run 调用函数本身
func (f BodyFunc) Run(ctx context.Context, ec *ExecutionContext, cfg Config) error {
	return f(ctx, ec, cfg)
}

// Registry 执行体注册中心（对外导出）
// 启动时构造一次并显式传给运行器，不使用包级全局变量
type Registry struct {
	mu     sync.RWMutex
	bodies map[string]Body
}

// NewRegistry 创建注册中心
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]Body)}
}

// Register 注册执行体，同名重复注册返回错误
func (r *Registry) Register(name string, body Body) error {
	if name == "" {
		return fmt.Errorf("执行体名称不能为空")
	}
	if body == nil {
		return fmt.Errorf("执行体 %s 不能为空", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bodies[name]; exists {
		return fmt.Errorf("执行体 %s 已注册", name)
	}
	r.bodies[name] = body
	return nil
}

// RegisterFunc 注册函数形式的执行体
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, ec *ExecutionContext, cfg Config) error) error {
	if fn == nil {
		return fmt.Errorf("执行体 %s 不能为空", name)
	}
	return r.Register(name, BodyFunc(fn))
}

// Unregister 注销执行体
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bodies, name)
}

// Resolve 按名称查找执行体
func (r *Registry) Resolve(name string) (Body, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.bodies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBodyNotFound, name)
	}
	return body, nil
}

// Names 返回所有已注册名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bodies))
	for name := range r.bodies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
