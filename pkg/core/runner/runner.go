// Package runner 定义任务运行器抽象及其本地、远程两种实现（对外导出）
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LENAX/wengine/pkg/core/instance"
)

// EngineRunner 决定任务在哪里执行并负责记录结果
type EngineRunner interface {
	// Execute 提交任务，不等待执行结束
	Execute(ctx context.Context, inst *instance.TaskInstance) error
	// HasOpenSlots 是否还能接收该任务
	HasOpenSlots(inst *instance.TaskInstance) bool
	// Shutdown 停止接收任务并尽力中断运行中的任务
	Shutdown() error
	// Bind 绑定实例持久化协作者
	Bind(repo instance.Repository)
}

var (
	// ErrRunnerShutdown 运行器已关闭
	ErrRunnerShutdown = errors.New("运行器已关闭")
	// ErrNoOpenSlots 开启准入控制时队列已满
	ErrNoOpenSlots = errors.New("运行器没有空闲槽位")
)

// TaskExecutionError 任务执行体返回错误或panic
// 只会被转换为Failure状态，不会传播给调度方
type TaskExecutionError struct {
	InstanceID string
	Body       string
	Panic      any
	Err        error
}

func (e *TaskExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("任务 %s 执行panic: %v", e.Body, e.Panic)
	}
	return fmt.Sprintf("任务 %s 执行失败: %v", e.Body, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// PersistenceWarning 状态切换后持久化失败
type PersistenceWarning struct {
	InstanceID string
	Op         string
	Err        error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("实例 %s %s失败: %v", w.InstanceID, w.Op, w.Err)
}

func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}

// PersistMode 持久化失败的处理方式
type PersistMode int

const (
	// BestEffort 记录日志后忽略
	BestEffort PersistMode = iota
	// FailFast 锁存首个失败，后续Execute和Shutdown返回该错误
	FailFast
)

// ParsePersistMode 解析配置中的持久化模式
func ParsePersistMode(s string) (PersistMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "best-effort", "besteffort":
		return BestEffort, nil
	case "fail_fast", "fail-fast", "failfast":
		return FailFast, nil
	default:
		return BestEffort, fmt.Errorf("未知的持久化模式: %q", s)
	}
}

func (m PersistMode) String() string {
	if m == FailFast {
		return "fail_fast"
	}
	return "best_effort"
}
