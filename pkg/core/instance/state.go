// Package instance 定义任务实例、生命周期状态及其与属性桶之间的转换（对外导出）
package instance

import (
	"fmt"
	"strings"
)

// Category 状态类别
type Category string

const (
	CategoryRunning    Category = "RUNNING"
	CategoryWaiting    Category = "WAITING"
	CategoryTransition Category = "TRANSITION"
	CategoryDone       Category = "DONE"
	CategoryHolding    Category = "HOLDING"
)

// ParseCategory 解析类别名称（不区分大小写）
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryRunning, CategoryWaiting, CategoryTransition, CategoryDone, CategoryHolding:
		return c, nil
	default:
		return "", fmt.Errorf("未知的状态类别: %q", s)
	}
}

// WorkflowState 实例状态
type WorkflowState struct {
	Category Category
	Name     string
	Message  string
}

// 运行器驱动的状态机：Pending -> Executing -> ExecutionComplete | Failure
var (
	Pending           = WorkflowState{Category: CategoryWaiting, Name: "Pending", Message: "等待执行"}
	Executing         = WorkflowState{Category: CategoryRunning, Name: "Executing", Message: "正在执行"}
	ExecutionComplete = WorkflowState{Category: CategoryDone, Name: "ExecutionComplete", Message: "执行完成"}
	Failure           = WorkflowState{Category: CategoryDone, Name: "Failure"}
)

var knownStates = []WorkflowState{Pending, Executing, ExecutionComplete, Failure}

// StateByName 按名称查找内置状态
func StateByName(name string) (WorkflowState, bool) {
	for _, s := range knownStates {
		if s.Name == name {
			return s, true
		}
	}
	return WorkflowState{}, false
}

// WithMessage 返回带新消息的状态副本
func (s WorkflowState) WithMessage(msg string) WorkflowState {
	s.Message = msg
	return s
}

// Terminal 是否终态
func (s WorkflowState) Terminal() bool {
	return s.Category == CategoryDone
}

// Is 按名称比较，忽略消息
func (s WorkflowState) Is(other WorkflowState) bool {
	return s.Name == other.Name
}

func (s WorkflowState) String() string {
	if s.Message == "" {
		return fmt.Sprintf("%s(%s)", s.Name, s.Category)
	}
	return fmt.Sprintf("%s(%s): %s", s.Name, s.Category, s.Message)
}
