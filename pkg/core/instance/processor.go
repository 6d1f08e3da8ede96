package instance

import (
	"time"
)

// ProcessorInfo 生命周期时间点，执行/完成时间在对应事件发生前为nil
type ProcessorInfo struct {
	CreationDate   time.Time
	ExecutionDate  *time.Time
	CompletionDate *time.Time
}

// AliveTime 完成时间（未完成时取now）减去创建时间
func (p ProcessorInfo) AliveTime(now time.Time) time.Duration {
	end := now
	if p.CompletionDate != nil {
		end = *p.CompletionDate
	}
	return end.Sub(p.CreationDate)
}

func (p ProcessorInfo) clone() ProcessorInfo {
	out := ProcessorInfo{CreationDate: p.CreationDate}
	if p.ExecutionDate != nil {
		t := *p.ExecutionDate
		out.ExecutionDate = &t
	}
	if p.CompletionDate != nil {
		t := *p.CompletionDate
		out.CompletionDate = &t
	}
	return out
}

// ProcessorStub 实例的轻量视图，用于分页和过滤
type ProcessorStub struct {
	InstanceID   string
	ModelID      string
	TaskName     string
	State        WorkflowState
	Info         ProcessorInfo
	TimesBlocked int
}
