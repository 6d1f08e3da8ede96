package page

import (
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/wengine/pkg/core/instance"
)

// Comparator 比较两个实例，负数表示a排在b之前
type Comparator func(a, b instance.ProcessorStub) int

// 支持的排序名称
const (
	OrderCreationDate   = "CreationDate"
	OrderExecutionDate  = "ExecutionDate"
	OrderCompletionDate = "CompletionDate"
	OrderAliveTime      = "AliveTime"
	OrderTimesBlocked   = "TimesBlocked"
)

// Orderings 所有排序名称
func Orderings() []string {
	return []string{OrderCreationDate, OrderExecutionDate, OrderCompletionDate, OrderAliveTime, OrderTimesBlocked}
}

// ByCreationDate 创建时间升序
func ByCreationDate(a, b instance.ProcessorStub) int {
	return a.Info.CreationDate.Compare(b.Info.CreationDate)
}

// ByExecutionDate 执行时间升序，未开始的排在最前
func ByExecutionDate(a, b instance.ProcessorStub) int {
	return compareOptional(a.Info.ExecutionDate, b.Info.ExecutionDate)
}

// ByCompletionDate 完成时间升序，未完成的排在最前
func ByCompletionDate(a, b instance.ProcessorStub) int {
	return compareOptional(a.Info.CompletionDate, b.Info.CompletionDate)
}

// ByAliveTime 存活时长升序，未完成的按now计算
func ByAliveTime(now func() time.Time) Comparator {
	if now == nil {
		now = time.Now
	}
	return func(a, b instance.ProcessorStub) int {
		t := now()
		da, db := a.Info.AliveTime(t), b.Info.AliveTime(t)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	}
}

// ByTimesBlocked 被推迟次数降序
func ByTimesBlocked(a, b instance.ProcessorStub) int {
	return b.TimesBlocked - a.TimesBlocked
}

// Reverse 反转排序
func Reverse(cmp Comparator) Comparator {
	return func(a, b instance.ProcessorStub) int {
		return cmp(b, a)
	}
}

// ParseOrdering 按名称（不区分大小写）返回比较器，空名称返回nil
func ParseOrdering(name string, now func() time.Time) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case strings.ToLower(OrderCreationDate):
		return ByCreationDate, nil
	case strings.ToLower(OrderExecutionDate):
		return ByExecutionDate, nil
	case strings.ToLower(OrderCompletionDate):
		return ByCompletionDate, nil
	case strings.ToLower(OrderAliveTime):
		return ByAliveTime(now), nil
	case strings.ToLower(OrderTimesBlocked):
		return ByTimesBlocked, nil
	default:
		return nil, fmt.Errorf("不支持的排序: %q（可选: %s）", name, strings.Join(Orderings(), ", "))
	}
}

// compareOptional nil 排在任何已设置的时间之前
func compareOptional(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}
