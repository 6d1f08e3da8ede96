package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LENAX/wengine/pkg/core/runner"
)

// MockRemoteScheduler 模拟外部调度器，支持模拟提交失败和容量不足
type MockRemoteScheduler struct {
	mu               sync.RWMutex
	shouldFailSubmit bool
	capacity         int
	submitted        []runner.JobSpec
	completed        map[string]bool
	killed           map[string]bool
	nextID           int
}

// NewMockRemoteScheduler 创建MockRemoteScheduler
func NewMockRemoteScheduler() *MockRemoteScheduler {
	return &MockRemoteScheduler{
		completed: make(map[string]bool),
		killed:    make(map[string]bool),
	}
}

// SetShouldFailSubmit 设置提交是否失败
func (m *MockRemoteScheduler) SetShouldFailSubmit(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailSubmit = shouldFail
}

// Submit 记录作业并返回作业ID
func (m *MockRemoteScheduler) Submit(ctx context.Context, spec runner.JobSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFailSubmit {
		return "", errors.New("模拟调度器故障：提交失败")
	}
	m.nextID++
	m.submitted = append(m.submitted, spec)
	return fmt.Sprintf("job-%d", m.nextID), nil
}

// Complete 标记作业完成
func (m *MockRemoteScheduler) Complete(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[jobID] = true
}

// IsComplete 作业是否完成
func (m *MockRemoteScheduler) IsComplete(ctx context.Context, jobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed[jobID], nil
}

// Kill 终止作业，已完成的作业返回false
func (m *MockRemoteScheduler) Kill(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed[jobID] {
		return false, nil
	}
	m.killed[jobID] = true
	return true, nil
}

// Killed 作业是否被终止
func (m *MockRemoteScheduler) Killed(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.killed[jobID]
}

// Submitted 已提交的作业
func (m *MockRemoteScheduler) Submitted() []runner.JobSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]runner.JobSpec(nil), m.submitted...)
}

// MockCapacityScheduler 同时实现 runner.CapacityReporter 的调度器
type MockCapacityScheduler struct {
	*MockRemoteScheduler
}

// NewMockCapacityScheduler 创建带容量报告的调度器，capacity为总负载上限
func NewMockCapacityScheduler(capacity int) *MockCapacityScheduler {
	m := NewMockRemoteScheduler()
	m.capacity = capacity
	return &MockCapacityScheduler{MockRemoteScheduler: m}
}

// HasCapacity 已提交的总负载加上weight不超过容量时为true
func (m *MockCapacityScheduler) HasCapacity(queue string, weight int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	used := 0
	for _, s := range m.submitted {
		used += s.LoadWeight
	}
	return used+weight <= m.capacity
}

var (
	_ runner.RemoteScheduler  = (*MockRemoteScheduler)(nil)
	_ runner.CapacityReporter = (*MockCapacityScheduler)(nil)
)
