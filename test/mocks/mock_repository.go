package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LENAX/wengine/pkg/core/instance"
)

// MockInstanceRepository 模拟instance.Repository，支持模拟各种故障场景
type MockInstanceRepository struct {
	mu               sync.RWMutex
	instances        map[string]instance.ProcessorStub
	shouldFailInsert bool
	shouldFailUpdate bool
	failCount        int
	currentFailCount int
	insertCalls      int
	updateCalls      int
	nextID           int
	persisted        chan string
}

// NewMockInstanceRepository 创建MockInstanceRepository
func NewMockInstanceRepository() *MockInstanceRepository {
	return &MockInstanceRepository{
		instances: make(map[string]instance.ProcessorStub),
		persisted: make(chan string, 1024),
	}
}

// SetShouldFailInsert 设置插入操作是否失败
func (m *MockInstanceRepository) SetShouldFailInsert(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailInsert = shouldFail
}

// SetShouldFailUpdate 设置更新操作是否失败
func (m *MockInstanceRepository) SetShouldFailUpdate(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailUpdate = shouldFail
}

// SetFailCount 设置前count次调用失败（用于模拟部分失败）
func (m *MockInstanceRepository) SetFailCount(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = count
	m.currentFailCount = 0
}

// Insert 分配ID并保存快照
func (m *MockInstanceRepository) Insert(ctx context.Context, inst *instance.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	defer m.notify(inst)

	if m.shouldFailInsert {
		return errors.New("模拟存储故障：插入失败")
	}
	if err := m.partialFailLocked(); err != nil {
		return err
	}

	m.nextID++
	id := fmt.Sprintf("inst-%04d", m.nextID)
	inst.SetID(id)
	m.instances[id] = inst.Stub()
	return nil
}

// Update 覆盖已有快照
func (m *MockInstanceRepository) Update(ctx context.Context, inst *instance.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	defer m.notify(inst)

	if m.shouldFailUpdate {
		return errors.New("模拟存储故障：更新失败")
	}
	if err := m.partialFailLocked(); err != nil {
		return err
	}
	if _, ok := m.instances[inst.ID()]; !ok {
		return fmt.Errorf("实例 %s 不存在", inst.ID())
	}
	m.instances[inst.ID()] = inst.Stub()
	return nil
}

func (m *MockInstanceRepository) partialFailLocked() error {
	if m.failCount > 0 && m.currentFailCount < m.failCount {
		m.currentFailCount++
		return fmt.Errorf("模拟部分失败：第%d次失败", m.currentFailCount)
	}
	return nil
}

func (m *MockInstanceRepository) notify(inst *instance.TaskInstance) {
	select {
	case m.persisted <- inst.TaskName():
	default:
	}
}

// Persisted 每次Insert/Update调用（无论成败）后收到任务名
func (m *MockInstanceRepository) Persisted() <-chan string {
	return m.persisted
}

// Calls 返回Insert和Update的调用次数
func (m *MockInstanceRepository) Calls() (inserts, updates int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.insertCalls, m.updateCalls
}

// Get 获取已保存的快照
func (m *MockInstanceRepository) Get(id string) (instance.ProcessorStub, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stub, ok := m.instances[id]
	return stub, ok
}

// Count 已保存的实例数
func (m *MockInstanceRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

var _ instance.Repository = (*MockInstanceRepository)(nil)
