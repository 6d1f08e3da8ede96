package runner

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/rs/zerolog"
)

const (
	// KindLocal 本地运行器
	KindLocal = "local"
	// KindRemote 远程运行器
	KindRemote = "remote"
)

// Settings 运行器配置
type Settings struct {
	PoolSize         int
	AdmissionControl bool
	QueueSize        int
	PersistMode      PersistMode
	ShutdownGrace    time.Duration
	QueueName        string
}

// Deps 构造运行器所需的依赖
type Deps struct {
	Registry  *task.Registry
	Scheduler RemoteScheduler
	Repo      instance.Repository
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Settings  Settings
}

// Constructor 运行器构造函数
type Constructor func(Deps) (EngineRunner, error)

// Factory 运行器类型到构造函数的映射表，启动时构建一次
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewFactory 创建包含 local 和 remote 的工厂
func NewFactory() *Factory {
	f := &Factory{ctors: make(map[string]Constructor)}
	f.ctors[KindLocal] = newLocal
	f.ctors[KindRemote] = newRemote
	return f
}

// Register 注册自定义运行器类型
func (f *Factory) Register(kind string, ctor Constructor) error {
	if kind == "" || ctor == nil {
		return fmt.Errorf("运行器类型和构造函数不能为空")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.ctors[kind]; exists {
		return fmt.Errorf("运行器类型 %s 已注册", kind)
	}
	f.ctors[kind] = ctor
	return nil
}

// Kinds 已注册的运行器类型
func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.ctors))
	for k := range f.ctors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build 构造运行器并绑定 deps.Repo
func (f *Factory) Build(kind string, deps Deps) (EngineRunner, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的运行器类型: %q（可选: %v）", kind, f.Kinds())
	}
	r, err := ctor(deps)
	if err != nil {
		return nil, fmt.Errorf("创建%s运行器失败: %w", kind, err)
	}
	if deps.Repo != nil {
		r.Bind(deps.Repo)
	}
	return r, nil
}

func newLocal(d Deps) (EngineRunner, error) {
	if d.Registry == nil {
		return nil, fmt.Errorf("本地运行器需要执行体注册中心")
	}
	opts := []LocalOption{
		WithPoolSize(d.Settings.PoolSize),
		WithPersistMode(d.Settings.PersistMode),
		WithShutdownGrace(d.Settings.ShutdownGrace),
		WithLocalLogger(d.Logger),
		WithLocalMetrics(d.Metrics),
	}
	if d.Settings.AdmissionControl {
		opts = append(opts, WithAdmissionControl(d.Settings.QueueSize))
	}
	return NewLocalAsyncRunner(d.Registry, opts...), nil
}

func newRemote(d Deps) (EngineRunner, error) {
	if d.Scheduler == nil {
		return nil, fmt.Errorf("远程运行器需要外部调度器")
	}
	return NewRemoteDelegatingRunner(d.Scheduler,
		WithQueueName(d.Settings.QueueName),
		WithRemoteLogger(d.Logger),
		WithRemoteMetrics(d.Metrics),
	), nil
}
