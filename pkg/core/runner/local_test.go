package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/LENAX/wengine/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *task.Registry {
	t.Helper()
	r := task.NewRegistry()
	require.NoError(t, task.RegisterBuiltins(r))
	require.NoError(t, r.RegisterFunc("fail", func(ctx context.Context, ec *task.ExecutionContext, cfg task.Config) error {
		return errors.New("disk full")
	}))
	require.NoError(t, r.RegisterFunc("panic", func(ctx context.Context, ec *task.ExecutionContext, cfg task.Config) error {
		panic("unexpected nil")
	}))
	return r
}

func newInstance(name, body string, cfg task.Config) *instance.TaskInstance {
	return instance.New(instance.Spec{ModelID: "m1", TaskName: name, Body: body, Config: cfg})
}

func TestLocalAsyncRunner_CompletesNormally(t *testing.T) {
	repo := mocks.NewMockInstanceRepository()
	r := runner.NewLocalAsyncRunner(newRegistry(t))
	r.Bind(repo)

	inst := newInstance("ok", task.BodyNoop, nil)
	require.NoError(t, r.Execute(context.Background(), inst))
	r.Wait()

	state := inst.State()
	assert.True(t, state.Is(instance.ExecutionComplete))
	assert.NotEmpty(t, state.Message)
	assert.NotNil(t, inst.Info().ExecutionDate)
	assert.NotNil(t, inst.Info().CompletionDate)

	inserts, updates := repo.Calls()
	assert.Equal(t, 1, inserts)
	assert.Equal(t, 0, updates)
	assert.NotEmpty(t, inst.ID())
}

func TestLocalAsyncRunner_FailureIsPersistedOnce(t *testing.T) {
	for _, body := range []string{"fail", "panic", "missing-body"} {
		t.Run(body, func(t *testing.T) {
			repo := mocks.NewMockInstanceRepository()
			r := runner.NewLocalAsyncRunner(newRegistry(t))
			r.Bind(repo)

			inst := newInstance(body, body, nil)
			require.NoError(t, r.Execute(context.Background(), inst))
			r.Wait()

			state := inst.State()
			assert.True(t, state.Is(instance.Failure))
			assert.Equal(t, instance.CategoryDone, state.Category)
			assert.NotEmpty(t, state.Message)

			inserts, updates := repo.Calls()
			assert.Equal(t, 1, inserts+updates)
		})
	}
}

func TestLocalAsyncRunner_UpdatesWhenIDAssigned(t *testing.T) {
	repo := mocks.NewMockInstanceRepository()
	inst := newInstance("again", task.BodyNoop, nil)
	require.NoError(t, repo.Insert(context.Background(), inst))

	r := runner.NewLocalAsyncRunner(newRegistry(t))
	r.Bind(repo)
	require.NoError(t, r.Execute(context.Background(), inst))
	r.Wait()

	inserts, updates := repo.Calls()
	assert.Equal(t, 1, inserts)
	assert.Equal(t, 1, updates)
	stub, ok := repo.Get(inst.ID())
	require.True(t, ok)
	assert.True(t, stub.State.Is(instance.ExecutionComplete))
}

func TestLocalAsyncRunner_BestEffortSwallowsPersistFailure(t *testing.T) {
	repo := mocks.NewMockInstanceRepository()
	repo.SetShouldFailInsert(true)
	r := runner.NewLocalAsyncRunner(newRegistry(t))
	r.Bind(repo)

	require.NoError(t, r.Execute(context.Background(), newInstance("a", task.BodyNoop, nil)))
	r.Wait()
	require.NoError(t, r.Execute(context.Background(), newInstance("b", task.BodyNoop, nil)))
	r.Wait()
	assert.NoError(t, r.Shutdown())
}

func TestLocalAsyncRunner_FailFastLatchesPersistFailure(t *testing.T) {
	repo := mocks.NewMockInstanceRepository()
	repo.SetShouldFailInsert(true)
	r := runner.NewLocalAsyncRunner(newRegistry(t), runner.WithPersistMode(runner.FailFast))
	r.Bind(repo)

	require.NoError(t, r.Execute(context.Background(), newInstance("a", task.BodyNoop, nil)))
	r.Wait()

	err := r.Execute(context.Background(), newInstance("b", task.BodyNoop, nil))
	var w *runner.PersistenceWarning
	require.ErrorAs(t, err, &w)

	assert.ErrorAs(t, r.Shutdown(), &w)
}

func TestLocalAsyncRunner_PoolBoundsConcurrency(t *testing.T) {
	var current, peak int32
	reg := task.NewRegistry()
	release := make(chan struct{})
	require.NoError(t, reg.RegisterFunc("block", func(ctx context.Context, ec *task.ExecutionContext, cfg task.Config) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&current, -1)
		return nil
	}))

	repo := mocks.NewMockInstanceRepository()
	r := runner.NewLocalAsyncRunner(reg, runner.WithPoolSize(2))
	r.Bind(repo)
	assert.Equal(t, 2, r.Capacity())

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Execute(context.Background(), newInstance("block", "block", nil)))
	}
	assert.Eventually(t, func() bool {
		queued, running := r.Stats()
		return running == 2 && queued == 3
	}, 2*time.Second, 5*time.Millisecond)

	// 未开启准入控制时始终可提交
	assert.True(t, r.HasOpenSlots(nil))

	close(release)
	r.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 5, repo.Count())
}

func TestLocalAsyncRunner_AdmissionControl(t *testing.T) {
	reg := task.NewRegistry()
	release := make(chan struct{})
	require.NoError(t, reg.RegisterFunc("block", func(ctx context.Context, ec *task.ExecutionContext, cfg task.Config) error {
		<-release
		return nil
	}))

	r := runner.NewLocalAsyncRunner(reg, runner.WithPoolSize(1), runner.WithAdmissionControl(1))
	r.Bind(mocks.NewMockInstanceRepository())

	require.NoError(t, r.Execute(context.Background(), newInstance("a", "block", nil)))
	require.NoError(t, r.Execute(context.Background(), newInstance("b", "block", nil)))
	assert.False(t, r.HasOpenSlots(nil))
	assert.ErrorIs(t, r.Execute(context.Background(), newInstance("c", "block", nil)), runner.ErrNoOpenSlots)

	close(release)
	r.Wait()
	assert.True(t, r.HasOpenSlots(nil))
}

func TestLocalAsyncRunner_ShutdownInterruptsAndCancelsQueued(t *testing.T) {
	repo := mocks.NewMockInstanceRepository()
	r := runner.NewLocalAsyncRunner(newRegistry(t), runner.WithPoolSize(1), runner.WithShutdownGrace(5*time.Second))
	r.Bind(repo)

	running := newInstance("long", task.BodySleep, task.Config{task.ConfigDuration: {"1h"}})
	queued := newInstance("queued", task.BodyNoop, nil)
	require.NoError(t, r.Execute(context.Background(), running))
	assert.Eventually(t, func() bool {
		_, n := r.Stats()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Execute(context.Background(), queued))

	require.NoError(t, r.Shutdown())

	assert.True(t, running.State().Is(instance.Failure))
	assert.True(t, queued.State().Is(instance.Failure))
	assert.Equal(t, 2, repo.Count())

	assert.ErrorIs(t, r.Execute(context.Background(), newInstance("late", task.BodyNoop, nil)), runner.ErrRunnerShutdown)
	assert.False(t, r.HasOpenSlots(nil))
}

func TestLocalAsyncRunner_ExecutionContextIsShared(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.RegisterFunc("count", func(ctx context.Context, ec *task.ExecutionContext, cfg task.Config) error {
		ec.Add("visits", task.GetTaskName(ctx))
		return nil
	}))
	shared := task.NewExecutionContext(nil)
	r := runner.NewLocalAsyncRunner(reg)
	r.Bind(mocks.NewMockInstanceRepository())

	for _, name := range []string{"a", "b", "c"} {
		inst := instance.New(instance.Spec{TaskName: name, Body: "count", Context: shared})
		require.NoError(t, r.Execute(context.Background(), inst))
	}
	r.Wait()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, shared.Get("visits"))
}

func TestParsePersistMode(t *testing.T) {
	m, err := runner.ParsePersistMode("fail_fast")
	require.NoError(t, err)
	assert.Equal(t, runner.FailFast, m)

	m, err = runner.ParsePersistMode("")
	require.NoError(t, err)
	assert.Equal(t, runner.BestEffort, m)

	_, err = runner.ParsePersistMode("sometimes")
	assert.Error(t, err)
}
