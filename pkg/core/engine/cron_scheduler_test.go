package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	mu        sync.Mutex
	open      bool
	execErr   error
	submitted []*instance.TaskInstance
}

func (r *stubRunner) Execute(ctx context.Context, inst *instance.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.execErr != nil {
		return r.execErr
	}
	r.submitted = append(r.submitted, inst)
	return nil
}

func (r *stubRunner) HasOpenSlots(*instance.TaskInstance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *stubRunner) setOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = open
}

func (r *stubRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted)
}

func (r *stubRunner) Shutdown() error { return nil }
func (r *stubRunner) Bind(instance.Repository) {}

var _ runner.EngineRunner = (*stubRunner)(nil)

var created = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newScheduler(r runner.EngineRunner, m *metrics.Metrics) *CronScheduler {
	return NewCronScheduler(r,
		WithSchedulerMetrics(m),
		WithSchedulerClock(func() time.Time { return created }),
	)
}

func TestCronScheduler_RegisterValidation(t *testing.T) {
	cs := newScheduler(&stubRunner{open: true}, nil)

	assert.Error(t, cs.RegisterJob(JobDefinition{Name: "", Cron: "@every 1m", Body: "noop"}))
	assert.Error(t, cs.RegisterJob(JobDefinition{Name: "a", Cron: "@every 1m"}))
	assert.Error(t, cs.RegisterJob(JobDefinition{Name: "a", Cron: "not a cron", Body: "noop"}))

	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "a", Cron: "0 */5 * * * *", Body: "noop"}))
	assert.Error(t, cs.RegisterJob(JobDefinition{Name: "a", Cron: "@every 1m", Body: "noop"}))
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "b", Cron: "@hourly", Body: "noop"}))
	assert.Equal(t, []string{"a", "b"}, cs.Jobs())

	require.NoError(t, cs.UnregisterJob("a"))
	assert.Error(t, cs.UnregisterJob("a"))
	assert.Equal(t, []string{"b"}, cs.Jobs())

	_, err := cs.Trigger("a")
	assert.Error(t, err)
}

func TestCronScheduler_TriggerBuildsInstance(t *testing.T) {
	r := &stubRunner{open: true}
	m := metrics.New()
	cs := newScheduler(r, m)
	require.NoError(t, cs.RegisterJob(JobDefinition{
		Name:       "nightly",
		Cron:       "@daily",
		ModelID:    "etl",
		Body:       "noop",
		Config:     map[string][]string{"Product": {"p1"}},
		LoadWeight: 3,
	}))

	outcome, err := cs.Trigger("nightly")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	require.Equal(t, 1, r.count())

	inst := r.submitted[0]
	assert.Equal(t, "etl", inst.ModelID())
	assert.Equal(t, "nightly", inst.TaskName())
	assert.Equal(t, "noop", inst.BodyName())
	assert.Equal(t, 3, inst.LoadWeight())
	assert.Equal(t, []string{"p1"}, inst.Config()["Product"])
	assert.Equal(t, created, inst.Info().CreationDate)
	assert.True(t, inst.State().Is(instance.Pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerTriggersTotal.WithLabelValues("nightly", OutcomeSubmitted)))

	// 每次触发都是新实例
	_, err = cs.Trigger("nightly")
	require.NoError(t, err)
	require.Equal(t, 2, r.count())
	assert.NotSame(t, r.submitted[0], r.submitted[1])
}

func TestCronScheduler_BlockedInstanceIsRetried(t *testing.T) {
	r := &stubRunner{open: false}
	m := metrics.New()
	cs := newScheduler(r, m)
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "j", Cron: "@hourly", Body: "noop"}))

	for i := 0; i < 2; i++ {
		outcome, err := cs.Trigger("j")
		require.NoError(t, err)
		assert.Equal(t, OutcomeBlocked, outcome)
	}
	assert.Equal(t, 0, r.count())

	r.setOpen(true)
	outcome, err := cs.Trigger("j")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, outcome)
	require.Equal(t, 1, r.count())
	assert.Equal(t, 2, r.submitted[0].TimesBlocked())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerTriggersTotal.WithLabelValues("j", OutcomeBlocked)))

	// 提交后下一次触发重新创建实例
	_, err = cs.Trigger("j")
	require.NoError(t, err)
	assert.Equal(t, 0, r.submitted[1].TimesBlocked())
}

func TestCronScheduler_ExecuteErrors(t *testing.T) {
	r := &stubRunner{open: true, execErr: runner.ErrNoOpenSlots}
	cs := newScheduler(r, nil)
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "j", Cron: "@hourly", Body: "noop"}))

	outcome, err := cs.Trigger("j")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, outcome)

	r.mu.Lock()
	r.execErr = runner.ErrRunnerShutdown
	r.mu.Unlock()
	outcome, err = cs.Trigger("j")
	assert.True(t, errors.Is(err, runner.ErrRunnerShutdown))
	assert.Equal(t, OutcomeError, outcome)
}

func TestCronScheduler_FiresOnSchedule(t *testing.T) {
	r := &stubRunner{open: true}
	cs := newScheduler(r, nil)
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "tick", Cron: "* * * * * *", Body: "noop"}))

	cs.Start()
	defer cs.Stop()

	assert.Eventually(t, func() bool { return r.count() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

// gatedRunner 对名为 slow 的任务阻塞提交，直到release关闭
type gatedRunner struct {
	stubRunner
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRunner) Execute(ctx context.Context, inst *instance.TaskInstance) error {
	if inst.TaskName() == "slow" {
		close(r.entered)
		<-r.release
	}
	return r.stubRunner.Execute(ctx, inst)
}

func TestCronScheduler_SlowSubmitDoesNotBlockOtherJobs(t *testing.T) {
	r := &gatedRunner{stubRunner: stubRunner{open: true}, entered: make(chan struct{}), release: make(chan struct{})}
	cs := newScheduler(r, nil)
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "slow", Cron: "@hourly", Body: "noop"}))
	require.NoError(t, cs.RegisterJob(JobDefinition{Name: "fast", Cron: "@hourly", Body: "noop"}))

	slowDone := make(chan string, 1)
	go func() {
		outcome, _ := cs.Trigger("slow")
		slowDone <- outcome
	}()
	<-r.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		outcome, err := cs.Trigger("fast")
		assert.NoError(t, err)
		assert.Equal(t, OutcomeSubmitted, outcome)
		assert.NoError(t, cs.RegisterJob(JobDefinition{Name: "late", Cron: "@hourly", Body: "noop"}))
		assert.NoError(t, cs.UnregisterJob("late"))
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("other jobs were blocked by a slow submit")
	}

	close(r.release)
	assert.Equal(t, OutcomeSubmitted, <-slowDone)
	assert.Equal(t, 2, r.count())
}
