package task

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterResolve(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.RegisterFunc("hello", func(ctx context.Context, ec *ExecutionContext, cfg Config) error {
		called = true
		return nil
	}))

	body, err := r.Resolve("hello")
	require.NoError(t, err)
	require.NoError(t, body.Run(context.Background(), NewExecutionContext(nil), nil))
	assert.True(t, called)

	assert.Error(t, r.RegisterFunc("hello", func(context.Context, *ExecutionContext, Config) error { return nil }))
	assert.Error(t, r.Register("", BodyFunc(noop)))
	assert.Error(t, r.Register("nil", nil))

	_, err = r.Resolve("missing")
	assert.True(t, errors.Is(err, ErrBodyNotFound))

	r.Unregister("hello")
	_, err = r.Resolve("hello")
	assert.ErrorIs(t, err, ErrBodyNotFound)
}

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	assert.Equal(t, []string{BodyExec, BodyNoop, BodySleep}, r.Names())

	// 重复注册失败
	assert.Error(t, RegisterBuiltins(r))
}

func TestBuiltin_Sleep(t *testing.T) {
	ec := NewExecutionContext(nil)
	require.NoError(t, sleep(context.Background(), ec, Config{ConfigDuration: {"1ms"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleep(ctx, ec, Config{ConfigDuration: {"1h"}})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Error(t, sleep(context.Background(), ec, Config{}))
}

func TestBuiltin_Exec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	ec := NewExecutionContext(nil)
	ctx := WithInstanceID(context.Background(), "inst-1")

	err := runCommand(ctx, ec, Config{
		ConfigCommand: {"sh"},
		ConfigArgs:    {"-c", "echo $WENGINE_INSTANCE_ID"},
	})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", ec.GetString(OutputKey))

	err = runCommand(ctx, ec, Config{
		ConfigCommand: {"sh"},
		ConfigArgs:    {"-c", "echo broken >&2; exit 3"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.Error(t, runCommand(ctx, ec, Config{}))
}

func TestExecutionContext_Concurrent(t *testing.T) {
	ec := NewExecutionContext(map[string][]string{"seed": {"1"}})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ec.Add("visits", "x")
			_ = ec.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, ec.Get("visits"), 20)
	assert.Equal(t, []string{"seed", "visits"}, ec.Keys())

	n, err := ec.GetInt("seed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ec.GetInt("missing")
	assert.Error(t, err)

	snap := ec.Snapshot()
	snap["seed"][0] = "changed"
	assert.Equal(t, "1", ec.GetString("seed"))
}

func TestContextKeys(t *testing.T) {
	ctx := WithModelID(WithTaskName(WithInstanceID(context.Background(), "i"), "t"), "m")
	assert.Equal(t, "i", GetInstanceID(ctx))
	assert.Equal(t, "t", GetTaskName(ctx))
	assert.Equal(t, "m", GetModelID(ctx))
	assert.Equal(t, "", GetInstanceID(context.Background()))
}

func TestConfig_FirstAndKeys(t *testing.T) {
	cfg := Config{"b": {"2", "3"}, "a": {"1"}, "empty": nil}
	assert.Equal(t, "2", cfg.First("b"))
	assert.Equal(t, "", cfg.First("empty"))
	assert.Equal(t, "", cfg.First("missing"))
	assert.Equal(t, []string{"a", "b", "empty"}, cfg.Keys())
}
