package task

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// BodyNoop 空执行体
	BodyNoop = "noop"
	// BodyExec 执行外部命令
	BodyExec = "exec"
	// BodySleep 等待指定时长，可被中断
	BodySleep = "sleep"

	// ConfigCommand exec的命令
	ConfigCommand = "Command"
	// ConfigArgs exec的参数
	ConfigArgs = "Args"
	// ConfigDuration sleep时长，time.ParseDuration格式
	ConfigDuration = "Duration"

	// OutputKey exec输出写回共享上下文的键
	OutputKey = "LastOutput"

	maxOutputBytes = 4096
)

// RegisterBuiltins 注册内置执行体
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Body{
		BodyNoop:  BodyFunc(noop),
		BodyExec:  BodyFunc(runCommand),
		BodySleep: BodyFunc(sleep),
	}
	for _, name := range []string{BodyNoop, BodyExec, BodySleep} {
		if err := r.Register(name, builtins[name]); err != nil {
			return err
		}
	}
	return nil
}

func noop(ctx context.Context, _ *ExecutionContext, _ Config) error {
	return ctx.Err()
}

// runCommand 执行 Command Args...，实例信息通过环境变量传入
func runCommand(ctx context.Context, ec *ExecutionContext, cfg Config) error {
	command := cfg.First(ConfigCommand)
	if command == "" {
		return fmt.Errorf("缺少配置 %s", ConfigCommand)
	}

	cmd := exec.CommandContext(ctx, command, cfg[ConfigArgs]...)
	cmd.Env = append(os.Environ(),
		"WENGINE_INSTANCE_ID="+GetInstanceID(ctx),
		"WENGINE_TASK_NAME="+GetTaskName(ctx),
		"WENGINE_MODEL_ID="+GetModelID(ctx),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(tail(out.String(), maxOutputBytes))
	if ec != nil {
		ec.Set(OutputKey, output)
	}
	if err != nil {
		if output != "" {
			return fmt.Errorf("命令 %s 执行失败: %w: %s", command, err, output)
		}
		return fmt.Errorf("命令 %s 执行失败: %w", command, err)
	}
	return nil
}

func sleep(ctx context.Context, _ *ExecutionContext, cfg Config) error {
	d, err := time.ParseDuration(cfg.First(ConfigDuration))
	if err != nil {
		return fmt.Errorf("无效的 %s: %w", ConfigDuration, err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
