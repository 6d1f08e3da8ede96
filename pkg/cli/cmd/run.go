package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LENAX/wengine/internal/logger"
	"github.com/LENAX/wengine/pkg/cli/output"
	"github.com/LENAX/wengine/pkg/core/engine"
	"github.com/LENAX/wengine/pkg/core/remote"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		duration   time.Duration
		triggerNow bool
	)
	c := &cobra.Command{
		Use:   "run",
		Short: "启动定时调度器和运行器",
		Long: `按配置文件中的 wengine.scheduler.jobs 注册定时任务，并交给配置的运行器执行。
runner.type=remote 时在进程内启动基于消息总线的调度器和队列worker。
收到 SIGINT/SIGTERM 或超过 --duration 后停止。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			registry := task.NewRegistry()
			if err := task.RegisterBuiltins(registry); err != nil {
				return err
			}
			settings, err := a.cfg.RunnerSettings()
			if err != nil {
				return err
			}
			deps := runner.Deps{
				Registry: registry,
				Repo:     a.repo,
				Logger:   logger.Component(a.logger, "runner"),
				Metrics:  a.metrics,
				Settings: settings,
			}

			kind := a.cfg.Wengine.Runner.Type
			if kind == runner.KindRemote {
				shutdownRemote, err := startRemote(ctx, a, registry, &deps)
				if err != nil {
					return err
				}
				defer shutdownRemote()
			}

			r, err := runner.NewFactory().Build(kind, deps)
			if err != nil {
				return err
			}

			cs := engine.NewCronScheduler(r,
				engine.WithSchedulerLogger(logger.Component(a.logger, "scheduler")),
				engine.WithSchedulerMetrics(a.metrics),
			)
			for _, def := range a.cfg.JobDefinitions() {
				if err := cs.RegisterJob(def); err != nil {
					r.Shutdown()
					return err
				}
			}

			cs.Start()
			output.Success(opts.out, "已启动 %s 运行器，定时任务 %d 个", kind, len(cs.Jobs()))
			if triggerNow {
				for _, name := range cs.Jobs() {
					if _, err := cs.Trigger(name); err != nil {
						output.Warning(opts.out, "立即触发 %s 失败: %v", name, err)
					}
				}
			}

			waitForExit(ctx, duration)

			cs.Stop()
			if err := r.Shutdown(); err != nil {
				output.Error(opts.errOut, "关闭运行器失败: %v", err)
				return err
			}
			output.Success(opts.out, "已停止")
			return nil
		},
	}
	c.Flags().DurationVar(&duration, "duration", 0, "运行时长，0表示直到收到信号")
	c.Flags().BoolVar(&triggerNow, "trigger-now", false, "启动后立即触发所有定时任务一次")
	return c
}

// startRemote 启动进程内调度器，并为默认队列和定时任务指定的每个队列各启动一个worker
func startRemote(ctx context.Context, a *app, registry *task.Registry, deps *runner.Deps) (func(), error) {
	remoteCfg := a.cfg.Wengine.Runner.Remote
	log := logger.Component(a.logger, "remote")

	sched, err := remote.NewPubSubScheduler(
		remote.WithQueueCapacity(remoteCfg.QueueName, remoteCfg.QueueCapacity),
		remote.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(ctx); err != nil {
		sched.Close()
		return nil, fmt.Errorf("启动远程调度器失败: %w", err)
	}

	var workers []*remote.QueueWorker
	stopAll := func() {
		for _, w := range workers {
			w.Stop()
		}
		if err := sched.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭远程调度器失败")
		}
	}
	for _, queue := range workerQueues(remoteCfg.QueueName, a.cfg.JobDefinitions()) {
		w := remote.NewQueueWorker(sched, queue, remote.BodyHandler(registry), log)
		if err := w.Start(ctx); err != nil {
			stopAll()
			return nil, err
		}
		workers = append(workers, w)
	}
	deps.Scheduler = sched
	return stopAll, nil
}

// workerQueues 默认队列加上任务配置中 QueueName 覆盖的队列，去重并保持顺序
func workerQueues(defaultQueue string, jobs []engine.JobDefinition) []string {
	if defaultQueue == "" {
		defaultQueue = runner.DefaultQueueName
	}
	queues := []string{defaultQueue}
	seen := map[string]bool{defaultQueue: true}
	for _, job := range jobs {
		q := job.Config.First(runner.ConfigQueueName)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queues = append(queues, q)
	}
	return queues
}

func waitForExit(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
