// Package metrics 提供运行器与属性索引的Prometheus指标（内部使用）
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 所有指标的集合，注册在自带的Registry上而非全局Registry
// 所有方法允许nil接收者，未配置指标时直接忽略
type Metrics struct {
	Registry *prometheus.Registry

	RunnerTasksTotal       *prometheus.CounterVec
	RunnerInFlight         *prometheus.GaugeVec
	RunnerPersistFailures  *prometheus.CounterVec
	IndexOperationsTotal   *prometheus.CounterVec
	IndexOperationDuration *prometheus.HistogramVec
	RemoteJobsSubmitted    *prometheus.CounterVec
	DataIntegrityWarnings  prometheus.Counter
	SchedulerTriggersTotal *prometheus.CounterVec
}

// New 创建并注册所有指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunnerTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wengine_runner_tasks_total",
				Help: "Total number of tasks handled by a runner",
			},
			[]string{"runner", "outcome"},
		),
		RunnerInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wengine_runner_in_flight",
				Help: "Number of tasks currently executing or queued in a runner",
			},
			[]string{"runner"},
		),
		RunnerPersistFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wengine_runner_persist_failures_total",
				Help: "Total number of failed instance persists after a state transition",
			},
			[]string{"runner"},
		),
		IndexOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wengine_index_operations_total",
				Help: "Total number of attribute index operations",
			},
			[]string{"op", "status"},
		),
		IndexOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wengine_index_operation_duration_seconds",
				Help:    "Duration of attribute index operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		RemoteJobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wengine_remote_jobs_submitted_total",
				Help: "Total number of jobs delegated to a remote scheduler",
			},
			[]string{"queue"},
		),
		DataIntegrityWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wengine_index_data_integrity_warnings_total",
				Help: "Total number of reads that had to synthesize a missing CreationDate",
			},
		),
		SchedulerTriggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wengine_scheduler_triggers_total",
				Help: "Total number of cron triggers by outcome",
			},
			[]string{"job", "outcome"},
		),
	}
}

// ObserveIndexOp 记录一次索引操作
func (m *Metrics) ObserveIndexOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.IndexOperationsTotal.WithLabelValues(op, status).Inc()
	m.IndexOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// TaskFinished 记录任务结果
func (m *Metrics) TaskFinished(runner, outcome string) {
	if m == nil {
		return
	}
	m.RunnerTasksTotal.WithLabelValues(runner, outcome).Inc()
}

// InFlight 调整运行中任务数
func (m *Metrics) InFlight(runner string, delta float64) {
	if m == nil {
		return
	}
	m.RunnerInFlight.WithLabelValues(runner).Add(delta)
}

// PersistFailed 记录一次持久化失败
func (m *Metrics) PersistFailed(runner string) {
	if m == nil {
		return
	}
	m.RunnerPersistFailures.WithLabelValues(runner).Inc()
}

// JobSubmitted 记录一次远程提交
func (m *Metrics) JobSubmitted(queue string) {
	if m == nil {
		return
	}
	m.RemoteJobsSubmitted.WithLabelValues(queue).Inc()
}

// DataIntegrityWarning 记录一次数据完整性告警
func (m *Metrics) DataIntegrityWarning() {
	if m == nil {
		return
	}
	m.DataIntegrityWarnings.Inc()
}

// SchedulerTriggered 记录一次定时触发
func (m *Metrics) SchedulerTriggered(job, outcome string) {
	if m == nil {
		return
	}
	m.SchedulerTriggersTotal.WithLabelValues(job, outcome).Inc()
}
