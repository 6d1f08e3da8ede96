package config

import (
	"fmt"
	"strings"

	"github.com/LENAX/wengine/pkg/core/runner"
)

// Validate 校验配置合法性，应在ApplyDefaults之后调用
func Validate(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	w := &cfg.Wengine

	// 校验General
	if w.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(w.General.LogLevel)] {
		return fmt.Errorf("log_level必须是debug/info/warn/error之一")
	}

	// 校验Storage.Database
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"sqlite3":    true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[w.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if w.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if w.Storage.Database.MaxIdleConns > w.Storage.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns不能大于max_open_conns")
	}

	// 校验Runner
	if w.Runner.Type != runner.KindLocal && w.Runner.Type != runner.KindRemote {
		return fmt.Errorf("runner.type必须是%s/%s之一", runner.KindLocal, runner.KindRemote)
	}
	if w.Runner.Local.QueueSize < 0 {
		return fmt.Errorf("runner.local.queue_size不能为负数")
	}
	if _, err := runner.ParsePersistMode(w.Runner.Local.PersistenceMode); err != nil {
		return fmt.Errorf("runner.local.persistence_mode: %w", err)
	}

	// 校验Scheduler
	names := make(map[string]bool)
	for i, job := range cfg.JobDefinitions() {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("scheduler.jobs[%d]: %w", i, err)
		}
		if names[job.Name] {
			return fmt.Errorf("scheduler.jobs中存在重复的name: %s", job.Name)
		}
		names[job.Name] = true
	}
	return nil
}
