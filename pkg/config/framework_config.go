// Package config 加载并校验wengine配置（对外导出）
package config

import (
	"time"

	"github.com/LENAX/wengine/pkg/core/engine"
	"github.com/LENAX/wengine/pkg/core/runner"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/LENAX/wengine/pkg/index"
)

// 默认值
const (
	DefaultInstanceName  = "wengine"
	DefaultLogLevel      = "info"
	DefaultDatabaseType  = "sqlite"
	DefaultDatabaseDSN   = "./wengine.db"
	DefaultRunnerType    = runner.KindLocal
	DefaultPersistMode   = "best_effort"
	DefaultLoadWeight    = 1
	DefaultQueueCapacity = 100
)

// JobConfig 定时任务配置
type JobConfig struct {
	Name       string              `yaml:"name"`
	Cron       string              `yaml:"cron"`
	ModelID    string              `yaml:"model_id"`
	Body       string              `yaml:"body"`
	Config     map[string][]string `yaml:"config"`
	LoadWeight int                 `yaml:"load_weight"`
}

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	Wengine struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			LogPretty    bool   `yaml:"log_pretty"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				Table           string        `yaml:"table"`
				AtomicWrites    bool          `yaml:"atomic_writes"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			} `yaml:"database"`
			Cache struct {
				Enabled bool          `yaml:"enabled"`
				TTL     time.Duration `yaml:"ttl"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Runner struct {
			Type  string `yaml:"type"`
			Local struct {
				PoolSize         int           `yaml:"pool_size"`
				AdmissionControl bool          `yaml:"admission_control"`
				QueueSize        int           `yaml:"queue_size"`
				PersistenceMode  string        `yaml:"persistence_mode"`
				ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
			} `yaml:"local"`
			Remote struct {
				QueueName     string `yaml:"queue_name"`
				LoadWeight    int    `yaml:"load_weight"`
				QueueCapacity int    `yaml:"queue_capacity"`
			} `yaml:"remote"`
		} `yaml:"runner"`
		Scheduler struct {
			Jobs []JobConfig `yaml:"jobs"`
		} `yaml:"scheduler"`
	} `yaml:"wengine"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.Wengine.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.Wengine.Storage.Database.DSN
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	// General默认值
	if c.Wengine.General.InstanceName == "" {
		c.Wengine.General.InstanceName = DefaultInstanceName
	}
	if c.Wengine.General.LogLevel == "" {
		c.Wengine.General.LogLevel = DefaultLogLevel
	}

	// Database默认值
	db := &c.Wengine.Storage.Database
	if db.Type == "" {
		db.Type = DefaultDatabaseType
	}
	if db.DSN == "" && db.Type == DefaultDatabaseType {
		db.DSN = DefaultDatabaseDSN
	}
	if db.Table == "" {
		db.Table = index.DefaultTable
	}
	if db.MaxOpenConns <= 0 {
		db.MaxOpenConns = 10
	}
	if db.MaxIdleConns <= 0 {
		db.MaxIdleConns = 5
	}
	if db.ConnMaxLifetime <= 0 {
		db.ConnMaxLifetime = 2 * time.Hour
	}

	// Cache默认值
	if c.Wengine.Storage.Cache.TTL <= 0 {
		c.Wengine.Storage.Cache.TTL = 10 * time.Minute
	}

	// Runner默认值
	r := &c.Wengine.Runner
	if r.Type == "" {
		r.Type = DefaultRunnerType
	}
	if r.Local.PoolSize <= 0 {
		r.Local.PoolSize = runner.DefaultPoolSize
	}
	if r.Local.PersistenceMode == "" {
		r.Local.PersistenceMode = DefaultPersistMode
	}
	if r.Local.ShutdownGrace <= 0 {
		r.Local.ShutdownGrace = runner.DefaultShutdownGrace
	}
	if r.Remote.QueueName == "" {
		r.Remote.QueueName = runner.DefaultQueueName
	}
	if r.Remote.LoadWeight <= 0 {
		r.Remote.LoadWeight = DefaultLoadWeight
	}
	if r.Remote.QueueCapacity <= 0 {
		r.Remote.QueueCapacity = DefaultQueueCapacity
	}
}

// BucketCacheTTL 快照缓存有效期，未启用时为0
func (c *EngineConfig) BucketCacheTTL() time.Duration {
	if !c.Wengine.Storage.Cache.Enabled {
		return 0
	}
	return c.Wengine.Storage.Cache.TTL
}

// RunnerSettings 转换为运行器工厂配置
func (c *EngineConfig) RunnerSettings() (runner.Settings, error) {
	local := c.Wengine.Runner.Local
	mode, err := runner.ParsePersistMode(local.PersistenceMode)
	if err != nil {
		return runner.Settings{}, err
	}
	return runner.Settings{
		PoolSize:         local.PoolSize,
		AdmissionControl: local.AdmissionControl,
		QueueSize:        local.QueueSize,
		PersistMode:      mode,
		ShutdownGrace:    local.ShutdownGrace,
		QueueName:        c.Wengine.Runner.Remote.QueueName,
	}, nil
}

// JobDefinitions 转换为定时任务定义，未设置权重的任务使用 runner.remote.load_weight
func (c *EngineConfig) JobDefinitions() []engine.JobDefinition {
	defs := make([]engine.JobDefinition, 0, len(c.Wengine.Scheduler.Jobs))
	for _, j := range c.Wengine.Scheduler.Jobs {
		weight := j.LoadWeight
		if weight <= 0 {
			weight = c.Wengine.Runner.Remote.LoadWeight
		}
		defs = append(defs, engine.JobDefinition{
			Name:       j.Name,
			Cron:       j.Cron,
			ModelID:    j.ModelID,
			Body:       j.Body,
			Config:     task.Config(j.Config),
			LoadWeight: weight,
		})
	}
	return defs
}
