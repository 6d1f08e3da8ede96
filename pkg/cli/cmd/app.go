package cmd

import (
	"context"
	"fmt"

	"github.com/LENAX/wengine/internal/logger"
	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/internal/storage"
	"github.com/LENAX/wengine/pkg/config"
	"github.com/LENAX/wengine/pkg/index"
	"github.com/LENAX/wengine/pkg/storage/indexed"
	"github.com/rs/zerolog"
)

// app 一次命令执行所需的组件
type app struct {
	cfg     *config.EngineConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	db      *storage.Database
	index   *index.AttributeIndex
	repo    *indexed.InstanceRepo
}

// openApp 加载配置、打开数据库并确保属性表存在
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dsn != "" {
		cfg.Wengine.Storage.Database.DSN = opts.dsn
	}

	log := logger.New(logger.Config{
		Level:  cfg.Wengine.General.LogLevel,
		Pretty: cfg.Wengine.General.LogPretty,
		Output: opts.errOut,
	}).With().Str("instance", cfg.Wengine.General.InstanceName).Logger()
	m := metrics.New()

	dbCfg := cfg.Wengine.Storage.Database
	db, err := storage.OpenDatabase(dbCfg.Type, dbCfg.DSN, storage.PoolOptions{
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	idx := index.New(db.DB, db.Dialect,
		index.WithTable(dbCfg.Table),
		index.WithAtomicWrites(dbCfg.AtomicWrites),
		index.WithLogger(logger.Component(log, "index")),
		index.WithMetrics(m),
	)
	if err := idx.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化属性表失败: %w", err)
	}

	repo := indexed.NewInstanceRepo(idx, logger.Component(log, "repository"),
		indexed.WithBucketCache(cfg.BucketCacheTTL()))

	return &app{
		cfg:     cfg,
		logger:  log,
		metrics: m,
		db:      db,
		index:   idx,
		repo:    repo,
	}, nil
}

// Close 释放缓存并关闭数据库
func (a *app) Close() error {
	a.repo.Close()
	return a.db.Close()
}
