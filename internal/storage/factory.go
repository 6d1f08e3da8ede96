package storage

import (
	"fmt"
	"time"

	"github.com/LENAX/wengine/pkg/storage"
	"github.com/LENAX/wengine/pkg/storage/mysql"
	"github.com/LENAX/wengine/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/wengine/pkg/storage/sqlite"
	"github.com/jmoiron/sqlx"
)

// PoolOptions 连接池参数（内部使用）
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Database 已打开的数据库及其方言（内部使用）
type Database struct {
	DB      *sqlx.DB
	Dialect storage.Dialect
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// DialectFor 根据数据库类型返回方言
// dbType: 数据库类型（sqlite/mysql/postgres）
func DialectFor(dbType string) (storage.Dialect, error) {
	switch dbType {
	case "", "sqlite", "sqlite3":
		return pkgsqlite.NewSQLiteDialect(), nil
	case "mysql":
		return mysql.NewMySQLDialect(), nil
	case "postgres", "postgresql":
		return postgres.NewPostgresDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// OpenDatabase 创建数据库连接（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func OpenDatabase(dbType, dsn string, pool PoolOptions) (*Database, error) {
	dialect, err := DialectFor(dbType)
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenDB(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("create %s database failed: %w", dialect.Name(), err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return &Database{DB: db, Dialect: dialect}, nil
}
