package postgres

import (
	"fmt"
	"strings"

	"github.com/LENAX/wengine/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名（sqlx据此使用$1, $2, ...占位符）
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// PrepareDSN 以运行时参数设置timezone，支持URL和key=value两种DSN
func (d *PostgresDialect) PrepareDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		return storage.MergeQueryParams(dsn, map[string]string{"timezone": "UTC"})
	}
	if strings.Contains(dsn, "timezone=") {
		return dsn
	}
	return strings.TrimSpace(dsn + " timezone=UTC")
}

// SchemaSQL 返回属性表DDL
func (d *PostgresDialect) SchemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		instance_id VARCHAR(64) NOT NULL,
		met_key VARCHAR(255) NOT NULL,
		met_val TEXT NOT NULL
	)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_instance_id ON %s(instance_id)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_met_key ON %s(met_key)", table, table),
	}
}

// CompoundOperand PostgreSQL接受带括号的复合查询操作数
func (d *PostgresDialect) CompoundOperand(sql string) string {
	return "(" + sql + ")"
}

// Open 通过DSN打开PostgreSQL数据库（对外导出）
func Open(dsn string) (*sqlx.DB, error) {
	return storage.OpenDB(NewPostgresDialect(), dsn)
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
