package sqlite

import (
	"fmt"

	"github.com/LENAX/wengine/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// PrepareDSN 通过go-sqlite3的DSN参数设置PRAGMA，对池中每个连接生效
func (d *SQLiteDialect) PrepareDSN(dsn string) string {
	return storage.MergeQueryParams(dsn, map[string]string{
		"_journal_mode": "WAL",
		"_busy_timeout": "30000",
		"_synchronous":  "NORMAL",
	})
}

// SchemaSQL 返回属性表DDL
func (d *SQLiteDialect) SchemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		instance_id TEXT NOT NULL,
		met_key TEXT NOT NULL,
		met_val TEXT NOT NULL
	)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_instance_id ON %s(instance_id)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_met_key ON %s(met_key)", table, table),
	}
}

// CompoundOperand SQLite的复合查询操作数不能带括号，改写为子查询
func (d *SQLiteDialect) CompoundOperand(sql string) string {
	return "SELECT instance_id FROM (" + sql + ")"
}

// Open 通过DSN打开SQLite数据库（对外导出）
func Open(dsn string) (*sqlx.DB, error) {
	return storage.OpenDB(NewSQLiteDialect(), dsn)
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
