package mysql

import (
	"fmt"

	"github.com/LENAX/wengine/pkg/storage"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLDialect MySQL方言实现（对外导出）
// INTERSECT 需要 MySQL 8.0.31 及以上版本
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// PrepareDSN 以系统变量参数设置sql_mode，驱动在每个新连接上执行
func (d *MySQLDialect) PrepareDSN(dsn string) string {
	return storage.MergeQueryParams(dsn, map[string]string{
		"sql_mode": "'STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
	})
}

// SchemaSQL 返回属性表DDL（MySQL不支持CREATE INDEX IF NOT EXISTS，索引内联到建表语句）
func (d *MySQLDialect) SchemaSQL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		instance_id VARCHAR(64) NOT NULL,
		met_key VARCHAR(255) NOT NULL,
		met_val TEXT NOT NULL,
		INDEX idx_%s_instance_id (instance_id),
		INDEX idx_%s_met_key (met_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, table, table, table),
	}
}

// CompoundOperand MySQL 8 接受带括号的复合查询操作数
func (d *MySQLDialect) CompoundOperand(sql string) string {
	return "(" + sql + ")"
}

// Open 通过DSN打开MySQL数据库（对外导出）
// dsn格式: user:password@tcp(host:port)/dbname
func Open(dsn string) (*sqlx.DB, error) {
	return storage.OpenDB(NewMySQLDialect(), dsn)
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
