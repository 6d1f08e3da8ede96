package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect SQL方言接口（对外导出）
// 封装不同数据库在属性表上的语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回database/sql驱动名，sqlx据此选择占位符风格
	DriverName() string

	// PrepareDSN 将连接级配置（如SQLite的PRAGMA）写入DSN
	// 连接池中的每个新连接都会应用这些配置
	PrepareDSN(dsn string) string

	// SchemaSQL 返回创建属性表及索引的DDL，逐条执行
	SchemaSQL(table string) []string

	// CompoundOperand 包装 INTERSECT/UNION 的单个操作数
	// PostgreSQL/MySQL: (SELECT ...)
	// SQLite 不接受带括号的复合查询操作数，需改写为子查询
	CompoundOperand(sql string) string
}

// OpenDB 按方言补全DSN后打开数据库（对外导出）
func OpenDB(d Dialect, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(d.DriverName(), d.PrepareDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s连接失败: %w", d.Name(), err)
	}
	return db, nil
}

// MergeQueryParams 为 "地址?参数" 形式的DSN补充缺省参数，已有的同名参数保持不变
// 参数按名称排序输出
func MergeQueryParams(dsn string, defaults map[string]string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}
	for k, v := range defaults {
		if _, ok := params[k]; !ok {
			params.Set(k, v)
		}
	}
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}
