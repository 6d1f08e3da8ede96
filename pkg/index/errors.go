package index

import (
	"fmt"
)

// CompileError 查询表达式无法编译为SQL（形状或运算符不受支持）
type CompileError struct {
	Expr string
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Expr == "" {
		return "查询编译失败: " + e.Msg
	}
	return fmt.Sprintf("查询编译失败 [%s]: %s", e.Expr, e.Msg)
}

// IndexIOError 属性索引连接或语句执行失败
type IndexIOError struct {
	Op  string
	ID  TransactionID
	Err error
}

func (e *IndexIOError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("属性索引%s失败(id=%s): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("属性索引%s失败: %v", e.Op, e.Err)
}

func (e *IndexIOError) Unwrap() error {
	return e.Err
}

// DataIntegrityWarning 读取时缺少预期的键，已使用默认值继续处理
// 只记录日志，不作为错误返回
type DataIntegrityWarning struct {
	ID       TransactionID
	Key      string
	Fallback string
	Cause    error
}

func (w *DataIntegrityWarning) Error() string {
	if w.Cause != nil {
		return fmt.Sprintf("实例 %s 的 %s 无效(%v)，使用 %s 代替", w.ID, w.Key, w.Cause, w.Fallback)
	}
	return fmt.Sprintf("实例 %s 缺少 %s，数据库可能不同步，使用 %s 代替", w.ID, w.Key, w.Fallback)
}

func ioErr(op string, id TransactionID, err error) error {
	return &IndexIOError{Op: op, ID: id, Err: err}
}
