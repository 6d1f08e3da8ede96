package index

import (
	"fmt"
	"strings"

	"github.com/LENAX/wengine/pkg/core/query"
)

const (
	// DefaultTable 默认属性表名
	DefaultTable = "workflow_instance_metadata"

	colID  = "instance_id"
	colKey = "met_key"
	colVal = "met_val"
)

// Compiler 将查询表达式编译为返回命中 instance_id 集合的SQL（对外导出）
// 编译结果只依赖输入，同一表达式总得到同一字符串
type Compiler struct {
	table   string
	operand func(string) string
}

// CompilerOption 编译器选项
type CompilerOption func(*Compiler)

// WithCompoundOperand 设置 INTERSECT/UNION 操作数的包装方式
// 默认形如 (SELECT ...)
func WithCompoundOperand(fn func(string) string) CompilerOption {
	return func(c *Compiler) {
		if fn != nil {
			c.operand = fn
		}
	}
}

// NewCompiler 创建编译器
func NewCompiler(table string, opts ...CompilerOption) *Compiler {
	if table == "" {
		table = DefaultTable
	}
	c := &Compiler{
		table:   table,
		operand: func(sql string) string { return "(" + sql + ")" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table 返回编译器使用的表名
func (c *Compiler) Table() string {
	return c.table
}

// Compile 编译表达式
func (c *Compiler) Compile(expr query.Expression) (string, error) {
	switch e := expr.(type) {
	case nil:
		return "", &CompileError{Msg: "表达式为空"}
	case query.MatchAll, *query.MatchAll:
		return c.selectAll(), nil
	case query.Comparison:
		return c.compileComparison(e)
	case *query.Comparison:
		if e == nil {
			return "", &CompileError{Msg: "表达式为空"}
		}
		return c.compileComparison(*e)
	case query.Not:
		return c.compileNot(e)
	case *query.Not:
		if e == nil {
			return "", &CompileError{Msg: "表达式为空"}
		}
		return c.compileNot(*e)
	case query.LogicalGroup:
		return c.compileGroup(e)
	case *query.LogicalGroup:
		if e == nil {
			return "", &CompileError{Msg: "表达式为空"}
		}
		return c.compileGroup(*e)
	default:
		return "", &CompileError{Msg: fmt.Sprintf("不支持的表达式类型 %T", expr)}
	}
}

// CountSQL 编译统计命中数量的SQL
func (c *Compiler) CountSQL(expr query.Expression) (string, error) {
	inner, err := c.Compile(expr)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) FROM (" + inner + ") AS matched_ids", nil
}

// OrderedSQL 编译按 instance_id 排序的SQL，分页切片在多次调用间保持稳定
func (c *Compiler) OrderedSQL(expr query.Expression) (string, error) {
	inner, err := c.Compile(expr)
	if err != nil {
		return "", err
	}
	return "SELECT " + colID + " FROM (" + inner + ") AS matched_ids ORDER BY " + colID, nil
}

func (c *Compiler) selectAll() string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s", colID, c.table)
}

func (c *Compiler) compileComparison(cmp query.Comparison) (string, error) {
	if cmp.Term.Name == "" {
		return "", &CompileError{Expr: cmp.String(), Msg: "Term名称不能为空"}
	}
	if len(cmp.Term.Values) == 0 {
		return "", &CompileError{Expr: cmp.String(), Msg: "比较值列表为空"}
	}
	op, ok := cmp.Op.SQL()
	if !ok {
		return "", &CompileError{Expr: cmp.String(), Msg: fmt.Sprintf("不支持的运算符 %s", cmp.Op)}
	}

	preds := make([]string, len(cmp.Term.Values))
	for i, v := range cmp.Term.Values {
		preds[i] = fmt.Sprintf("%s %s '%s'", colVal, op, Encode(v))
	}
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s = '%s' AND (%s)",
		colID, c.table, colKey, Encode(cmp.Term.Name), strings.Join(preds, " OR ")), nil
}

// compileNot 取全集相对内层结果的补集
func (c *Compiler) compileNot(n query.Not) (string, error) {
	inner, err := c.Compile(n.Expr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s WHERE %s NOT IN (%s)", c.selectAll(), colID, inner), nil
}

func (c *Compiler) compileGroup(g query.LogicalGroup) (string, error) {
	var keyword string
	switch g.Op {
	case query.And:
		keyword = " INTERSECT "
	case query.Or:
		keyword = " UNION "
	default:
		return "", &CompileError{Expr: g.String(), Msg: fmt.Sprintf("不支持的逻辑运算符 %s", g.Op)}
	}
	if len(g.Exprs) == 0 {
		return "", &CompileError{Expr: g.String(), Msg: "逻辑组合为空"}
	}

	parts := make([]string, len(g.Exprs))
	for i, sub := range g.Exprs {
		sql, err := c.Compile(sub)
		if err != nil {
			return "", err
		}
		parts[i] = c.operand(sql)
	}
	return strings.Join(parts, keyword), nil
}
