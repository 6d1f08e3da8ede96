// Package query 定义任务元数据上的布尔查询表达式（对外导出）
package query

import (
	"fmt"
	"strings"
)

// Operator 比较运算符
type Operator int

const (
	EQ Operator = iota + 1
	GT
	GTE
	LT
	LTE
)

// SQL 返回运算符对应的SQL符号，不支持的运算符返回false
func (o Operator) SQL() (string, bool) {
	switch o {
	case EQ:
		return "=", true
	case GT:
		return ">", true
	case GTE:
		return ">=", true
	case LT:
		return "<", true
	case LTE:
		return "<=", true
	default:
		return "", false
	}
}

func (o Operator) String() string {
	if o == EQ {
		return "=="
	}
	if s, ok := o.SQL(); ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator 解析文本运算符
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "=", "==":
		return EQ, nil
	case ">":
		return GT, nil
	case ">=":
		return GTE, nil
	case "<":
		return LT, nil
	case "<=":
		return LTE, nil
	default:
		return 0, fmt.Errorf("不支持的比较运算符: %q", s)
	}
}

// LogicalOp 逻辑组合运算符
type LogicalOp int

const (
	And LogicalOp = iota + 1
	Or
)

func (o LogicalOp) String() string {
	switch o {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return fmt.Sprintf("LogicalOp(%d)", int(o))
	}
}

// Expression 查询表达式（封闭的标签联合类型）
// 取值只能是 MatchAll、Comparison、Not、LogicalGroup
type Expression interface {
	fmt.Stringer
	isExpression()
}

// MatchAll 匹配所有实例
type MatchAll struct{}

// Comparison 对一个多值Term的比较，多个值之间为OR关系
type Comparison struct {
	Term Term
	Op   Operator
}

// Not 取反
type Not struct {
	Expr Expression
}

// LogicalGroup AND/OR 组合
type LogicalGroup struct {
	Op    LogicalOp
	Exprs []Expression
}

func (MatchAll) isExpression()     {}
func (Comparison) isExpression()   {}
func (Not) isExpression()          {}
func (LogicalGroup) isExpression() {}

func (MatchAll) String() string { return "*" }

func (c Comparison) String() string {
	quoted := make([]string, len(c.Term.Values))
	for i, v := range c.Term.Values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	}
	return fmt.Sprintf("%s %s %s", c.Term.Name, c.Op, strings.Join(quoted, ", "))
}

func (n Not) String() string {
	if n.Expr == nil {
		return "NOT ()"
	}
	return "NOT (" + n.Expr.String() + ")"
}

func (g LogicalGroup) String() string {
	parts := make([]string, 0, len(g.Exprs))
	for _, e := range g.Exprs {
		if e == nil {
			parts = append(parts, "()")
			continue
		}
		parts = append(parts, "("+e.String()+")")
	}
	return strings.Join(parts, " "+g.Op.String()+" ")
}

// Equals 构造等值比较的便捷方法
func Equals(name string, values ...string) Comparison {
	return Comparison{Term: NewTerm(name, values...), Op: EQ}
}

// AllOf 构造AND组合
func AllOf(exprs ...Expression) LogicalGroup {
	return LogicalGroup{Op: And, Exprs: exprs}
}

// AnyOf 构造OR组合
func AnyOf(exprs ...Expression) LogicalGroup {
	return LogicalGroup{Op: Or, Exprs: exprs}
}
