package query

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseError 查询文本解析错误
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("查询解析失败(位置 %d): %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokStar
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse 将文本查询解析为表达式树
//
// 语法示例：
//
//	Status == 'RUNNING' AND (ModelId == a, b OR NOT TimesBlocked > 2)
//	*
func Parse(text string) (Expression, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("多余的内容 %q", t.text)}
	}
	return expr, nil
}

func lex(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case r == '=' || r == '>' || r == '<':
			start := i
			i++
			if i < len(rs) && rs[i] == '=' {
				i++
			}
			toks = append(toks, token{tokOp, string(rs[start:i]), start})
		case r == '\'' || r == '"':
			start := i
			quote := r
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				c := rs[i]
				if c == '\\' && i+1 < len(rs) {
					sb.WriteRune(rs[i+1])
					i += 2
					continue
				}
				if c == quote {
					closed = true
					i++
					break
				}
				sb.WriteRune(c)
				i++
			}
			if !closed {
				return nil, &ParseError{Pos: start, Msg: "字符串未闭合"}
			}
			toks = append(toks, token{tokString, sb.String(), start})
		case isWordRune(r):
			start := i
			for i < len(rs) && isWordRune(rs[i]) {
				i++
			}
			toks = append(toks, token{tokWord, string(rs[start:i]), start})
		default:
			return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("无法识别的字符 %q", r)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(rs)})
	return toks, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == ':' || r == '/'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{left}
	for p.keyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, right)
	}
	if len(exprs) == 1 {
		return left, nil
	}
	return LogicalGroup{Op: Or, Exprs: exprs}, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{left}
	for p.keyword("AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, right)
	}
	if len(exprs) == 1 {
		return left, nil
	}
	return LogicalGroup{Op: And, Exprs: exprs}, nil
}

func (p *parser) parseUnary() (Expression, error) {
	if p.keyword("NOT") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expression, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &ParseError{Pos: closing.pos, Msg: "缺少右括号"}
		}
		return inner, nil
	case tokStar:
		p.next()
		return MatchAll{}, nil
	case tokWord:
		return p.parseComparison()
	case tokEOF:
		return nil, &ParseError{Pos: t.pos, Msg: "查询意外结束"}
	default:
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("意外的符号 %q", t.text)}
	}
}

func (p *parser) parseComparison() (Expression, error) {
	name := p.next()
	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, &ParseError{Pos: opTok.pos, Msg: fmt.Sprintf("%s 之后缺少比较运算符", name.text)}
	}
	op, err := ParseOperator(opTok.text)
	if err != nil {
		return nil, &ParseError{Pos: opTok.pos, Msg: err.Error()}
	}
	var values []string
	for {
		v := p.next()
		if v.kind != tokWord && v.kind != tokString {
			return nil, &ParseError{Pos: v.pos, Msg: fmt.Sprintf("%s 缺少比较值", name.text)}
		}
		values = append(values, v.text)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	return Comparison{Term: NewTerm(name.text, values...), Op: op}, nil
}
