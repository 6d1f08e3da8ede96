package query

// Term 多值属性
type Term struct {
	Name   string
	Values []string
}

// NewTerm 创建Term
func NewTerm(name string, values ...string) Term {
	vals := make([]string, len(values))
	copy(vals, values)
	return Term{Name: name, Values: vals}
}

// FirstValue 返回第一个值，无值时返回空串
func (t Term) FirstValue() string {
	if len(t.Values) == 0 {
		return ""
	}
	return t.Values[0]
}

// TermBucket 命名空间下的一组Term，Term名称在桶内唯一
type TermBucket struct {
	Name  string
	terms []Term
	index map[string]int
}

// NewTermBucket 创建TermBucket
func NewTermBucket(name string, terms ...Term) *TermBucket {
	b := &TermBucket{Name: name, index: make(map[string]int)}
	for _, t := range terms {
		b.AddTerm(t)
	}
	return b
}

// AddTerm 添加Term；同名Term的值会合并到已有Term之后
func (b *TermBucket) AddTerm(t Term) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[t.Name]; ok {
		b.terms[i].Values = append(b.terms[i].Values, t.Values...)
		return
	}
	b.index[t.Name] = len(b.terms)
	b.terms = append(b.terms, NewTerm(t.Name, t.Values...))
}

// Term 按名称获取Term
func (b *TermBucket) Term(name string) (Term, bool) {
	if b == nil || b.index == nil {
		return Term{}, false
	}
	i, ok := b.index[name]
	if !ok {
		return Term{}, false
	}
	return b.terms[i], true
}

// Terms 按插入顺序返回所有Term
func (b *TermBucket) Terms() []Term {
	if b == nil {
		return nil
	}
	out := make([]Term, len(b.terms))
	copy(out, b.terms)
	return out
}

// Names 返回所有Term名称
func (b *TermBucket) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, len(b.terms))
	for i, t := range b.terms {
		names[i] = t.Name
	}
	return names
}

// Len Term数量
func (b *TermBucket) Len() int {
	if b == nil {
		return 0
	}
	return len(b.terms)
}
