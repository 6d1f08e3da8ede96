package page

import (
	"sort"

	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/query"
)

// CachedStub 轻量视图及其缓存的元数据
type CachedStub struct {
	Stub     instance.ProcessorStub
	Metadata map[string][]string
}

// PageFilter 分页过滤条件，所有条件均可选，之间为AND关系
type PageFilter struct {
	ModelID  string
	State    string
	Category instance.Category
	// Metadata 每个键的期望值，实例该键的值与期望值有交集即通过
	Metadata map[string][]string
}

// Empty 是否没有任何条件
func (f *PageFilter) Empty() bool {
	return f == nil || (f.ModelID == "" && f.State == "" && f.Category == "" && len(f.Metadata) == 0)
}

// Accept 判断实例是否满足过滤条件，nil过滤器接受所有实例
func (f *PageFilter) Accept(stub instance.ProcessorStub, meta map[string][]string) bool {
	if f == nil {
		return true
	}
	if f.ModelID != "" && stub.ModelID != f.ModelID {
		return false
	}
	if f.State != "" && stub.State.Name != f.State {
		return false
	}
	if f.Category != "" && stub.State.Category != f.Category {
		return false
	}
	for key, want := range f.Metadata {
		if !intersects(meta[key], want) {
			return false
		}
	}
	return true
}

// Expression 将过滤条件下推为查询表达式，没有条件时返回MatchAll
func (f *PageFilter) Expression() query.Expression {
	if f.Empty() {
		return query.MatchAll{}
	}
	var exprs []query.Expression
	if f.ModelID != "" {
		exprs = append(exprs, query.Equals(instance.KeyModelID, f.ModelID))
	}
	if f.State != "" {
		exprs = append(exprs, query.Equals(instance.KeyState, f.State))
	}
	if f.Category != "" {
		exprs = append(exprs, query.Equals(instance.KeyStateCategory, string(f.Category)))
	}
	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(f.Metadata[k]) == 0 {
			continue
		}
		exprs = append(exprs, query.Equals(k, f.Metadata[k]...))
	}
	switch len(exprs) {
	case 0:
		return query.MatchAll{}
	case 1:
		return exprs[0]
	default:
		return query.AllOf(exprs...)
	}
}

func intersects(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	for _, v := range want {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
