package page

import (
	"context"
	"fmt"
	"sort"

	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/query"
)

// Source 按查询表达式提供候选实例
type Source interface {
	Stubs(ctx context.Context, expr query.Expression) ([]CachedStub, error)
}

// Paginator 过滤、排序并截取一页实例
type Paginator struct {
	source Source
}

// NewPaginator 创建分页器
func NewPaginator(source Source) *Paginator {
	return &Paginator{source: source}
}

// GetPage 返回第 info.PageNum 页
// 过滤条件先下推给Source，再在内存中逐个校验；cmp为nil时保持Source返回的顺序
func (p *Paginator) GetPage(ctx context.Context, info PageInfo, filter *PageFilter, cmp Comparator) (QueryPage, error) {
	if err := info.Validate(); err != nil {
		return QueryPage{}, err
	}
	candidates, err := p.source.Stubs(ctx, filter.Expression())
	if err != nil {
		return QueryPage{}, fmt.Errorf("加载实例失败: %w", err)
	}

	matched := make([]instance.ProcessorStub, 0, len(candidates))
	for _, c := range candidates {
		if filter.Accept(c.Stub, c.Metadata) {
			matched = append(matched, c.Stub)
		}
	}
	if cmp != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			return cmp(matched[i], matched[j]) < 0
		})
	}
	return Paginate(matched, info), nil
}
