// Package page 提供任务实例的过滤、排序和分页（对外导出）
package page

import (
	"errors"
	"fmt"

	"github.com/LENAX/wengine/pkg/core/instance"
)

// ErrInvalidPageInfo 分页参数无效
var ErrInvalidPageInfo = errors.New("分页参数无效")

// PageInfo 分页参数，PageNum从1开始
type PageInfo struct {
	PageSize int
	PageNum  int
}

// NewPageInfo 创建并校验分页参数
func NewPageInfo(pageSize, pageNum int) (PageInfo, error) {
	info := PageInfo{PageSize: pageSize, PageNum: pageNum}
	return info, info.Validate()
}

// Validate 校验分页参数
func (p PageInfo) Validate() error {
	if p.PageSize <= 0 {
		return fmt.Errorf("%w: pageSize=%d", ErrInvalidPageInfo, p.PageSize)
	}
	if p.PageNum < 1 {
		return fmt.Errorf("%w: pageNum=%d", ErrInvalidPageInfo, p.PageNum)
	}
	return nil
}

// Start 当前页第一项的下标
func (p PageInfo) Start() int {
	return (p.PageNum - 1) * p.PageSize
}

// End 当前页最后一项之后的下标（不截断）
func (p PageInfo) End() int {
	return p.Start() + p.PageSize
}

// TotalPages 按命中数计算总页数
func (p PageInfo) TotalPages(hits int) int {
	if hits <= 0 {
		return 0
	}
	return (hits + p.PageSize - 1) / p.PageSize
}

// QueryPage 一页结果，NumOfHits 为所有页的命中总数
type QueryPage struct {
	PageInfo
	TotalPages int
	NumOfHits  int
	Items      []instance.ProcessorStub
}

// IsLastPage 是否为最后一页
func (q QueryPage) IsLastPage() bool {
	return q.PageNum >= q.TotalPages
}

// Paginate 从完整的有序结果中截取一页
func Paginate(all []instance.ProcessorStub, info PageInfo) QueryPage {
	hits := len(all)
	start, end := info.Start(), info.End()
	if start > hits {
		start = hits
	}
	if end > hits {
		end = hits
	}
	items := make([]instance.ProcessorStub, end-start)
	copy(items, all[start:end])
	return QueryPage{
		PageInfo:   info,
		TotalPages: info.TotalPages(hits),
		NumOfHits:  hits,
		Items:      items,
	}
}
