// Package indexed 基于属性索引的任务实例存储（对外导出）
package indexed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LENAX/wengine/pkg/core/cache"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/page"
	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/LENAX/wengine/pkg/index"
	"github.com/rs/zerolog"
)

// ErrInstanceNotFound 实例不存在
var ErrInstanceNotFound = errors.New("实例不存在")

// InstanceRepo 将任务实例快照保存到属性索引（对外导出）
// 每次Update都会使实例获得新的id
type InstanceRepo struct {
	idx     *index.AttributeIndex
	logger  zerolog.Logger
	buckets *cache.TTLCache[*query.TermBucket]
}

// RepoOption 实例存储选项
type RepoOption func(*InstanceRepo)

// WithBucketCache 按id缓存快照的属性桶
// 快照写入后不会原地修改（Update会换新id），缓存只需在删除时失效
func WithBucketCache(ttl time.Duration) RepoOption {
	return func(r *InstanceRepo) {
		if ttl > 0 {
			r.buckets = cache.New[*query.TermBucket](ttl, ttl)
		}
	}
}

// NewInstanceRepo 创建实例存储（对外导出）
func NewInstanceRepo(idx *index.AttributeIndex, logger zerolog.Logger, opts ...RepoOption) *InstanceRepo {
	r := &InstanceRepo{idx: idx, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close 释放缓存
func (r *InstanceRepo) Close() {
	if r.buckets != nil {
		r.buckets.Close()
	}
}

// Insert 写入新实例并回填id
func (r *InstanceRepo) Insert(ctx context.Context, inst *instance.TaskInstance) error {
	if inst.ID() != "" {
		return fmt.Errorf("实例已持久化: %s", inst.ID())
	}
	receipt, err := r.idx.Ingest(ctx, inst.ToBuckets())
	if err != nil {
		return err
	}
	inst.SetID(receipt.TransactionID.String())
	r.logger.Debug().
		Str("instance_id", inst.ID()).
		Str("state", inst.State().Name).
		Msg("实例已写入")
	return nil
}

// Update 覆盖实例快照，成功后实例改用新id
func (r *InstanceRepo) Update(ctx context.Context, inst *instance.TaskInstance) error {
	old := inst.ID()
	if old == "" {
		return fmt.Errorf("实例尚未持久化: %s", inst.TaskName())
	}
	receipt, err := r.idx.Update(ctx, index.TransactionID(old), inst.ToBuckets())
	if err != nil {
		return err
	}
	inst.SetID(receipt.TransactionID.String())
	r.forget(old)
	r.logger.Debug().
		Str("old_instance_id", old).
		Str("instance_id", inst.ID()).
		Str("state", inst.State().Name).
		Msg("实例已更新")
	return nil
}

// Delete 删除实例快照
func (r *InstanceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.idx.Delete(ctx, index.TransactionID(id))
	r.forget(id)
	return err
}

func (r *InstanceRepo) forget(id string) {
	if r.buckets != nil {
		r.buckets.Delete(id)
	}
}

// Get 按id重建完整实例
func (r *InstanceRepo) Get(ctx context.Context, id string) (*instance.TaskInstance, error) {
	b, err := r.idx.GetBuckets(ctx, index.TransactionID(id))
	if err != nil {
		return nil, err
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return instance.FromBucket(id, b, time.Now()), nil
}

// Stubs 返回命中表达式的实例轻量视图及元数据，顺序不作保证
func (r *InstanceRepo) Stubs(ctx context.Context, expr query.Expression) ([]page.CachedStub, error) {
	receipts, err := r.idx.Query(ctx, expr)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, receipts)
}

// QueryPage 在索引层直接分页，结果保持数据库返回的顺序
// 需要排序或内存过滤时使用 page.Paginator
func (r *InstanceRepo) QueryPage(ctx context.Context, info page.PageInfo, expr query.Expression) (page.QueryPage, error) {
	if err := info.Validate(); err != nil {
		return page.QueryPage{}, err
	}
	hits, err := r.idx.SizeOf(ctx, expr)
	if err != nil {
		return page.QueryPage{}, err
	}
	receipts, err := r.idx.QueryRange(ctx, expr, info.Start(), info.End())
	if err != nil {
		return page.QueryPage{}, err
	}
	cached, err := r.load(ctx, receipts)
	if err != nil {
		return page.QueryPage{}, err
	}
	items := make([]instance.ProcessorStub, len(cached))
	for i, c := range cached {
		items[i] = c.Stub
	}
	return page.QueryPage{
		PageInfo:   info,
		TotalPages: info.TotalPages(hits),
		NumOfHits:  hits,
		Items:      items,
	}, nil
}

func (r *InstanceRepo) load(ctx context.Context, receipts []index.Receipt) ([]page.CachedStub, error) {
	buckets := make(map[index.TransactionID]*query.TermBucket, len(receipts))
	var missing []index.TransactionID
	for _, rc := range receipts {
		if b, ok := r.cached(rc.TransactionID); ok {
			buckets[rc.TransactionID] = b
			continue
		}
		missing = append(missing, rc.TransactionID)
	}
	if len(missing) > 0 {
		loaded, err := r.idx.GetBucketsMany(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, b := range loaded {
			buckets[id] = b
			if r.buckets != nil && b.Len() > 0 {
				r.buckets.Set(id.String(), b)
			}
		}
	}
	out := make([]page.CachedStub, 0, len(receipts))
	for _, rc := range receipts {
		b := buckets[rc.TransactionID]
		if b == nil || b.Len() == 0 {
			// 查询与读取之间被删除
			continue
		}
		id := rc.TransactionID.String()
		out = append(out, page.CachedStub{
			Stub:     instance.StubFromBucket(id, b, rc.Timestamp),
			Metadata: instance.Metadata(b),
		})
	}
	return out, nil
}

func (r *InstanceRepo) cached(id index.TransactionID) (*query.TermBucket, bool) {
	if r.buckets == nil {
		return nil, false
	}
	return r.buckets.Get(id.String())
}

// 确保实现接口
var (
	_ instance.Repository = (*InstanceRepo)(nil)
	_ page.Source         = (*InstanceRepo)(nil)
)
