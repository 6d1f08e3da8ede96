// Package index 实现基于关系库EAV表的工作流实例属性索引（对外导出）
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LENAX/wengine/internal/metrics"
	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/LENAX/wengine/pkg/storage"
	"github.com/LENAX/wengine/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// AttributeIndex 实例属性索引
// 每个快照以一组 (instance_id, met_key, met_val) 行保存，键值均经过百分号编码
type AttributeIndex struct {
	db       *sqlx.DB
	dialect  storage.Dialect
	table    string
	compiler *Compiler
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	atomic   bool
	now      func() time.Time
	ids      IDFactory
}

// Option 索引选项
type Option func(*AttributeIndex)

// WithTable 设置属性表名
func WithTable(table string) Option {
	return func(x *AttributeIndex) {
		if table != "" {
			x.table = table
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(x *AttributeIndex) {
		x.logger = l
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(x *AttributeIndex) {
		x.metrics = m
	}
}

// WithAtomicWrites 多行写入使用单个事务
// 默认每行单独提交，中途失败会留下部分快照
func WithAtomicWrites(enabled bool) Option {
	return func(x *AttributeIndex) {
		x.atomic = enabled
	}
}

// WithClock 设置时钟，用于缺失CreationDate时的回退值
func WithClock(now func() time.Time) Option {
	return func(x *AttributeIndex) {
		if now != nil {
			x.now = now
		}
	}
}

// WithIDFactory 设置TransactionID生成器
func WithIDFactory(f IDFactory) Option {
	return func(x *AttributeIndex) {
		if f != nil {
			x.ids = f
		}
	}
}

// New 创建属性索引
// db: 已打开的连接池，每次操作从池中获取连接并在返回前归还
func New(db *sqlx.DB, dialect storage.Dialect, opts ...Option) *AttributeIndex {
	x := &AttributeIndex{
		db:      db,
		dialect: dialect,
		table:   DefaultTable,
		logger:  zerolog.Nop(),
		now:     time.Now,
		ids:     UUIDFactory{},
	}
	for _, opt := range opts {
		opt(x)
	}
	x.compiler = NewCompiler(x.table, WithCompoundOperand(dialect.CompoundOperand))
	return x
}

// Compiler 返回索引使用的查询编译器
func (x *AttributeIndex) Compiler() *Compiler {
	return x.compiler
}

// EnsureSchema 创建属性表及索引（幂等）
func (x *AttributeIndex) EnsureSchema(ctx context.Context) error {
	for _, stmt := range x.dialect.SchemaSQL(x.table) {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return ioErr("建表", "", err)
		}
	}
	return nil
}

// HasTransactionID 判断是否存在该id的任意一行
func (x *AttributeIndex) HasTransactionID(ctx context.Context, id TransactionID) (found bool, err error) {
	defer x.observe("has", time.Now(), &err)

	q := x.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1", colID, x.table, colID))
	var got string
	err = x.db.GetContext(ctx, &got, q, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("查询", id, err)
	}
	return true, nil
}

// Ingest 以新的TransactionID写入快照
// 回执时间戳取自CreationDate，缺失或无法解析时使用当前时间，且不回写
func (x *AttributeIndex) Ingest(ctx context.Context, buckets []*query.TermBucket) (r Receipt, err error) {
	defer x.observe("ingest", time.Now(), &err)

	id := x.ids.NewTransactionID()
	err = x.write(ctx, func(e sqlx.ExtContext) error {
		return x.insertRows(ctx, e, id, buckets)
	})
	if err != nil {
		return Receipt{}, err
	}
	x.logger.Debug().Str("instance_id", id.String()).Msg("快照已写入")
	return Receipt{TransactionID: id, Timestamp: x.creationFromBuckets(id, buckets)}, nil
}

// Delete 删除该id的所有行，id不存在时同样返回true
func (x *AttributeIndex) Delete(ctx context.Context, id TransactionID) (ok bool, err error) {
	defer x.observe("delete", time.Now(), &err)

	if err = x.deleteAll(ctx, x.db, id); err != nil {
		return false, err
	}
	x.logger.Debug().Str("instance_id", id.String()).Msg("快照已删除")
	return true, nil
}

// Reduce 删除桶中列出的 (键, 值) 行，不存在的组合直接忽略
func (x *AttributeIndex) Reduce(ctx context.Context, id TransactionID, buckets []*query.TermBucket) (ok bool, err error) {
	defer x.observe("reduce", time.Now(), &err)

	q := x.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s = ?", x.table, colID, colKey, colVal))
	err = x.write(ctx, func(e sqlx.ExtContext) error {
		for _, row := range flatten(id, buckets) {
			if _, err := e.ExecContext(ctx, q, row.InstanceID, row.Key, row.Value); err != nil {
				return ioErr("删除属性", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update 删除旧快照后以新的TransactionID重新写入，返回新回执
// 调用方必须改用新回执中的id
func (x *AttributeIndex) Update(ctx context.Context, id TransactionID, buckets []*query.TermBucket) (r Receipt, err error) {
	defer x.observe("update", time.Now(), &err)

	newID := x.ids.NewTransactionID()
	err = x.write(ctx, func(e sqlx.ExtContext) error {
		if err := x.deleteAll(ctx, e, id); err != nil {
			return err
		}
		return x.insertRows(ctx, e, newID, buckets)
	})
	if err != nil {
		return Receipt{}, err
	}
	x.logger.Debug().
		Str("old_instance_id", id.String()).
		Str("instance_id", newID.String()).
		Msg("快照已更新")
	return Receipt{TransactionID: newID, Timestamp: x.creationFromBuckets(newID, buckets)}, nil
}

// Query 返回命中表达式的所有回执，按 instance_id 升序
func (x *AttributeIndex) Query(ctx context.Context, expr query.Expression) (rs []Receipt, err error) {
	defer x.observe("query", time.Now(), &err)

	ids, err := x.matchingIDs(ctx, expr)
	if err != nil {
		return nil, err
	}
	return x.receipts(ctx, ids)
}

// QueryRange 返回按 instance_id 排序后命中结果的 [start, end) 切片，越界时截断到实际长度
func (x *AttributeIndex) QueryRange(ctx context.Context, expr query.Expression, start, end int) (rs []Receipt, err error) {
	defer x.observe("query_range", time.Now(), &err)

	ids, err := x.matchingIDs(ctx, expr)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if end > len(ids) {
		end = len(ids)
	}
	if start >= end {
		return []Receipt{}, nil
	}
	return x.receipts(ctx, ids[start:end])
}

// SizeOf 返回命中表达式的实例数量
func (x *AttributeIndex) SizeOf(ctx context.Context, expr query.Expression) (n int, err error) {
	defer x.observe("size_of", time.Now(), &err)

	q, err := x.compiler.CountSQL(expr)
	if err != nil {
		return 0, err
	}
	x.logger.Debug().Str("sql", q).Msg("统计查询")
	if err = x.db.GetContext(ctx, &n, q); err != nil {
		return 0, ioErr("统计", "", err)
	}
	return n, nil
}

// GetBuckets 将该id的所有行重建为单个名为 Workflows 的桶
// id不存在时返回空桶
func (x *AttributeIndex) GetBuckets(ctx context.Context, id TransactionID) (b *query.TermBucket, err error) {
	defer x.observe("get_buckets", time.Now(), &err)
	return x.loadBucket(ctx, id)
}

// GetBucketsMany 批量获取桶
func (x *AttributeIndex) GetBucketsMany(ctx context.Context, ids []TransactionID) (out map[TransactionID]*query.TermBucket, err error) {
	defer x.observe("get_buckets", time.Now(), &err)

	out = make(map[TransactionID]*query.TermBucket, len(ids))
	for _, id := range ids {
		b, err := x.loadBucket(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

func (x *AttributeIndex) loadBucket(ctx context.Context, id TransactionID) (*query.TermBucket, error) {
	q := x.db.Rebind(fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = ?", colID, colKey, colVal, x.table, colID))
	var rows []dao.AttributeDAO
	if err := x.db.SelectContext(ctx, &rows, q, string(id)); err != nil {
		return nil, ioErr("读取属性", id, err)
	}

	bucket := query.NewTermBucket(BucketName)
	for _, row := range rows {
		key, err := Decode(row.Key)
		if err != nil {
			return nil, ioErr("解码属性", id, err)
		}
		val, err := Decode(row.Value)
		if err != nil {
			return nil, ioErr("解码属性", id, err)
		}
		bucket.AddTerm(query.NewTerm(key, val))
	}
	return bucket, nil
}

func (x *AttributeIndex) matchingIDs(ctx context.Context, expr query.Expression) ([]TransactionID, error) {
	q, err := x.compiler.OrderedSQL(expr)
	if err != nil {
		return nil, err
	}
	x.logger.Debug().Str("sql", q).Msg("执行查询")

	var raw []string
	if err := x.db.SelectContext(ctx, &raw, q); err != nil {
		return nil, ioErr("查询", "", err)
	}
	ids := make([]TransactionID, len(raw))
	for i, s := range raw {
		ids[i] = TransactionID(s)
	}
	return ids, nil
}

func (x *AttributeIndex) receipts(ctx context.Context, ids []TransactionID) ([]Receipt, error) {
	out := make([]Receipt, 0, len(ids))
	for _, id := range ids {
		ts, err := x.creationFromStore(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Receipt{TransactionID: id, Timestamp: ts})
	}
	return out, nil
}

func (x *AttributeIndex) creationFromStore(ctx context.Context, id TransactionID) (time.Time, error) {
	q := x.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ?", colVal, x.table, colID, colKey))
	var raw []string
	if err := x.db.SelectContext(ctx, &raw, q, string(id), Encode(CreationDate)); err != nil {
		return time.Time{}, ioErr("读取CreationDate", id, err)
	}
	if len(raw) == 0 {
		return x.fallback(id, nil), nil
	}
	val, err := Decode(raw[0])
	if err != nil {
		return x.fallback(id, err), nil
	}
	ts, err := ParseDate(val)
	if err != nil {
		return x.fallback(id, err), nil
	}
	return ts, nil
}

func (x *AttributeIndex) creationFromBuckets(id TransactionID, buckets []*query.TermBucket) time.Time {
	for _, b := range buckets {
		term, ok := b.Term(CreationDate)
		if !ok || len(term.Values) == 0 {
			continue
		}
		ts, err := ParseDate(term.FirstValue())
		if err != nil {
			return x.fallback(id, err)
		}
		return ts
	}
	return x.fallback(id, nil)
}

// fallback 记录数据完整性告警并返回当前时间
func (x *AttributeIndex) fallback(id TransactionID, cause error) time.Time {
	now := x.now().UTC()
	w := &DataIntegrityWarning{ID: id, Key: CreationDate, Fallback: FormatDate(now), Cause: cause}
	x.logger.Warn().Str("instance_id", id.String()).Msg(w.Error())
	x.metrics.DataIntegrityWarning()
	return now
}

func (x *AttributeIndex) insertRows(ctx context.Context, e sqlx.ExtContext, id TransactionID, buckets []*query.TermBucket) error {
	q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (:instance_id, :met_key, :met_val)", x.table, colID, colKey, colVal)
	for _, row := range flatten(id, buckets) {
		if _, err := sqlx.NamedExecContext(ctx, e, q, row); err != nil {
			return ioErr("写入", id, err)
		}
	}
	return nil
}

func (x *AttributeIndex) deleteAll(ctx context.Context, e sqlx.ExtContext, id TransactionID) error {
	q := x.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", x.table, colID))
	if _, err := e.ExecContext(ctx, q, string(id)); err != nil {
		return ioErr("删除", id, err)
	}
	return nil
}

// write 默认每条语句单独从池中取连接执行，开启原子写入时整体包在一个事务中
func (x *AttributeIndex) write(ctx context.Context, fn func(sqlx.ExtContext) error) error {
	if !x.atomic {
		return fn(x.db)
	}
	err := runUnitOfWork(ctx, x.db, fn)
	var ioe *IndexIOError
	if err != nil && !errors.As(err, &ioe) {
		return ioErr("事务", "", err)
	}
	return err
}

func (x *AttributeIndex) observe(op string, start time.Time, errp *error) {
	x.metrics.ObserveIndexOp(op, start, *errp)
}

// flatten 将桶展开为编码后的行，多值Term每个值一行
func flatten(id TransactionID, buckets []*query.TermBucket) []dao.AttributeDAO {
	var rows []dao.AttributeDAO
	for _, b := range buckets {
		for _, term := range b.Terms() {
			key := Encode(term.Name)
			for _, v := range term.Values {
				rows = append(rows, dao.AttributeDAO{
					InstanceID: string(id),
					Key:        key,
					Value:      Encode(v),
				})
			}
		}
	}
	return rows
}
