package index

import (
	"time"

	"github.com/google/uuid"
)

const (
	// CreationDate 保留键，用于回执时间戳和默认排序
	CreationDate = "CreationDate"

	// DateLayout 日期类保留键的UTC格式
	DateLayout = "2006-01-02T15:04:05.000Z"

	// BucketName getBuckets 重建的桶名称
	BucketName = "Workflows"
)

// TransactionID 一次写入快照的唯一标识
type TransactionID string

func (id TransactionID) String() string {
	return string(id)
}

// IDFactory TransactionID生成器
type IDFactory interface {
	NewTransactionID() TransactionID
}

// UUIDFactory 基于UUID的TransactionID生成器
type UUIDFactory struct{}

// NewTransactionID 生成新的TransactionID
func (UUIDFactory) NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// Receipt 写入或查询命中的回执
type Receipt struct {
	TransactionID TransactionID `json:"transaction_id"`
	Timestamp     time.Time     `json:"timestamp"`
}

// FormatDate 按保留格式输出UTC时间
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate 解析保留格式的时间，同时兼容RFC3339
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
