package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeQueryParams(t *testing.T) {
	defaults := map[string]string{"_busy_timeout": "30000", "_journal_mode": "WAL"}

	assert.Equal(t, "./a.db?_busy_timeout=30000&_journal_mode=WAL", MergeQueryParams("./a.db", defaults))
	// 已有参数不被覆盖
	assert.Equal(t,
		"file:a.db?_busy_timeout=5&_journal_mode=WAL&cache=shared",
		MergeQueryParams("file:a.db?cache=shared&_busy_timeout=5", defaults))
	assert.Equal(t, "./a.db", MergeQueryParams("./a.db", nil))
}
