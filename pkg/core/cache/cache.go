// Package cache 带过期时间的内存缓存（对外导出）
package cache

import (
	"sync"
	"time"
)

// cacheEntry 缓存条目（内部使用）
type cacheEntry[V any] struct {
	value      V
	expireTime time.Time
}

// TTLCache 内存缓存，条目在ttl后过期（对外导出）
// 后台协程定期清理过期条目，不再使用时需调用Close
type TTLCache[V any] struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry[V]
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New 创建缓存
// ttl: 条目有效期
// cleanInterval: 清理周期，<=0 时不启动清理协程
func New[V any](ttl, cleanInterval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		cache: make(map[string]*cacheEntry[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanInterval > 0 {
		go c.cleanupExpired(cleanInterval)
	}
	return c
}

// Set 设置缓存值，空key忽略
func (c *TTLCache[V]) Set(key string, value V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = &cacheEntry[V]{value: value, expireTime: c.now().Add(c.ttl)}
}

// Get 获取缓存值，过期条目视为不存在
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()
	if !exists {
		return zero, false
	}
	if c.now().After(entry.expireTime) {
		c.Delete(key)
		return zero, false
	}
	return entry.value, true
}

// Delete 删除缓存值
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

// Clear 清空所有缓存
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry[V])
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Close 停止清理协程
func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupExpired 清理过期缓存（内部方法）
func (c *TTLCache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *TTLCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.cache {
		if now.After(entry.expireTime) {
			delete(c.cache, key)
		}
	}
}
