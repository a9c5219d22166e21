package matching

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/metrics"
)

const (
	DefaultCacheTTL    = 30 * time.Minute
	DefaultCachePrefix = "ai_match:v1:"
)

// ResultStore 结果缓存的键值存储
type ResultStore interface {
	// Get 未命中时返回 nil, false, nil
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix 尽力删除前缀下的键，返回删除数量
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// CacheKey 参与缓存键计算的请求字段
type CacheKey struct {
	Query       string
	SearchType  string
	Page        int
	RequesterID string
	StudentType string
}

// ResultCache 读穿透的搜索结果缓存。后端异常视为未命中。
type ResultCache struct {
	store  ResultStore
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// NewResultCache store 为 nil 时每次都重新计算
func NewResultCache(store ResultStore, ttl time.Duration, prefix string) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &ResultCache{store: store, ttl: ttl, prefix: prefix}
}

// Prefix 返回缓存键前缀
func (c *ResultCache) Prefix() string { return c.prefix }

// Key 计算确定性的缓存键
func (c *ResultCache) Key(k CacheKey) string {
	h := sha256.New()
	for _, part := range []string{
		NormalizeQuery(k.Query),
		strings.ToLower(k.SearchType),
		strconv.Itoa(k.Page),
		k.RequesterID,
		strings.ToLower(k.StudentType),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

// ComputeFunc 计算一次结果。cacheable 为 false 时结果只返回给本次请求，不写入缓存。
type ComputeFunc func(ctx context.Context) (payload []byte, cacheable bool, err error)

// GetOrCompute 命中时原样返回缓存内容；未命中时计算并写入。
// 同一进程内相同 key 的并发未命中只计算一次，计算不受单个调用方取消的影响。
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]byte, bool, error) {
	if c.store != nil {
		if payload, ok := c.get(ctx, key); ok {
			return payload, true, nil
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if c.store != nil {
			if payload, ok := c.get(shared, key); ok {
				return payload, nil
			}
		}
		payload, cacheable, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if !cacheable {
			metrics.MatchingDegradedTotal.WithLabelValues("uncached").Inc()
			logger.Warn(shared, "degraded result served without caching", "key", key)
			return payload, nil
		}
		if c.store != nil {
			if err := c.store.Set(shared, key, payload, c.ttl); err != nil {
				metrics.MatchingDegradedTotal.WithLabelValues("cache").Inc()
				logger.Warn(shared, "result cache write failed", "key", key, "error", err.Error())
			}
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

func (c *ResultCache) get(ctx context.Context, key string) ([]byte, bool) {
	payload, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.MatchingDegradedTotal.WithLabelValues("cache").Inc()
		logger.Warn(ctx, "result cache read failed, treating as miss", "key", key, "error", err.Error())
		return nil, false
	}
	if !ok || len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// Flush 尽力清除本缓存前缀下的所有键
func (c *ResultCache) Flush(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.DeletePrefix(ctx, c.prefix)
}
