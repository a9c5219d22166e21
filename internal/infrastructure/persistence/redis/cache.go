package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var cacheTracer = otel.Tracer("redis.cache")

const scanBatch = 500

// ResultStore 匹配结果缓存，值为序列化后的响应字节
type ResultStore struct {
	client *Client
}

// NewResultStore 创建结果缓存
func NewResultStore(client *Client) *ResultStore {
	return &ResultStore{client: client}
}

// Get 获取缓存值，未命中时返回 ok=false
func (s *ResultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := s.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, true, nil
}

// Set 设置缓存值
func (s *ResultStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	if err := s.client.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// DeletePrefix 用 SCAN 分批删除前缀下的键，返回删除数量
func (s *ResultStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := prefix + "*"
	ctx, span := cacheTracer.Start(ctx, "cache.DeletePrefix",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	deleted := 0
	iter := s.client.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				span.RecordError(err)
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return deleted, err
	}
	if err := flush(); err != nil {
		span.RecordError(err)
		return deleted, err
	}

	span.SetAttributes(attribute.Int("cache.invalidated_count", deleted))
	return deleted, nil
}
