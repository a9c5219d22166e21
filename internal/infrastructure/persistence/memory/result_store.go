// Package memory 提供进程内结果缓存，用于单实例部署或 Redis 不可用时
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultSize = 1024

type entry struct {
	value     []byte
	expiresAt time.Time
}

// ResultStore 基于 LRU 的结果缓存，容量满时淘汰最久未使用的项
type ResultStore struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// NewResultStore maxTTL 为条目的最长存活时间
func NewResultStore(size int, maxTTL time.Duration) *ResultStore {
	if size <= 0 {
		size = defaultSize
	}
	return &ResultStore{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get 获取缓存值
func (s *ResultStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set 写入缓存，ttl<=0 时只受 maxTTL 约束
func (s *ResultStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

// DeletePrefix 删除前缀下的全部键
func (s *ResultStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) && s.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Len 当前条目数
func (s *ResultStore) Len() int {
	return s.lru.Len()
}
