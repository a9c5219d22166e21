package repository

import (
	"context"

	"scholar-match-api/internal/domain/entity"
)

// VectorQuery 向量检索参数
type VectorQuery struct {
	Vector []float32
	Kinds  []entity.ProfileKind
	TopK   int
}

// VectorHit 检索命中，Score 为余弦相似度
type VectorHit struct {
	Ref   entity.ProfileRef
	Score float64
}

// ProfileVector 待写入索引的 profile 向量
type ProfileVector struct {
	Ref    entity.ProfileRef
	Vector []float32
}

// ProfileVectorIndex 外部向量索引（Milvus / Qdrant）
type ProfileVectorIndex interface {
	// Name 返回提供方名称，用于指标与诊断
	Name() string
	// EnsureReady 确保集合存在并已加载
	EnsureReady(ctx context.Context) error
	// Search 按相似度降序返回命中
	Search(ctx context.Context, q VectorQuery) ([]VectorHit, error)
	// Upsert 写入或覆盖 profile 向量
	Upsert(ctx context.Context, vectors []ProfileVector) error
}
