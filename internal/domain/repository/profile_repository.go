package repository

import (
	"context"
	"time"

	"scholar-match-api/internal/domain/entity"
)

// CandidateFilter 候选 profile 过滤条件
type CandidateFilter struct {
	Kinds                         []entity.ProfileKind
	ExcludeUserID                 string
	IDs                           []string // 非空时只返回这些 ID
	RequireVerified               bool
	RequireSupervisorAvailability bool
	RequireComplete               bool
	Limit                         int
}

// EmbeddingCoverage 某类 profile 的 embedding 覆盖情况
type EmbeddingCoverage struct {
	Kind          entity.ProfileKind `json:"profile_type"`
	Total         int64              `json:"total"`
	WithEmbedding int64              `json:"with_embedding"`
}

// ProfileRepository profile 读取与 embedding 维护
type ProfileRepository interface {
	// ListCandidates 按 Kinds 顺序拼接，总数不超过 Limit；无结果返回空切片
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]*entity.Profile, error)

	// GetProfile 不存在时返回 nil, nil
	GetProfile(ctx context.Context, kind entity.ProfileKind, id string) (*entity.Profile, error)

	// GetByUserID 获取用户自己的 profile，不存在时返回 nil, nil
	GetByUserID(ctx context.Context, kind entity.ProfileKind, userID string) (*entity.Profile, error)

	// UpdateEmbedding 写入 embedding 并更新时间戳
	UpdateEmbedding(ctx context.Context, kind entity.ProfileKind, id string, vec []float32, at time.Time) error

	// ListStaleEmbeddings 获取缺失或过期 embedding 的 profile
	ListStaleEmbeddings(ctx context.Context, kind entity.ProfileKind, limit int) ([]*entity.Profile, error)

	// EmbeddingCoverage 统计 embedding 覆盖率
	EmbeddingCoverage(ctx context.Context) ([]EmbeddingCoverage, error)
}
