// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"errors"

	"scholar-match-api/internal/domain/entity"
)

// ErrActiveJobExists 用户已有 pending/running 任务时 Create 返回
var ErrActiveJobExists = errors.New("user already has an active recommendation job")

// JobRepository 推荐任务仓储接口
type JobRepository interface {
	// LockUser 在当前事务内串行化同一用户的任务创建，事务结束时释放
	LockUser(ctx context.Context, userID string) error

	// Create 创建任务，违反每用户一个进行中任务的约束时返回 ErrActiveJobExists
	Create(ctx context.Context, job *entity.RecommendationJob) error

	// GetByID 根据 ID 获取任务，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.RecommendationJob, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.RecommendationJob) error

	// UpdateProgress 更新任务进度（0-100）
	UpdateProgress(ctx context.Context, id string, progress int) error

	// FindActiveByUser 获取用户未结束的任务
	FindActiveByUser(ctx context.Context, userID string) (*entity.RecommendationJob, error)

	// ListByUser 分页获取用户任务，按创建时间倒序
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.RecommendationJob], error)
}
