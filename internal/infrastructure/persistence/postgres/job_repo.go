// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

// JobRepository 推荐任务仓储实现
type JobRepository struct {
	client *Client
}

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.RecommendationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(jobFromEntity(job)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrActiveJobExists
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// LockUser 获取按用户划分的事务级 advisory lock，必须在事务内调用
func (r *JobRepository) LockUser(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.LockUser")
	defer span.End()

	tx := txFromContext(ctx)
	if tx == nil {
		return errors.New("lock user jobs: no transaction in context")
	}
	if err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", jobLockKey(userID)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to lock user jobs: %w", err)
	}
	return nil
}

func jobLockKey(userID string) string {
	return "recommendation_jobs:" + userID
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.RecommendationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var m RecommendationJobModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return m.toEntity(), nil
}

// Update 更新任务
func (r *JobRepository) Update(ctx context.Context, job *entity.RecommendationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(jobFromEntity(job)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// UpdateProgress 更新任务进度
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.UpdateProgress")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&RecommendationJobModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"progress":   progress,
		"updated_at": time.Now(),
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// FindActiveByUser 获取用户最近一个未结束的任务
func (r *JobRepository) FindActiveByUser(ctx context.Context, userID string) (*entity.RecommendationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.FindActiveByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var m RecommendationJobModel
	err := db.Where("user_id = ? AND status IN ?", userID,
		[]string{string(entity.JobStatusPending), string(entity.JobStatusRunning)}).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return m.toEntity(), nil
}

// ListByUser 获取用户任务列表
func (r *JobRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.RecommendationJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&RecommendationJobModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	var rows []RecommendationJobModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*entity.RecommendationJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toEntity())
	}
	return repository.NewPagedResult(jobs, total, pagination), nil
}
