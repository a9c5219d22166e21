package postgres

import (
	"context"
	"fmt"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

// SearchHistoryRepository 搜索记录仓储实现
type SearchHistoryRepository struct {
	client *Client
}

// NewSearchHistoryRepository 创建搜索记录仓储
func NewSearchHistoryRepository(client *Client) *SearchHistoryRepository {
	return &SearchHistoryRepository{client: client}
}

// Create 写入搜索记录
func (r *SearchHistoryRepository) Create(ctx context.Context, h *entity.SearchHistory) error {
	ctx, span := tracer.Start(ctx, "postgres.SearchHistoryRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(historyFromEntity(h)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create search history: %w", err)
	}
	return nil
}

// ListByUser 获取用户搜索记录
func (r *SearchHistoryRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.SearchHistory], error) {
	ctx, span := tracer.Start(ctx, "postgres.SearchHistoryRepository.ListByUser")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&SearchHistoryModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count search history: %w", err)
	}

	var rows []SearchHistoryModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}

	items := make([]*entity.SearchHistory, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toEntity())
	}
	return repository.NewPagedResult(items, total, pagination), nil
}
