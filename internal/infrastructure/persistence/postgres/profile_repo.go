package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

// completeProfileSQL 至少有一项可用于匹配的文本
const completeProfileSQL = "(COALESCE(btrim(bio), '') <> '' OR COALESCE(cardinality(research_expertise), 0) > 0 OR COALESCE(field_of_study, '') <> '')"

// ProfileRepository 三类 profile 表的统一读取
type ProfileRepository struct {
	client *Client
}

// NewProfileRepository 创建 profile 仓储
func NewProfileRepository(client *Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// ListCandidates 按 Kinds 顺序逐表查询，每表按创建时间排序
func (r *ProfileRepository) ListCandidates(ctx context.Context, filter repository.CandidateFilter) ([]*entity.Profile, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.ListCandidates")
	defer span.End()

	out := make([]*entity.Profile, 0)
	for _, kind := range filter.Kinds {
		remaining := 0
		if filter.Limit > 0 {
			remaining = filter.Limit - len(out)
			if remaining <= 0 {
				break
			}
		}
		rows, err := r.listKind(ctx, kind, filter, remaining)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for i := range rows {
			out = append(out, rows[i].toEntity(kind))
		}
	}
	return out, nil
}

func (r *ProfileRepository) listKind(ctx context.Context, kind entity.ProfileKind, filter repository.CandidateFilter, limit int) ([]profileRow, error) {
	table := profileTable(kind)
	if table == "" {
		return nil, fmt.Errorf("unknown profile kind %q", kind)
	}

	query := getDB(ctx, r.client.db).Table(table).Select(profileSelect(kind))
	if filter.ExcludeUserID != "" {
		query = query.Where("user_id <> ?", filter.ExcludeUserID)
	}
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if kind == entity.ProfileAcademician {
		if filter.RequireVerified {
			query = query.Where("verified = ?", true)
		}
		if filter.RequireSupervisorAvailability {
			query = query.Where("availability_as_supervisor = ?", true)
		}
	}
	if filter.RequireComplete {
		query = query.Where(completeProfileSQL)
	}
	query = query.Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []profileRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s candidates: %w", kind, err)
	}
	return rows, nil
}

// GetProfile 根据 ID 获取 profile
func (r *ProfileRepository) GetProfile(ctx context.Context, kind entity.ProfileKind, id string) (*entity.Profile, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.GetProfile")
	defer span.End()

	p, err := r.first(ctx, kind, "id = ?", id)
	if err != nil {
		span.RecordError(err)
	}
	return p, err
}

// GetByUserID 根据用户 ID 获取 profile
func (r *ProfileRepository) GetByUserID(ctx context.Context, kind entity.ProfileKind, userID string) (*entity.Profile, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.GetByUserID")
	defer span.End()

	p, err := r.first(ctx, kind, "user_id = ?", userID)
	if err != nil {
		span.RecordError(err)
	}
	return p, err
}

func (r *ProfileRepository) first(ctx context.Context, kind entity.ProfileKind, where string, arg any) (*entity.Profile, error) {
	table := profileTable(kind)
	if table == "" {
		return nil, fmt.Errorf("unknown profile kind %q", kind)
	}
	var row profileRow
	err := getDB(ctx, r.client.db).Table(table).Select(profileSelect(kind)).Where(where, arg).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s profile: %w", kind, err)
	}
	return row.toEntity(kind), nil
}

// UpdateEmbedding 写入 embedding
func (r *ProfileRepository) UpdateEmbedding(ctx context.Context, kind entity.ProfileKind, id string, vec []float32, at time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.UpdateEmbedding")
	defer span.End()

	table := profileTable(kind)
	if table == "" {
		return fmt.Errorf("unknown profile kind %q", kind)
	}
	v := pgvector.NewVector(vec)
	res := getDB(ctx, r.client.db).Table(table).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"embedding":            v,
		"has_embedding":        len(vec) > 0,
		"embedding_updated_at": at,
	})
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update %s embedding: %w", kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s profile %s not found", kind, id)
	}
	return nil
}

// ListStaleEmbeddings 获取缺失 embedding 或资料在 embedding 之后更新过的 profile
func (r *ProfileRepository) ListStaleEmbeddings(ctx context.Context, kind entity.ProfileKind, limit int) ([]*entity.Profile, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.ListStaleEmbeddings")
	defer span.End()

	table := profileTable(kind)
	if table == "" {
		return nil, fmt.Errorf("unknown profile kind %q", kind)
	}
	query := getDB(ctx, r.client.db).Table(table).Select(profileSelect(kind)).
		Where("has_embedding = ? OR embedding_updated_at IS NULL OR embedding_updated_at < updated_at", false).
		Where(completeProfileSQL).
		Order("updated_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []profileRow
	if err := query.Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stale %s embeddings: %w", kind, err)
	}
	out := make([]*entity.Profile, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity(kind))
	}
	return out, nil
}

// EmbeddingCoverage 统计各表 embedding 覆盖率
func (r *ProfileRepository) EmbeddingCoverage(ctx context.Context) ([]repository.EmbeddingCoverage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProfileRepository.EmbeddingCoverage")
	defer span.End()

	out := make([]repository.EmbeddingCoverage, 0, len(entity.AllProfileKinds))
	for _, kind := range entity.AllProfileKinds {
		var counts struct {
			Total         int64
			WithEmbedding int64
		}
		err := getDB(ctx, r.client.db).Table(profileTable(kind)).
			Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE has_embedding) AS with_embedding").
			Scan(&counts).Error
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to count %s embeddings: %w", kind, err)
		}
		out = append(out, repository.EmbeddingCoverage{
			Kind:          kind,
			Total:         counts.Total,
			WithEmbedding: counts.WithEmbedding,
		})
	}
	return out, nil
}
