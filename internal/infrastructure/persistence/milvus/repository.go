package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

// ProfileIndex 基于 Milvus 的 profile 向量索引
type ProfileIndex struct {
	client *Client
	dim    int
}

// NewProfileIndex 创建 profile 向量索引
func NewProfileIndex(client *Client, dim int) *ProfileIndex {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &ProfileIndex{client: client, dim: dim}
}

// Name 提供方名称
func (r *ProfileIndex) Name() string { return "milvus" }

func (r *ProfileIndex) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// HealthCheck 检查 Milvus 连接
func (r *ProfileIndex) HealthCheck(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.client.HealthCheck(ctx)
}

// EnsureReady 确保集合与索引可用（不存在则创建），不做 drop/rebuild
func (r *ProfileIndex) EnsureReady(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureReady")
	defer span.End()

	exists, err := r.client.HasCollection(ctx, CollectionProfileVectors)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := r.createCollection(ctx); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return r.client.LoadCollection(ctx, CollectionProfileVectors)
}

func (r *ProfileIndex) createCollection(ctx context.Context) error {
	collName := r.client.CollectionName(CollectionProfileVectors)
	if err := r.client.milvus.CreateCollection(ctx, ProfileVectorsSchema(collName, r.dim), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	m, ef := r.client.config.HNSWM, r.client.config.HNSWEfConstruction
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 200
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, ef)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := r.client.milvus.CreateIndex(ctx, collName, fieldVector, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Search 余弦相似度检索，结果按相似度降序
func (r *ProfileIndex) Search(ctx context.Context, q repository.VectorQuery) ([]repository.VectorHit, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.Int("top_k", q.TopK),
			attribute.Int("kinds", len(q.Kinds)),
		))
	defer span.End()

	if len(q.Vector) == 0 || q.TopK <= 0 {
		return []repository.VectorHit{}, nil
	}

	ef := r.client.config.SearchEf
	if ef < q.TopK {
		ef = q.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(CollectionProfileVectors),
		nil,
		kindFilter(q.Kinds),
		[]string{fieldProfileKind, fieldProfileID},
		[]entity.Vector{entity.FloatVector(q.Vector)},
		fieldVector,
		entity.COSINE,
		q.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]repository.VectorHit, 0, q.TopK)
	for _, result := range results {
		kindCol, _ := result.Fields.GetColumn(fieldProfileKind).(*entity.ColumnVarChar)
		idCol, _ := result.Fields.GetColumn(fieldProfileID).(*entity.ColumnVarChar)
		if kindCol == nil || idCol == nil {
			continue
		}
		for i := 0; i < result.ResultCount; i++ {
			hits = append(hits, repository.VectorHit{
				Ref: domain.ProfileRef{
					Kind: domain.ProfileKind(kindCol.Data()[i]),
					ID:   idCol.Data()[i],
				},
				Score: float64(result.Scores[i]),
			})
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Upsert 写入或覆盖 profile 向量
func (r *ProfileIndex) Upsert(ctx context.Context, vectors []repository.ProfileVector) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.Int("count", len(vectors))))
	defer span.End()

	if len(vectors) == 0 {
		return nil
	}

	ids := make([]string, len(vectors))
	vecs := make([][]float32, len(vectors))
	kinds := make([]string, len(vectors))
	profileIDs := make([]string, len(vectors))
	for i, v := range vectors {
		if len(v.Vector) != r.dim {
			return fmt.Errorf("vector for %s has dimension %d, want %d", v.Ref, len(v.Vector), r.dim)
		}
		ids[i] = v.Ref.String()
		vecs[i] = v.Vector
		kinds[i] = string(v.Ref.Kind)
		profileIDs[i] = v.Ref.ID
	}

	_, err := r.client.milvus.Upsert(ctx, r.client.CollectionName(CollectionProfileVectors), "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dim, vecs),
		entity.NewColumnVarChar(fieldProfileKind, kinds),
		entity.NewColumnVarChar(fieldProfileID, profileIDs),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// kindFilter profile_kind 只有一个字段，用 OR 拼接
func kindFilter(kinds []domain.ProfileKind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = domain.ProfileKind(strings.TrimSpace(string(k)))
		if k == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, fieldProfileKind, k))
	}
	return strings.Join(parts, " || ")
}
