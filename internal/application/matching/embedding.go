package matching

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/pkg/metrics"
)

var (
	// ErrEmbeddingDisabled 未配置 embedding 服务
	ErrEmbeddingDisabled = errors.New("embedding provider is not configured")
	// ErrVectorIndexDisabled 未配置向量索引或请求者不在灰度范围内
	ErrVectorIndexDisabled = errors.New("vector index is disabled")
)

// RolloutGate 按请求者稳定分桶的灰度开关
type RolloutGate struct {
	Enabled    bool
	Percentage int
}

// Allows key 所在分桶是否在灰度范围内，同一 key 结果稳定
func (g RolloutGate) Allows(key string) bool {
	if !g.Enabled || g.Percentage <= 0 {
		return false
	}
	if g.Percentage >= 100 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()%100) < g.Percentage
}

// EmbeddingAdapter 封装 embedding 服务与可选的外部向量索引
type EmbeddingAdapter struct {
	embedder embedding.Embedder
	index    repository.ProfileVectorIndex
	rollout  RolloutGate
	model    string
}

// NewEmbeddingAdapter embedder 或 index 为 nil 表示对应能力未配置
func NewEmbeddingAdapter(embedder embedding.Embedder, index repository.ProfileVectorIndex, rollout RolloutGate, model string) *EmbeddingAdapter {
	return &EmbeddingAdapter{
		embedder: embedder,
		index:    index,
		rollout:  rollout,
		model:    model,
	}
}

// Enabled embedding 服务是否可用
func (a *EmbeddingAdapter) Enabled() bool {
	return a != nil && a.embedder != nil
}

// Model 返回 embedding 模型名
func (a *EmbeddingAdapter) Model() string {
	if a == nil {
		return ""
	}
	return a.model
}

// Rollout 返回灰度配置
func (a *EmbeddingAdapter) Rollout() RolloutGate {
	if a == nil {
		return RolloutGate{}
	}
	return a.rollout
}

// IndexName 返回向量索引提供方，未配置时为空
func (a *EmbeddingAdapter) IndexName() string {
	if a == nil || a.index == nil {
		return ""
	}
	return a.index.Name()
}

// EmbedText 单条文本向量化
func (a *EmbeddingAdapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts 批量向量化，返回与输入等长的结果
func (a *EmbeddingAdapter) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if !a.Enabled() {
		return nil, ErrEmbeddingDisabled
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}
	v64, err := a.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed strings: %w", err)
	}
	if len(v64) != len(texts) {
		return nil, fmt.Errorf("embedding result size mismatch: got %d, want %d", len(v64), len(texts))
	}
	out := make([][]float32, len(v64))
	for i, vec := range v64 {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding result at %d", i)
		}
		f := make([]float32, len(vec))
		for j, x := range vec {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}

// ProfileVector 优先使用已存储的 embedding，否则实时计算
func (a *EmbeddingAdapter) ProfileVector(ctx context.Context, p *entity.Profile) ([]float32, error) {
	if p == nil {
		return nil, fmt.Errorf("profile is nil")
	}
	if p.HasEmbedding && len(p.Embedding) > 0 {
		return p.Embedding, nil
	}
	text := p.EmbeddingText()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("profile %s has no text to embed", p.Ref())
	}
	return a.EmbedText(ctx, text)
}

// UseIndex 该请求者是否走外部向量索引
func (a *EmbeddingAdapter) UseIndex(requesterKey string) bool {
	return a != nil && a.index != nil && a.rollout.Allows(requesterKey)
}

// SearchIndex 在外部向量索引中检索
func (a *EmbeddingAdapter) SearchIndex(ctx context.Context, vec []float32, kinds []entity.ProfileKind, topK int) ([]repository.VectorHit, error) {
	if a == nil || a.index == nil {
		return nil, ErrVectorIndexDisabled
	}
	provider := a.index.Name()
	start := time.Now()
	hits, err := a.index.Search(ctx, repository.VectorQuery{Vector: vec, Kinds: kinds, TopK: topK})
	metrics.VectorSearchDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VectorSearchTotal.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("%s search: %w", provider, err)
	}
	metrics.VectorSearchTotal.WithLabelValues(provider, "success").Inc()
	return hits, nil
}
