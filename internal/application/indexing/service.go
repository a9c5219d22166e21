// Package indexing 维护 profile embedding：单条刷新、批量回填与刷新任务投递
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/domain/service"
	"scholar-match-api/internal/infrastructure/messaging"
	"scholar-match-api/pkg/logger"
)

const (
	DefaultBatchSize = 32
	DefaultPoolSize  = 4
	maxEnqueue       = 1000
)

// ErrNoEmbedder 未配置 embedding 服务时无法刷新
var ErrNoEmbedder = errors.New("embedding provider is not configured")

// Embedder 批量向量化
type Embedder interface {
	Enabled() bool
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ProfileStore embedding 维护需要的 profile 读写能力
type ProfileStore interface {
	GetProfile(ctx context.Context, kind entity.ProfileKind, id string) (*entity.Profile, error)
	UpdateEmbedding(ctx context.Context, kind entity.ProfileKind, id string, vec []float32, at time.Time) error
	ListStaleEmbeddings(ctx context.Context, kind entity.ProfileKind, limit int) ([]*entity.Profile, error)
}

// Publisher 刷新任务投递
type Publisher interface {
	PublishEmbeddingRefresh(ctx context.Context, refresh *messaging.EmbeddingRefreshMessage) (string, error)
}

// Options 回填参数
type Options struct {
	BatchSize int
	PoolSize  int
}

// Stats 回填统计
type Stats struct {
	Embedded int64 `json:"embedded"`
	Failed   int64 `json:"failed"`
	Indexed  int64 `json:"indexed"`
}

// Service embedding 维护服务
type Service struct {
	profiles  ProfileStore
	embedder  Embedder
	index     repository.ProfileVectorIndex
	publisher Publisher
	opts      Options
	now       func() time.Time
}

// NewService index 与 publisher 可以为 nil
func NewService(profiles ProfileStore, embedder Embedder, index repository.ProfileVectorIndex, publisher Publisher, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	return &Service{
		profiles:  profiles,
		embedder:  embedder,
		index:     index,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Refresh 重新计算单个 profile 的 embedding。profile 不存在或没有可向量化的文本时跳过。
func (s *Service) Refresh(ctx context.Context, ref entity.ProfileRef) error {
	if s.embedder == nil || !s.embedder.Enabled() {
		return ErrNoEmbedder
	}
	p, err := s.profiles.GetProfile(ctx, ref.Kind, ref.ID)
	if err != nil {
		return fmt.Errorf("get profile %s: %w", ref, err)
	}
	if p == nil || strings.TrimSpace(p.EmbeddingText()) == "" {
		logger.Debug(ctx, "skip embedding refresh", "profile", ref.String())
		return nil
	}
	_, err = s.embedBatch(ctx, []*entity.Profile{p})
	return err
}

// Backfill 为所有缺失或过期 embedding 的 profile 计算向量，批次在 ants 协程池中并发执行
func (s *Service) Backfill(ctx context.Context, kinds []entity.ProfileKind) (*Stats, error) {
	if s.embedder == nil || !s.embedder.Enabled() {
		return nil, ErrNoEmbedder
	}
	if len(kinds) == 0 {
		kinds = entity.AllProfileKinds
	}
	pool, err := ants.NewPool(s.opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	ctx = service.WithWorkflow(ctx, service.WorkflowProfileIndex)
	stats := &Stats{}
	for _, kind := range kinds {
		for {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stale, err := s.profiles.ListStaleEmbeddings(ctx, kind, s.opts.BatchSize*s.opts.PoolSize)
			if err != nil {
				return stats, fmt.Errorf("list stale %s profiles: %w", kind, err)
			}
			if len(stale) == 0 {
				break
			}
			embedded := s.runRound(ctx, pool, stale, stats)
			logger.Info(ctx, "embedding backfill round finished",
				"profile_kind", string(kind), "batch", len(stale), "embedded", embedded)
			// 整轮全部失败时停止，避免对同一批数据无限重试
			if embedded == 0 {
				break
			}
		}
	}
	return stats, nil
}

func (s *Service) runRound(ctx context.Context, pool *ants.Pool, stale []*entity.Profile, stats *Stats) int64 {
	var (
		wg    sync.WaitGroup
		round atomic.Int64
	)
	for start := 0; start < len(stale); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(stale) {
			end = len(stale)
		}
		batch := stale[start:end]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			indexed, err := s.embedBatch(ctx, batch)
			if err != nil {
				atomic.AddInt64(&stats.Failed, int64(len(batch)))
				logger.Warn(ctx, "embedding batch failed", "size", len(batch), "error", err.Error())
				return
			}
			round.Add(int64(len(batch)))
			atomic.AddInt64(&stats.Embedded, int64(len(batch)))
			atomic.AddInt64(&stats.Indexed, int64(indexed))
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			atomic.AddInt64(&stats.Failed, int64(len(batch)))
			logger.Warn(ctx, "submit embedding batch failed", "error", err.Error())
		}
	}
	wg.Wait()
	return round.Load()
}

// embedBatch 向量化并写入 Postgres，再同步到外部索引。返回写入索引的数量。
func (s *Service) embedBatch(ctx context.Context, batch []*entity.Profile) (int, error) {
	texts := make([]string, 0, len(batch))
	keep := make([]*entity.Profile, 0, len(batch))
	for _, p := range batch {
		text := p.EmbeddingText()
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, text)
		keep = append(keep, p)
	}
	if len(keep) == 0 {
		return 0, nil
	}
	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed profiles: %w", err)
	}

	at := s.now()
	vectors := make([]repository.ProfileVector, 0, len(keep))
	for i, p := range keep {
		if err := s.profiles.UpdateEmbedding(ctx, p.Kind, p.ID, vecs[i], at); err != nil {
			return 0, fmt.Errorf("store embedding %s: %w", p.Ref(), err)
		}
		vectors = append(vectors, repository.ProfileVector{Ref: p.Ref(), Vector: vecs[i]})
	}

	if s.index == nil {
		return 0, nil
	}
	if err := s.index.Upsert(ctx, vectors); err != nil {
		// Postgres 中的向量已更新，索引下次回填时补齐
		logger.Warn(ctx, "vector index upsert failed", "provider", s.index.Name(), "error", err.Error())
		return 0, nil
	}
	return len(vectors), nil
}

// EnqueueRefresh 投递刷新任务。ids 为空时投递该类型全部过期 profile。
func (s *Service) EnqueueRefresh(ctx context.Context, kind entity.ProfileKind, ids []string) (int, error) {
	if s.publisher == nil {
		return 0, errors.New("embedding refresh queue is not configured")
	}
	if len(ids) == 0 {
		stale, err := s.profiles.ListStaleEmbeddings(ctx, kind, maxEnqueue)
		if err != nil {
			return 0, fmt.Errorf("list stale %s profiles: %w", kind, err)
		}
		for _, p := range stale {
			ids = append(ids, p.ID)
		}
	}
	seen := make(map[string]struct{}, len(ids))
	n := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.publisher.PublishEmbeddingRefresh(ctx, &messaging.EmbeddingRefreshMessage{
			ProfileKind: string(kind),
			ProfileID:   id,
		}); err != nil {
			return n, fmt.Errorf("publish refresh for %s: %w", id, err)
		}
		n++
	}
	logger.Info(ctx, "embedding refresh enqueued", "profile_kind", string(kind), "count", n)
	return n, nil
}

// HandleMessage 适配消息消费者
func (s *Service) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.EmbeddingRefreshMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		logger.Warn(ctx, "malformed embedding refresh message, dropping", "message_id", msg.ID, "error", err.Error())
		return nil
	}
	kind, ok := entity.ParseProfileKind(payload.ProfileKind)
	if !ok {
		logger.Warn(ctx, "unknown profile kind in refresh message", "profile_kind", payload.ProfileKind)
		return nil
	}
	ctx = service.WithWorkflow(ctx, service.WorkflowProfileIndex)
	return s.Refresh(ctx, entity.ProfileRef{Kind: kind, ID: payload.ProfileID})
}
