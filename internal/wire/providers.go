package wire

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"scholar-match-api/internal/application/indexing"
	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/application/recommendation"
	"scholar-match-api/internal/config"
	"scholar-match-api/internal/domain/repository"
	infraembedding "scholar-match-api/internal/infrastructure/embedding"
	"scholar-match-api/internal/infrastructure/llm"
	"scholar-match-api/internal/infrastructure/messaging"
	"scholar-match-api/internal/infrastructure/persistence/memory"
	"scholar-match-api/internal/infrastructure/persistence/milvus"
	"scholar-match-api/internal/infrastructure/persistence/postgres"
	"scholar-match-api/internal/infrastructure/persistence/qdrant"
	"scholar-match-api/internal/infrastructure/persistence/redis"
	"scholar-match-api/internal/interfaces/http/handler"
	"scholar-match-api/internal/interfaces/http/middleware"
	"scholar-match-api/internal/workflow/port"
	"scholar-match-api/internal/workflow/prompt"
	"scholar-match-api/pkg/logger"
)

// Worker job-worker 依赖容器
type Worker struct {
	RedisClient     *redis.Client
	Recommendations *recommendation.Service
	Indexing        *indexing.Service
}

// PostgresOnly 仅包含 PostgreSQL 的数据层（用于迁移）
type PostgresOnly struct {
	PgClient *postgres.Client
}

// Backfill embedding 回填依赖容器
type Backfill struct {
	VectorIndex repository.ProfileVectorIndex
	Indexing    *indexing.Service
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRateLimitKeyFunc 限流 key 构造
func ProvideRateLimitKeyFunc() middleware.KeyFunc {
	return redis.BuildUserRateLimitKey
}

// ProvideResultStore 按 cache.driver 选择结果缓存存储
func ProvideResultStore(cfg *config.Config, client *redis.Client) matching.ResultStore {
	if cfg.Cache.Driver == "memory" {
		return memory.NewResultStore(cfg.Cache.Memory.Size, cfg.Matching.CacheTTL)
	}
	return redis.NewResultStore(client)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), maxLen)
}

// ProvideVectorIndex 可选向量索引，不可达时不阻塞启动
func ProvideVectorIndex(ctx context.Context, cfg *config.Config) (repository.ProfileVectorIndex, func(), error) {
	noop := func() {}
	if !cfg.Vector.Enabled {
		return nil, noop, nil
	}
	dim := cfg.Embedding.Dimension

	if cfg.Vector.Provider == "qdrant" {
		idx, err := qdrant.NewProfileIndex(&cfg.Vector.Qdrant, dim)
		if err != nil {
			logger.Warn(ctx, "qdrant not available, vector index disabled", "error", err.Error())
			return nil, noop, nil
		}
		return idx, noop, nil
	}

	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector index disabled", "error", err.Error())
		return nil, noop, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return milvus.NewProfileIndex(client, dim), cleanup, nil
}

// ProvideEmbedderOptional 不可用时返回 nil，匹配退化为关键词
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embedder, err := infraembedding.New(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, semantic matching disabled", "error", err.Error())
		return nil
	}
	return embedder
}

func ProvideEmbeddingAdapter(cfg *config.Config, embedder einoembedding.Embedder, index repository.ProfileVectorIndex) *matching.EmbeddingAdapter {
	rollout := matching.RolloutGate{
		Enabled:    cfg.Vector.Enabled && index != nil,
		Percentage: cfg.Vector.RolloutPercentage,
	}
	return matching.NewEmbeddingAdapter(embedder, index, rollout, cfg.Embedding.Model)
}

// ProvideChatModelFactory 解读 provider 缺少凭据时返回 nil，解读只走模板
func ProvideChatModelFactory(ctx context.Context, cfg *config.Config) port.ChatModelFactory {
	factory := llm.NewEinoFactory(&cfg.LLM)
	if !factory.Configured(cfg.Insight.Provider) {
		logger.Warn(ctx, "llm provider not configured, insights use templates",
			"provider", cfg.Insight.Provider, "available", factory.Providers())
		return nil
	}
	return factory
}

func ProvideInsightGenerator(cfg *config.Config, models port.ChatModelFactory, prompts *prompt.Registry) *matching.InsightGenerator {
	ic := cfg.Insight
	return matching.NewInsightGenerator(models, prompts, matching.InsightOptions{
		Enabled:     ic.Enabled,
		Provider:    ic.Provider,
		Timeout:     ic.Timeout,
		Concurrency: ic.Concurrency,
		Breaker: matching.BreakerOptions{
			MaxRequests:  ic.Breaker.MaxRequests,
			Interval:     ic.Breaker.Interval,
			Timeout:      ic.Breaker.Timeout,
			MinRequests:  ic.Breaker.MinRequests,
			FailureRatio: ic.Breaker.FailureRatio,
		},
	})
}

func ProvideClassifier(cfg *config.Config) *matching.Classifier {
	return matching.NewClassifier(cfg.Matching.BaseThreshold, cfg.Matching.SpecificThreshold)
}

func ProvideRanker(cfg *config.Config) *matching.Ranker {
	return matching.NewRanker(cfg.Matching.CandidateLimit)
}

func ProvideResultCache(cfg *config.Config, store matching.ResultStore) *matching.ResultCache {
	return matching.NewResultCache(store, cfg.Matching.CacheTTL, cfg.Matching.CacheKeyPrefix)
}

// ProvideMatchingService 提供匹配服务
func ProvideMatchingService(
	cfg *config.Config,
	profiles matching.ProfileReader,
	coverage matching.CoverageReader,
	embeddings *matching.EmbeddingAdapter,
	classifier *matching.Classifier,
	ranker *matching.Ranker,
	insights *matching.InsightGenerator,
	cache *matching.ResultCache,
	history matching.HistoryRecorder,
) *matching.Service {
	return matching.NewService(profiles, coverage, embeddings, classifier, ranker, insights, cache, history, matching.Options{
		PerPage:        cfg.Matching.PerPage,
		CandidateLimit: cfg.Matching.CandidateLimit,
		SearchTimeout:  cfg.Matching.SearchTimeout,
		CacheDriver:    cfg.Cache.Driver,
	})
}

// ProvideRecommendationService 提供推荐任务服务
func ProvideRecommendationService(
	cfg *config.Config,
	jobs repository.JobRepository,
	tx repository.Transactor,
	publisher recommendation.Publisher,
	recommender recommendation.Recommender,
) *recommendation.Service {
	return recommendation.NewService(jobs, tx, publisher, recommender, recommendation.Options{
		MaxMatches: cfg.Worker.RecommendationTop,
		MaxRetries: cfg.Messaging.RedisStream.RetryLimit,
	})
}

// ProvideIndexingService 提供 embedding 维护服务
func ProvideIndexingService(
	cfg *config.Config,
	profiles indexing.ProfileStore,
	embedder indexing.Embedder,
	index repository.ProfileVectorIndex,
	publisher indexing.Publisher,
) *indexing.Service {
	return indexing.NewService(profiles, embedder, index, publisher, indexing.Options{
		BatchSize: cfg.Worker.BackfillBatchSize,
		PoolSize:  cfg.Worker.EmbeddingPoolSize,
	})
}

// ProvideBackfillIndexer 回填只在本进程执行，不需要投递能力
func ProvideBackfillIndexer(
	cfg *config.Config,
	profiles indexing.ProfileStore,
	embedder indexing.Embedder,
	index repository.ProfileVectorIndex,
) *indexing.Service {
	return indexing.NewService(profiles, embedder, index, nil, indexing.Options{
		BatchSize: cfg.Worker.BackfillBatchSize,
		PoolSize:  cfg.Worker.EmbeddingPoolSize,
	})
}

// ProvideHealthHandler 向量索引未启用时不做探测
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client, index repository.ProfileVectorIndex) *handler.HealthHandler {
	var vector handler.VectorIndexChecker
	if checker, ok := index.(handler.VectorIndexChecker); ok {
		vector = checker
	}
	return handler.NewHealthHandler(pg, redisClient, vector, cfg.App.Version)
}
