//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"scholar-match-api/internal/application/indexing"
	"scholar-match-api/internal/application/matching"
	"scholar-match-api/internal/application/recommendation"
	"scholar-match-api/internal/config"
	"scholar-match-api/internal/domain/repository"
	"scholar-match-api/internal/infrastructure/messaging"
	"scholar-match-api/internal/infrastructure/persistence/postgres"
	"scholar-match-api/internal/infrastructure/persistence/redis"
	"scholar-match-api/internal/interfaces/http/handler"
	"scholar-match-api/internal/interfaces/http/middleware"
	"scholar-match-api/internal/interfaces/http/router"
	"scholar-match-api/internal/workflow/prompt"
)

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		EmbeddingSet,
		MatchingSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker 依赖
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		EmbeddingSet,
		MatchingSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于迁移）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnly, func(), error) {
	wire.Build(
		PostgresSet,
		wire.Struct(new(PostgresOnly), "*"),
	)
	return nil, nil, nil
}

// InitializeBackfill 初始化 embedding 回填依赖，不连接 Redis
func InitializeBackfill(ctx context.Context, cfg *config.Config) (*Backfill, func(), error) {
	wire.Build(
		RepoSet,
		VectorSet,
		EmbeddingSet,
		ProvideBackfillIndexer,
		wire.Struct(new(Backfill), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewJobRepository,
	postgres.NewProfileRepository,
	postgres.NewSearchHistoryRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.JobRepository), new(*postgres.JobRepository)),
	wire.Bind(new(matching.ProfileReader), new(*postgres.ProfileRepository)),
	wire.Bind(new(matching.CoverageReader), new(*postgres.ProfileRepository)),
	wire.Bind(new(matching.HistoryRecorder), new(*postgres.SearchHistoryRepository)),
	wire.Bind(new(indexing.ProfileStore), new(*postgres.ProfileRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewRateLimiter,
	ProvideRateLimitKeyFunc,
	ProvideResultStore,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(recommendation.Publisher), new(*messaging.Producer)),
	wire.Bind(new(indexing.Publisher), new(*messaging.Producer)),
)

// VectorSet 可选向量索引（未启用或不可达时为 nil）
var VectorSet = wire.NewSet(
	ProvideVectorIndex,
)

// EmbeddingSet 可选 Embedder（不可用时退化为关键词匹配）
var EmbeddingSet = wire.NewSet(
	ProvideEmbedderOptional,
	ProvideEmbeddingAdapter,
	wire.Bind(new(indexing.Embedder), new(*matching.EmbeddingAdapter)),
)

// MatchingSet 匹配、推荐与索引服务
var MatchingSet = wire.NewSet(
	ProvideChatModelFactory,
	prompt.NewRegistry,
	ProvideInsightGenerator,
	ProvideClassifier,
	ProvideRanker,
	ProvideResultCache,
	ProvideMatchingService,
	ProvideRecommendationService,
	ProvideIndexingService,
	wire.Bind(new(recommendation.Recommender), new(*matching.Service)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewMatchingHandler,
	handler.NewRecommendationHandler,
	handler.NewAdminHandler,
	wire.Bind(new(handler.MatchingService), new(*matching.Service)),
	wire.Bind(new(handler.MatchingAdmin), new(*matching.Service)),
	wire.Bind(new(handler.RecommendationService), new(*recommendation.Service)),
	wire.Bind(new(handler.EmbeddingRefresher), new(*indexing.Service)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
