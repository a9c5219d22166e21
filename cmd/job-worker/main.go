// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"scholar-match-api/internal/config"
	"scholar-match-api/internal/infrastructure/eino/callback"
	"scholar-match-api/internal/infrastructure/messaging"
	"scholar-match-api/internal/wire"
	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	callback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	rs := cfg.Messaging.RedisStream
	name := hostnameConsumerName()
	newConsumer := func(stream messaging.Stream, group messaging.ConsumerGroup) *messaging.Consumer {
		return messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
			Stream:        stream,
			Group:         group.WithPrefix(rs.ConsumerGroupPrefix),
			ConsumerName:  name,
			BlockTimeout:  rs.BlockTimeout,
			ClaimInterval: rs.ClaimInterval,
			RetryLimit:    rs.RetryLimit,
			Backoff: messaging.BackoffConfig{
				Initial:    rs.RetryBackoff.Initial,
				Max:        rs.RetryBackoff.Max,
				Multiplier: rs.RetryBackoff.Multiplier,
			},
		})
	}

	recommendations := newConsumer(messaging.StreamRecommendations, messaging.ConsumerGroupRecommendation)
	recommendations.RegisterHandler(messaging.TypeRecommendation, worker.Recommendations.HandleMessage)

	embeddings := newConsumer(messaging.StreamEmbeddings, messaging.ConsumerGroupIndexer)
	embeddings.RegisterHandler(messaging.TypeEmbeddingRefresh, worker.Indexing.HandleMessage)

	consumers := []*messaging.Consumer{recommendations, embeddings}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
		go c.MonitorDLQ(ctx, dlqAlertThreshold)
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "consumer", name)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	cancel()
	for _, c := range consumers {
		c.Stop()
	}
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
