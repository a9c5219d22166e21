package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scholar-match-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.SetMetadata("request_id", reqID)
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishRecommendationJob 发布导师推荐任务
func (p *Producer) PublishRecommendationJob(ctx context.Context, job *RecommendationJobMessage) (string, error) {
	msg, err := NewMessage(job.JobID, TypeRecommendation, job.UserID, job)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamRecommendations, msg)
}

// PublishEmbeddingRefresh 发布 profile embedding 刷新任务
func (p *Producer) PublishEmbeddingRefresh(ctx context.Context, refresh *EmbeddingRefreshMessage) (string, error) {
	msg, err := NewMessage(refresh.ProfileKind+":"+refresh.ProfileID, TypeEmbeddingRefresh, "", refresh)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamEmbeddings, msg)
}
