package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scholar-match-api/pkg/logger"
	"scholar-match-api/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 消息消费者
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   maxDuration(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	// 确保消费者组存在
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

// run 消费循环：先处理到期重试与闲置条目，再阻塞读取新消息
func (c *Consumer) run(ctx context.Context) {
	logger.Info(ctx, "consumer started", "stream", string(c.stream), "group", string(c.group), "consumer", c.consumerName)

	lastClaim := time.Now().Add(-c.claimInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "consumer stopped due to context cancellation", "stream", string(c.stream))
			return
		case <-c.stopCh:
			logger.Info(ctx, "consumer stopped", "stream", string(c.stream))
			return
		default:
		}

		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "failed to read from stream", err, "stream", string(c.stream))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// errRetriesExhausted 认领时已超过重试上限的消息写入死信队列时使用的原因
var errRetriesExhausted = errors.New("message exceeded max retries")

// decodeStreamMessage 从 stream 条目的 data 字段解析消息
func decodeStreamMessage(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode stream entry %s: %w", xmsg.ID, err)
	}
	return &msg, nil
}

// processMessage 处理单条消息。无法解析或没有处理器的消息直接确认丢弃。
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decodeStreamMessage(xmsg)
	if err != nil {
		logger.Error(ctx, "dropping malformed stream entry", err, "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return
	}
	ctx = messageContext(ctx, msg)
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !exists {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "error").Inc()
		logger.Error(ctx, "handler failed", err, "message_id", msg.ID, "type", msg.Type)
		c.handleFailure(ctx, xmsg.ID, msg, err)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
	c.ack(ctx, xmsg.ID)
}

// messageContext 把生产者写入的用户、请求与 trace 标识带入日志 context
func messageContext(ctx context.Context, msg *Message) context.Context {
	if msg.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, msg.UserID)
	}
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}
	if msg.Type == TypeRecommendation && msg.ID != "" {
		ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)
	}
	return ctx
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

// handleFailure 未到重试上限的消息保留在 pending 中，由 processDuePending 按退避重新投递
func (c *Consumer) handleFailure(ctx context.Context, entryID string, msg *Message, cause error) {
	deliveries := c.deliveryCount(ctx, entryID)
	if !c.exhausted(deliveries) {
		logger.Info(ctx, "message left pending for retry", "message_id", msg.ID, "deliveries", deliveries)
		return
	}
	logger.Warn(ctx, "message moved to DLQ after max retries", "message_id", msg.ID, "deliveries", deliveries)
	c.moveToDLQ(ctx, msg, cause)
	c.ack(ctx, entryID)
}

// exhausted 投递次数达到重试上限
func (c *Consumer) exhausted(deliveries int) bool {
	return deliveries >= c.retryLimit
}

// deliveryCount 通过 XPENDING 读取条目的投递次数，查询失败按 0 处理
func (c *Consumer) deliveryCount(ctx context.Context, entryID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// dlqEntry 死信条目，保留原始消息与失败原因
func dlqEntry(stream Stream, msg *Message, cause error, failedAt time.Time) (map[string]interface{}, error) {
	data, err := json.Marshal(map[string]interface{}{
		"original_stream": string(stream),
		"message_type":    msg.Type,
		"data":            msg,
		"error":           cause.Error(),
		"failed_at":       failedAt.Unix(),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"data": string(data)}, nil
}

// moveToDLQ 写入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, cause error) {
	dlq := c.stream.DLQStream()
	values, err := dlqEntry(c.stream, msg, cause, time.Now())
	if err == nil {
		err = c.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err()
	}
	if err != nil {
		logger.Error(ctx, "failed to write DLQ message", err, "stream", dlq, "message_id", msg.ID)
	}
}

// pendingAction pending 条目的处理方式
type pendingAction int

const (
	pendingSkip pendingAction = iota
	pendingRetry
	pendingDeadLetter
)

// planOwnPending 本消费者名下的 pending 条目：超过上限进死信，退避到期后重试
func (c *Consumer) planOwnPending(p redis.XPendingExt) (pendingAction, time.Duration) {
	deliveries := int(p.RetryCount)
	if c.exhausted(deliveries) {
		return pendingDeadLetter, 0
	}
	backoff := c.backoff.CalculateBackoff(deliveries)
	if p.Idle < backoff {
		return pendingSkip, 0
	}
	return pendingRetry, backoff
}

// planStalePending 其他消费者名下闲置超过 reclaimIdle 的条目，通常是 worker 崩溃留下的
func (c *Consumer) planStalePending(p redis.XPendingExt) (pendingAction, time.Duration) {
	if p.Consumer == c.consumerName || c.reclaimIdle <= 0 || p.Idle < c.reclaimIdle {
		return pendingSkip, 0
	}
	if c.exhausted(int(p.RetryCount)) {
		return pendingDeadLetter, c.reclaimIdle
	}
	return pendingRetry, c.reclaimIdle
}

func (c *Consumer) processDuePending(ctx context.Context) {
	c.drainPending(ctx, c.consumerName, c.planOwnPending)
}

func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}
	c.drainPending(ctx, "", c.planStalePending)
}

// drainPending 查询 pending 条目，按 plan 认领后重试或移入死信队列。consumer 为空时查询整个组。
func (c *Consumer) drainPending(ctx context.Context, consumer string, plan func(redis.XPendingExt) (pendingAction, time.Duration)) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error(ctx, "failed to query pending messages", err, "stream", string(c.stream))
		}
		return
	}

	for _, p := range pending {
		action, minIdle := plan(p)
		if action == pendingSkip {
			continue
		}
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    string(c.group),
			Consumer: c.consumerName,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			logger.Error(ctx, "failed to claim pending message", err, "message_id", p.ID)
			continue
		}
		for _, xmsg := range claimed {
			if action == pendingDeadLetter {
				c.deadLetter(ctx, xmsg)
				continue
			}
			c.processMessage(ctx, xmsg)
		}
	}
}

// deadLetter 将已认领的条目移入死信队列并确认，无法解析的条目只确认
func (c *Consumer) deadLetter(ctx context.Context, xmsg redis.XMessage) {
	if msg, err := decodeStreamMessage(xmsg); err == nil {
		c.moveToDLQ(ctx, msg, errRetriesExhausted)
	}
	c.ack(ctx, xmsg.ID)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// MonitorDLQ 监控死信队列
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			dlqStream := c.stream.DLQStream()
			info, err := c.client.XInfoStream(ctx, dlqStream).Result()
			if err != nil {
				continue
			}

			metrics.RedisStreamDLQ.WithLabelValues(string(c.stream)).Set(float64(info.Length))
			if info.Length > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages", "stream", dlqStream, "count", info.Length)
			}
		}
	}
}
