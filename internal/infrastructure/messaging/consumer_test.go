package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/pkg/logger"
)

func testConsumer() *Consumer {
	return NewConsumer(nil, ConsumerConfig{
		Stream:       StreamRecommendations,
		Group:        ConsumerGroupRecommendation,
		ConsumerName: "worker-1",
		RetryLimit:   3,
		Backoff:      BackoffConfig{Initial: time.Second, Max: 8 * time.Second, Multiplier: 2},
	})
}

func streamEntry(t *testing.T, msg *Message) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(data)}}
}

func TestDecodeStreamMessage(t *testing.T) {
	msg, err := NewMessage("job-1", TypeRecommendation, "u-1", &RecommendationJobMessage{JobID: "job-1"})
	require.NoError(t, err)

	got, err := decodeStreamMessage(streamEntry(t, msg))
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, TypeRecommendation, got.Type)

	_, err = decodeStreamMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"other": "x"}})
	assert.Error(t, err)
	_, err = decodeStreamMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestPlanOwnPending(t *testing.T) {
	c := testConsumer()
	cases := []struct {
		name       string
		deliveries int64
		idle       time.Duration
		action     pendingAction
		minIdle    time.Duration
	}{
		{"backoff not elapsed", 1, 500 * time.Millisecond, pendingSkip, 0},
		{"backoff elapsed", 1, 3 * time.Second, pendingRetry, 2 * time.Second},
		{"second retry waits longer", 2, 3 * time.Second, pendingSkip, 0},
		{"retry limit reached", 3, 0, pendingDeadLetter, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, minIdle := c.planOwnPending(redis.XPendingExt{ID: "1-0", Consumer: "worker-1", Idle: tc.idle, RetryCount: tc.deliveries})
			assert.Equal(t, tc.action, action)
			assert.Equal(t, tc.minIdle, minIdle)
		})
	}
}

func TestPlanStalePending(t *testing.T) {
	c := testConsumer()
	idle := c.reclaimIdle

	action, _ := c.planStalePending(redis.XPendingExt{Consumer: "worker-1", Idle: 2 * idle, RetryCount: 1})
	assert.Equal(t, pendingSkip, action, "own entries are handled by processDuePending")

	action, _ = c.planStalePending(redis.XPendingExt{Consumer: "worker-2", Idle: idle / 2, RetryCount: 1})
	assert.Equal(t, pendingSkip, action)

	action, minIdle := c.planStalePending(redis.XPendingExt{Consumer: "worker-2", Idle: idle, RetryCount: 1})
	assert.Equal(t, pendingRetry, action)
	assert.Equal(t, idle, minIdle)

	action, minIdle = c.planStalePending(redis.XPendingExt{Consumer: "worker-2", Idle: idle, RetryCount: 3})
	assert.Equal(t, pendingDeadLetter, action)
	assert.Equal(t, idle, minIdle)
}

func TestReclaimIdleCoversMaxBackoff(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{Backoff: BackoffConfig{Initial: time.Second, Max: 10 * time.Minute, Multiplier: 2}})
	assert.Equal(t, 20*time.Minute, c.reclaimIdle)
	assert.Equal(t, 5*time.Minute, testConsumer().reclaimIdle)
}

func TestDLQEntryKeepsOriginalMessage(t *testing.T) {
	msg, err := NewMessage("job-9", TypeRecommendation, "u-9", &RecommendationJobMessage{JobID: "job-9", Query: "nlp"})
	require.NoError(t, err)
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	values, err := dlqEntry(StreamRecommendations, msg, errors.New("llm timeout"), failedAt)
	require.NoError(t, err)

	var entry struct {
		OriginalStream string  `json:"original_stream"`
		MessageType    string  `json:"message_type"`
		Data           Message `json:"data"`
		Error          string  `json:"error"`
		FailedAt       int64   `json:"failed_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &entry))
	assert.Equal(t, string(StreamRecommendations), entry.OriginalStream)
	assert.Equal(t, TypeRecommendation, entry.MessageType)
	assert.Equal(t, "job-9", entry.Data.ID)
	assert.Equal(t, "llm timeout", entry.Error)
	assert.Equal(t, failedAt.Unix(), entry.FailedAt)

	var payload RecommendationJobMessage
	require.NoError(t, entry.Data.UnmarshalPayload(&payload))
	assert.Equal(t, "nlp", payload.Query)
}

func TestMessageContextCarriesProducerIdentifiers(t *testing.T) {
	msg, err := NewMessage("job-3", TypeRecommendation, "u-3", struct{}{})
	require.NoError(t, err)
	msg.SetMetadata("request_id", "req-3")
	msg.SetMetadata("trace_id", "trace-3")

	ctx := messageContext(context.Background(), msg)
	assert.Equal(t, "u-3", ctx.Value(logger.UserIDKey))
	assert.Equal(t, "req-3", ctx.Value(logger.RequestIDKey))
	assert.Equal(t, "trace-3", ctx.Value(logger.TraceIDKey))
	assert.Equal(t, "job-3", ctx.Value(logger.JobIDKey))

	refresh, err := NewMessage("batch-1", TypeEmbeddingRefresh, "", struct{}{})
	require.NoError(t, err)
	ctx = messageContext(context.Background(), refresh)
	assert.Nil(t, ctx.Value(logger.JobIDKey))
	assert.Nil(t, ctx.Value(logger.UserIDKey))
}
