package callback

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"scholar-match-api/internal/domain/service"
	"scholar-match-api/pkg/metrics"
)

func TestChatModelHandlerCountsSuccess(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithWorkflowProvider(context.Background(), service.WorkflowMatchInsight, "test-provider")
	counter := metrics.LLMCallTotal.WithLabelValues(service.WorkflowMatchInsight, "test-provider", "m1", "success")
	before := testutil.ToFloat64(counter)

	ctx = h.OnStart(ctx, &einocb.RunInfo{Name: "insight"}, &model.CallbackInput{Config: &model.Config{Model: "m1"}})
	assert.NotNil(t, ctx.Value(startTimeKey{}))
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Message:    schema.AssistantMessage("ok", nil),
		Config:     &model.Config{Model: "m1"},
		TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestEmbeddingHandlerCountsErrors(t *testing.T) {
	h := newEmbeddingCallbackHandler()
	ctx := service.WithWorkflow(context.Background(), service.WorkflowProfileIndex)
	counter := metrics.EmbeddingCallTotal.WithLabelValues(service.WorkflowProfileIndex, "OpenAI", "error")
	before := testutil.ToFloat64(counter)

	ctx = h.OnStart(ctx, nil, &embedding.CallbackInput{Texts: []string{"a"}})
	h.OnError(ctx, &einocb.RunInfo{Type: "OpenAI"}, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestElapsedSecondsWithoutStart(t *testing.T) {
	assert.Zero(t, elapsedSeconds(context.Background()))
}
