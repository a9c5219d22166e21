package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/config"
)

func testConfig() *config.LLMConfig {
	return &config.LLMConfig{
		DefaultProvider: "openai",
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "sk-test", BaseURL: "http://localhost:1/v1", Model: "gpt-4o-mini", MaxTokens: 100},
			"empty":  {Model: "x"},
		},
	}
}

func TestFactoryCachesModels(t *testing.T) {
	f := NewEinoFactory(testConfig())
	m1, err := f.Get(context.Background(), "")
	require.NoError(t, err)
	m2, err := f.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestFactoryUnknownAndUnconfigured(t *testing.T) {
	f := NewEinoFactory(testConfig())
	_, err := f.Get(context.Background(), "missing")
	assert.Error(t, err)
	_, err = f.Get(context.Background(), "empty")
	assert.Error(t, err)

	assert.True(t, f.Configured(""))
	assert.False(t, f.Configured("empty"))
	assert.Equal(t, []string{"empty", "openai"}, f.Providers())
}
