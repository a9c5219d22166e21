package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-match-api/internal/config"
)

func TestClientBatchesRequests(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, req.Texts)
		out := embedResponse{}
		for range req.Texts {
			out.Embeddings = append(out.Embeddings, []float64{1, 0})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(&config.EmbeddingConfig{Endpoint: srv.URL, Model: "m", BatchSize: 2, Dimension: 2})
	vecs, err := c.EmbedStrings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batches)
}

func TestClientRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,0,0]]}`))
	}))
	defer srv.Close()

	c := NewClient(&config.EmbeddingConfig{Endpoint: srv.URL, Dimension: 2})
	_, err := c.EmbedStrings(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(&config.EmbeddingConfig{Endpoint: srv.URL})
	_, err := c.EmbedStrings(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "status=502")
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, &config.EmbeddingConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = New(ctx, &config.EmbeddingConfig{Provider: "http", Endpoint: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, e)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "http"})
	assert.Error(t, err)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}
