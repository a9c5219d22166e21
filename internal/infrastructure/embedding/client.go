// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"

	"scholar-match-api/internal/config"
)

const (
	defaultBatchSize = 32
	providerHTTP     = "HTTP"
)

// Client 自托管 embedding 服务（POST /embed）的客户端，实现 eino embedding.Embedder
type Client struct {
	endpoint   string
	model      string
	dimension  int
	batchSize  int
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewClient 创建 HTTP embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetType 组件类型名
func (c *Client) GetType() string { return providerHTTP }

// IsCallbacksEnabled 由 EmbedStrings 自行触发回调
func (c *Client) IsCallbacksEnabled() bool { return true }

// EmbedStrings 分批调用服务，返回与输入等长的向量
func (c *Client) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) (vecs [][]float64, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, c.GetType(), components.ComponentOfEmbedding)
	ctx = callbacks.OnStart(ctx, &embedding.CallbackInput{
		Texts:  texts,
		Config: &embedding.Config{Model: c.model},
	})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	all := make([][]float64, 0, len(texts))
	tokens := 0
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := c.doBatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("embedding batch size mismatch: got %d, want %d", len(resp.Embeddings), end-i)
		}
		for _, v := range resp.Embeddings {
			if c.dimension > 0 && len(v) != c.dimension {
				return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), c.dimension)
			}
		}
		tokens += resp.TokensUsed
		all = append(all, resp.Embeddings...)
	}

	callbacks.OnEnd(ctx, &embedding.CallbackOutput{
		Embeddings: all,
		Config:     &embedding.Config{Model: c.model},
		TokenUsage: &embedding.TokenUsage{PromptTokens: tokens, TotalTokens: tokens},
	})
	return all, nil
}

func (c *Client) doBatchEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{
		Texts: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding request failed: status=%d", httpResp.StatusCode)
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return &resp, nil
}
