// Package qdrant 通过 REST API 访问 Qdrant 向量数据库
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scholar-match-api/internal/config"
	"scholar-match-api/internal/domain/entity"
	"scholar-match-api/internal/domain/repository"
)

const (
	payloadNamespaceKey = "namespace"
	payloadKindKey      = "profile_kind"
	payloadIDKey        = "profile_id"
	maxBodyBytes        = 10 * 1024
	defaultCollection   = "profile_vectors"
)

var (
	tracer = otel.Tracer("qdrant")

	pointIDNamespace = uuid.MustParse("5b7c8a8e-3f59-4d9b-9a55-2c64b9f0d1a7")

	// ErrCollectionNotFound 集合不存在
	ErrCollectionNotFound = errors.New("qdrant collection not found")
)

// StatusError Qdrant 返回非 2xx 状态
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s: http status=%d body=%q", e.Op, e.Status, e.Body)
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type searchItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// ProfileIndex 基于 Qdrant 的 profile 向量索引
type ProfileIndex struct {
	baseURL    string
	apiKey     string
	collection string
	namespace  string
	dim        int
	http       *http.Client
}

// NewProfileIndex 创建 Qdrant 索引，不发起网络请求
func NewProfileIndex(cfg *config.QdrantConfig, dim int) (*ProfileIndex, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = defaultCollection
	}
	return &ProfileIndex{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		namespace:  strings.TrimSpace(cfg.NamespacePrefix),
		dim:        dim,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

// Name 提供方名称
func (s *ProfileIndex) Name() string { return "qdrant" }

// EnsureReady 集合不存在时按余弦距离创建，存在时校验维度
func (s *ProfileIndex) EnsureReady(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "qdrant.EnsureReady",
		trace.WithAttributes(attribute.String("collection", s.collection)))
	defer span.End()

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, "get_collection", http.MethodGet, s.collectionPath(""), nil, &info)
	if errors.Is(err, ErrCollectionNotFound) {
		req := map[string]any{
			"vectors": map[string]any{"size": s.dim, "distance": "Cosine"},
		}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if size := info.Config.Params.Vectors.Size; size != 0 && s.dim > 0 && size != s.dim {
		return fmt.Errorf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.collection, s.dim, size)
	}
	if d := info.Config.Params.Vectors.Distance; d != "" && !strings.EqualFold(d, "cosine") {
		return fmt.Errorf("qdrant collection %q uses %s distance, cosine required", s.collection, d)
	}
	return nil
}

// HealthCheck 检查集合可访问
func (s *ProfileIndex) HealthCheck(ctx context.Context) error {
	return s.doJSON(ctx, "get_collection", http.MethodGet, s.collectionPath(""), nil, nil)
}

// Search 余弦相似度检索
func (s *ProfileIndex) Search(ctx context.Context, q repository.VectorQuery) ([]repository.VectorHit, error) {
	ctx, span := tracer.Start(ctx, "qdrant.Search",
		trace.WithAttributes(attribute.Int("top_k", q.TopK)))
	defer span.End()

	if len(q.Vector) == 0 || q.TopK <= 0 {
		return []repository.VectorHit{}, nil
	}
	if s.dim > 0 && len(q.Vector) != s.dim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.dim, len(q.Vector))
	}

	req := map[string]any{
		"vector":       q.Vector,
		"limit":        q.TopK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       s.filter(q.Kinds),
	}
	var items []searchItem
	if err := s.doJSON(ctx, "search", http.MethodPost, s.collectionPath("/points/search"), req, &items); err != nil {
		span.RecordError(err)
		return nil, err
	}

	hits := make([]repository.VectorHit, 0, len(items))
	for _, it := range items {
		kind, _ := it.Payload[payloadKindKey].(string)
		id, _ := it.Payload[payloadIDKey].(string)
		if kind == "" || id == "" {
			continue
		}
		hits = append(hits, repository.VectorHit{
			Ref:   entity.ProfileRef{Kind: entity.ProfileKind(kind), ID: id},
			Score: it.Score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Upsert 写入或覆盖 profile 向量
func (s *ProfileIndex) Upsert(ctx context.Context, vectors []repository.ProfileVector) error {
	if len(vectors) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "qdrant.Upsert",
		trace.WithAttributes(attribute.Int("count", len(vectors))))
	defer span.End()

	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Vector) == 0 {
			return fmt.Errorf("vector %s has empty values", v.Ref)
		}
		if s.dim > 0 && len(v.Vector) != s.dim {
			return fmt.Errorf("vector %s dimension mismatch: expected=%d got=%d", v.Ref, s.dim, len(v.Vector))
		}
		points = append(points, map[string]any{
			"id":     s.PointID(v.Ref),
			"vector": v.Vector,
			"payload": map[string]any{
				payloadNamespaceKey: s.namespace,
				payloadKindKey:      string(v.Ref.Kind),
				payloadIDKey:        v.Ref.ID,
			},
		})
	}
	if err := s.doJSON(ctx, "upsert", http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// PointID Qdrant 要求 UUID 或整数主键，按 namespace 与 kind:id 生成确定性 UUID
func (s *ProfileIndex) PointID(ref entity.ProfileRef) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(s.namespace+"|"+ref.String())).String()
}

func (s *ProfileIndex) filter(kinds []entity.ProfileKind) map[string]any {
	must := []map[string]any{
		{"key": payloadNamespaceKey, "match": map[string]any{"value": s.namespace}},
	}
	if len(kinds) > 0 {
		values := make([]string, 0, len(kinds))
		for _, k := range kinds {
			values = append(values, string(k))
		}
		must = append(must, map[string]any{"key": payloadKindKey, "match": map[string]any{"any": values}})
	}
	return map[string]any{"must": must}
}

func (s *ProfileIndex) collectionPath(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func (s *ProfileIndex) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("qdrant %s: encode request: %w", op, err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("qdrant %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes*100))
	if err != nil {
		return fmt.Errorf("qdrant %s: read response: %w", op, err)
	}
	if resp.StatusCode == http.StatusNotFound && op == "get_collection" {
		return ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := string(raw)
		if len(b) > maxBodyBytes/10 {
			b = b[:maxBodyBytes/10]
		}
		return &StatusError{Op: op, Status: resp.StatusCode, Body: b}
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("qdrant %s: decode envelope: %w", op, err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("qdrant %s: decode result: %w", op, err)
	}
	return nil
}
