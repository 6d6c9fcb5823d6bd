package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
	MaxRetries int
}

type qdrantVectorStore struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
	vectorSize int
	distance   string
	maxRetries int
}

const qdrantScrollPageSize = 256

// NewQdrantVectorStore 创建Qdrant向量存储
func NewQdrantVectorStore(opts QdrantOptions) (VectorStore, error) {
	if opts.Endpoint == "" {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://localhost:6333", scheme)
	}

	if !strings.HasPrefix(opts.Endpoint, "http") {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://%s", scheme, opts.Endpoint)
	}

	if opts.Collection == "" {
		opts.Collection = "testweaver_memory"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "Cosine"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &qdrantVectorStore{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		vectorSize: opts.VectorSize,
		distance:   formatDistance(opts.Distance),
		maxRetries: opts.MaxRetries,
	}, nil
}

func formatDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "dotproduct":
		return "Dot"
	case "euclid", "l2":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (s *qdrantVectorStore) ensureCollection(ctx context.Context) error {
	resp, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil)
	if err == nil && resp.StatusCode == http.StatusOK {
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	resp, err = s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return s.classifyStatus(resp, "create collection")
}

func (s *qdrantVectorStore) Upsert(ctx context.Context, points []Point) (UpsertResult, error) {
	if len(points) == 0 {
		return UpsertResult{}, nil
	}

	if err := s.ensureCollection(ctx); err != nil {
		return failAll(points, err)
	}

	qdrantPoints := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		qdrantPoints = append(qdrantPoints, map[string]interface{}{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]interface{}{
				"logical_id": p.Payload.LogicalID,
				"text":       p.Payload.Text,
				"meta":       p.Payload.Meta,
			},
		})
	}

	payload := map[string]interface{}{"points": qdrantPoints}
	resp, err := s.doRequest(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", s.collection), payload)
	if err != nil {
		return failAll(points, err)
	}
	defer resp.Body.Close()

	if err := s.classifyStatus(resp, "upsert"); err != nil {
		return failAll(points, err)
	}

	result := UpsertResult{SucceededIDs: make([]uint64, 0, len(points))}
	for _, p := range points {
		result.SucceededIDs = append(result.SucceededIDs, p.ID)
	}
	return result, nil
}

func failAll(points []Point, err error) (UpsertResult, error) {
	result := UpsertResult{FailedIDs: make([]uint64, 0, len(points))}
	for _, p := range points {
		result.FailedIDs = append(result.FailedIDs, p.ID)
	}
	return result, err
}

func (s *qdrantVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if qf := qdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := s.classifyStatus(resp, "search"); err != nil {
		return nil, err
	}

	var searchResp struct {
		Result []struct {
			ID      uint64          `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, apperrors.NewBackendRejectedError("qdrant search response malformed").WithCause(err)
	}

	results := make([]ScoredPoint, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		payload, err := decodePayload(item.Payload)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredPoint{
			ID:      item.ID,
			Score:   item.Score,
			Payload: payload,
		})
	}

	// 后端的同分顺序不保证稳定，客户端统一按分数降序、point id升序
	SortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *qdrantVectorStore) List(ctx context.Context, filter *Filter) ([]Payload, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var payloads []Payload
	var offset interface{}

	// scroll分页，向调用方暴露为单一序列
	for {
		body := map[string]interface{}{
			"limit":        qdrantScrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		if qf := qdrantFilter(filter); qf != nil {
			body["filter"] = qf
		}

		resp, err := s.doRequest(ctx, http.MethodPost,
			fmt.Sprintf("/collections/%s/points/scroll", s.collection), body)
		if err != nil {
			return nil, err
		}

		if err := s.classifyStatus(resp, "scroll"); err != nil {
			resp.Body.Close()
			return nil, err
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID      uint64          `json:"id"`
					Payload json.RawMessage `json:"payload"`
				} `json:"points"`
				NextPageOffset interface{} `json:"next_page_offset"`
			} `json:"result"`
		}
		err = json.NewDecoder(resp.Body).Decode(&scrollResp)
		resp.Body.Close()
		if err != nil {
			return nil, apperrors.NewBackendRejectedError("qdrant scroll response malformed").WithCause(err)
		}

		for _, pt := range scrollResp.Result.Points {
			payload, err := decodePayload(pt.Payload)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, payload)
		}

		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			return payloads, nil
		}
		offset = scrollResp.Result.NextPageOffset
	}
}

func (s *qdrantVectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	body := map[string]interface{}{"points": ids}
	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// qdrant对不存在的id静默忽略，与no-op语义一致
	return s.classifyStatus(resp, "delete")
}

func (s *qdrantVectorStore) Ready() bool {
	return s.client != nil
}

// qdrantFilter 转换为qdrant的payload过滤表达式
func qdrantFilter(filter *Filter) map[string]interface{} {
	if filter == nil {
		return nil
	}
	var must []map[string]interface{}
	if filter.SourceType != "" {
		must = append(must, map[string]interface{}{
			"key":   "meta.source_type",
			"match": map[string]interface{}{"value": filter.SourceType},
		})
	}
	if filter.SourceName != "" {
		must = append(must, map[string]interface{}{
			"key":   "meta.source_name",
			"match": map[string]interface{}{"value": filter.SourceName},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]interface{}{"must": must}
}

func decodePayload(raw json.RawMessage) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, apperrors.NewDataIntegrityError("stored payload is not decodable").WithCause(err)
	}
	if err := ValidatePayload(payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

// classifyStatus 将HTTP状态归类到错误分类
func (s *qdrantVectorStore) classifyStatus(resp *http.Response, op string) error {
	if resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := fmt.Sprintf("qdrant %s failed: %s %s", op, resp.Status, string(raw))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewBackendUnavailableError(msg)
	}
	return apperrors.NewBackendRejectedError(msg)
}

// doRequest 发送请求，连接类失败做有限次退避重试后归类为后端不可达
func (s *qdrantVectorStore) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apperrors.NewBackendRejectedError("request body not serializable").WithCause(err)
		}
	}

	backoff := 200 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.NewBackendUnavailableError("qdrant request cancelled").WithCause(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
		if err != nil {
			return nil, apperrors.NewBackendRejectedError("invalid qdrant request").WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, apperrors.NewBackendUnavailableError("qdrant is unreachable").WithCause(lastErr)
}
