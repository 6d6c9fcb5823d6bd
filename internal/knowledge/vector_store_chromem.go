package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// ChromemOptions 内嵌向量存储配置
type ChromemOptions struct {
	Collection string
}

// chromemVectorStore 进程内向量存储，基于纯Go的chromem-go
// 用于本地运行模式和测试，无需外部Qdrant/Milvus
// chromem不提供文档枚举，List由适配器自己维护的id索引支撑；
// 该索引与进程同生命周期，所以只支持内存模式，不落盘
type chromemVectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu       sync.RWMutex
	payloads map[uint64]Payload
}

// NewChromemVectorStore 创建内嵌向量存储
func NewChromemVectorStore(opts ChromemOptions) (VectorStore, error) {
	if opts.Collection == "" {
		opts.Collection = "testweaver_memory"
	}

	db := chromem.NewDB()

	// 向量由上层提供，不注册embedding函数
	collection, err := db.GetOrCreateCollection(opts.Collection, nil, nil)
	if err != nil {
		return nil, apperrors.NewConfigurationError("cannot create embedded collection").WithCause(err)
	}

	return &chromemVectorStore{
		db:         db,
		collection: collection,
		payloads:   make(map[uint64]Payload),
	}, nil
}

func (s *chromemVectorStore) Upsert(ctx context.Context, points []Point) (UpsertResult, error) {
	result := UpsertResult{}
	for _, p := range points {
		doc := chromem.Document{
			ID:        strconv.FormatUint(p.ID, 10),
			Content:   p.Payload.Text,
			Embedding: p.Vector,
			Metadata:  chromemMetadata(p.Payload),
		}
		// AddDocument按ID覆盖，满足幂等upsert语义
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			result.FailedIDs = append(result.FailedIDs, p.ID)
			continue
		}
		s.mu.Lock()
		s.payloads[p.ID] = p.Payload
		s.mu.Unlock()
		result.SucceededIDs = append(result.SucceededIDs, p.ID)
	}

	if len(result.FailedIDs) > 0 {
		return result, apperrors.NewBackendRejectedError(
			fmt.Sprintf("embedded store rejected %d of %d points", len(result.FailedIDs), len(points)))
	}
	return result, nil
}

func (s *chromemVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}
	if s.collection.Count() == 0 {
		return nil, nil
	}

	// chromem要求nResults不超过（过滤后）文档数，逐步降低重试
	var hits []chromem.Result
	for n := topK; n >= 1; n-- {
		var err error
		hits, err = s.collection.QueryEmbedding(ctx, vector, n, chromemWhere(filter), nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, apperrors.NewBackendRejectedError("embedded query failed").WithCause(err)
	}

	results := make([]ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			return nil, apperrors.NewDataIntegrityError(
				fmt.Sprintf("embedded store holds non-numeric point id %q", hit.ID))
		}
		payload, err := payloadFromChromem(hit.Content, hit.Metadata)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredPoint{
			ID:      id,
			Score:   float64(hit.Similarity),
			Payload: payload,
		})
	}

	SortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *chromemVectorStore) List(ctx context.Context, filter *Filter) ([]Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloads []Payload
	for _, payload := range s.payloads {
		if err := ValidatePayload(payload); err != nil {
			return nil, err
		}
		if !MatchesFilter(payload, filter) {
			continue
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func (s *chromemVectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	// 只向chromem传存在的id，不存在的id按no-op处理
	s.mu.Lock()
	defer s.mu.Unlock()

	var strIDs []string
	for _, id := range ids {
		if _, ok := s.payloads[id]; !ok {
			continue
		}
		strIDs = append(strIDs, strconv.FormatUint(id, 10))
	}
	if len(strIDs) == 0 {
		return nil
	}

	if err := s.collection.Delete(ctx, nil, nil, strIDs...); err != nil {
		return apperrors.NewBackendRejectedError("embedded delete failed").WithCause(err)
	}
	for _, id := range ids {
		delete(s.payloads, id)
	}
	return nil
}

func (s *chromemVectorStore) Ready() bool {
	return s.collection != nil
}

func isTooFewDocsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "nResults")
}

// chromemMetadata 将payload压平为chromem的string元数据
func chromemMetadata(p Payload) map[string]string {
	meta := map[string]string{"logical_id": p.LogicalID}
	for k, v := range p.Meta {
		meta["meta."+k] = v
	}
	return meta
}

func payloadFromChromem(content string, metadata map[string]string) (Payload, error) {
	payload := Payload{
		LogicalID: metadata["logical_id"],
		Text:      content,
		Meta:      map[string]string{},
	}
	for k, v := range metadata {
		if strings.HasPrefix(k, "meta.") {
			payload.Meta[strings.TrimPrefix(k, "meta.")] = v
		}
	}
	if err := ValidatePayload(payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func chromemWhere(filter *Filter) map[string]string {
	if filter == nil {
		return nil
	}
	where := map[string]string{}
	if filter.SourceType != "" {
		where["meta.source_type"] = filter.SourceType
	}
	if filter.SourceName != "" {
		where["meta.source_name"] = filter.SourceName
	}
	if len(where) == 0 {
		return nil
	}
	return where
}
