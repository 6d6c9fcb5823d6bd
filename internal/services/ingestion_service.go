package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/knowledge"
	"github.com/aihub/testweaver-go/internal/logger"
)

// IngestState 摄取请求的状态
type IngestState string

const (
	StateReceived  IngestState = "received"
	StateExtracted IngestState = "extracted"
	StateChunked   IngestState = "chunked"
	StateEmbedded  IngestState = "embedded"
	StateStored    IngestState = "stored"
	StateFailed    IngestState = "failed"
)

// 状态转换规则：Received → Extracted → Chunked → Embedded → Stored，任意中间态可失败
var ingestTransitions = map[IngestState][]IngestState{
	StateReceived:  {StateExtracted, StateFailed},
	StateExtracted: {StateChunked, StateFailed},
	StateChunked:   {StateEmbedded, StateFailed},
	StateEmbedded:  {StateStored, StateFailed},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to IngestState) bool {
	for _, next := range ingestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IngestRequest 摄取请求
type IngestRequest struct {
	SourceType string
	SourceName string
	Data       []byte
}

// IngestResult 摄取结果
// 部分写入失败时按逻辑ID报告，存储保持适配器留下的部分状态；
// 重试会重新upsert同样的point id，幂等自愈
type IngestResult struct {
	State            IngestState `json:"state"`
	StoredChunkCount int         `json:"stored_chunk_count"`
	FailedLogicalIDs []string    `json:"failed_logical_ids,omitempty"`
}

// IngestionService 摄取流水线：提取 → 分块 → 向量化 → 存储
// 不同source_name的摄取可以并发；同一source_name的并发摄取
// 需要调用方自行串行化，服务内部不加锁
type IngestionService struct {
	store    knowledge.VectorStore
	embedder knowledge.Embedder
	chunker  *knowledge.Chunker
	metrics  *MetricsService
}

// NewIngestionService 创建摄取服务
func NewIngestionService(store knowledge.VectorStore, embedder knowledge.Embedder, chunker *knowledge.Chunker, metrics *MetricsService) *IngestionService {
	return &IngestionService{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		metrics:  metrics,
	}
}

// Ingest 执行完整摄取流水线
// 提取或向量化失败时整批标记失败，不留半截文档；
// 存储阶段的部分失败不回滚已成功的子集。
// 注意：重新摄取变短的文档会留下旧的高序号块（已知限制）。
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()
	state := StateReceived

	fail := func(err error) (IngestResult, error) {
		s.transition(&state, StateFailed, req.SourceName)
		return IngestResult{State: StateFailed}, err
	}

	if req.SourceName == "" {
		return fail(apperrors.NewInvalidInputError("source_name", "must not be empty"))
	}

	ext, err := knowledge.ExtractorFor(req.SourceType)
	if err != nil {
		return fail(err)
	}

	// Received → Extracted
	segments, err := ext.Extract(req.Data, req.SourceName)
	if err != nil {
		return fail(err)
	}
	s.transition(&state, StateExtracted, req.SourceName)

	// Extracted → Chunked：片段内按配置的size/overlap开窗，块序号全文档连续
	chunks := s.chunkSegments(segments)
	s.transition(&state, StateChunked, req.SourceName)

	if len(chunks) == 0 {
		// 空文档：合法但没有可存储的块
		s.transition(&state, StateEmbedded, req.SourceName)
		s.transition(&state, StateStored, req.SourceName)
		return IngestResult{State: StateStored}, nil
	}

	// Chunked → Embedded：任一块失败则整批失败，保持文档块集内部一致
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(err)
	}
	s.transition(&state, StateEmbedded, req.SourceName)

	// Embedded → Stored
	points := make([]knowledge.Point, 0, len(chunks))
	logicalByPoint := make(map[uint64]string, len(chunks))
	for i, chunk := range chunks {
		logicalID := knowledge.LogicalID(req.SourceType, req.SourceName, chunk.Index)
		pointID := knowledge.PointID(logicalID)
		logicalByPoint[pointID] = logicalID
		points = append(points, knowledge.Point{
			ID:     pointID,
			Vector: vectors[i],
			Payload: knowledge.Payload{
				LogicalID: logicalID,
				Text:      chunk.Text,
				Meta: map[string]string{
					"source_type": req.SourceType,
					"source_name": req.SourceName,
				},
			},
		})
	}

	upsertResult, upsertErr := s.store.Upsert(ctx, points)
	if upsertErr != nil && len(upsertResult.SucceededIDs) == 0 {
		return fail(upsertErr)
	}

	s.transition(&state, StateStored, req.SourceName)

	result := IngestResult{
		State:            StateStored,
		StoredChunkCount: len(upsertResult.SucceededIDs),
	}
	for _, id := range upsertResult.FailedIDs {
		result.FailedLogicalIDs = append(result.FailedLogicalIDs, logicalByPoint[id])
	}

	if s.metrics != nil {
		s.metrics.ObserveIngest(req.SourceType, result.StoredChunkCount, time.Since(start))
	}
	logger.Info("document ingested",
		zap.String("source_type", req.SourceType),
		zap.String("source_name", req.SourceName),
		zap.Int("stored_chunks", result.StoredChunkCount),
		zap.Int("failed_chunks", len(result.FailedLogicalIDs)))

	// 部分失败作为非致命摘要返回，调用方可安全重试
	return result, nil
}

// chunkSegments 对提取片段分块，短片段原样成块，块序号跨片段连续
func (s *IngestionService) chunkSegments(segments []string) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		for chunk := range s.chunker.Chunks(segment) {
			chunks = append(chunks, knowledge.Chunk{
				Index: len(chunks),
				Text:  chunk.Text,
			})
		}
	}
	return chunks
}

func (s *IngestionService) transition(state *IngestState, to IngestState, sourceName string) {
	if !CanTransition(*state, to) {
		// 转换表覆盖所有流水线路径，走到这里说明有编码错误
		logger.Error("illegal ingest state transition",
			zap.String("from", string(*state)),
			zap.String("to", string(to)),
			zap.String("source_name", sourceName))
		return
	}
	logger.Debug(fmt.Sprintf("ingest %s: %s -> %s", sourceName, *state, to))
	*state = to
}
