package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/logger"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
	Distance   string
	Database   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
	timeout      time.Duration
}

const milvusQueryPageSize = int64(256)

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "testweaver_memory"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "COSINE"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, apperrors.NewBackendUnavailableError("failed to connect to milvus").WithCause(err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
		timeout:      timeout,
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return classifyMilvusError("check collection", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "retrieval-augmented memory chunks",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
					AutoID:     false,
				},
				{
					Name:     "logical_id",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "512",
					},
				},
				{
					Name:     "source_type",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "64",
					},
				},
				{
					Name:     "source_name",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "512",
					},
				},
				{
					Name:     "text",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "meta_json",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "4096",
					},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return classifyMilvusError("create collection", err)
		}

		var index entity.Index
		var indexErr error
		switch s.distance {
		case "IP":
			index, indexErr = entity.NewIndexHNSW(entity.IP, 8, 64)
		case "L2":
			index, indexErr = entity.NewIndexHNSW(entity.L2, 8, 64)
		default:
			index, indexErr = entity.NewIndexHNSW(entity.COSINE, 8, 64)
		}
		if indexErr != nil {
			return classifyMilvusError("build index definition", indexErr)
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			// 索引创建失败不影响写入，只记录警告
			logger.Warn(fmt.Sprintf("failed to create milvus index for %s: %v", s.collection, err))
		}
	}

	// 检索前集合必须已加载
	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return classifyMilvusError("load collection", err)
	}
	return nil
}

func (s *milvusVectorStore) Upsert(ctx context.Context, points []Point) (UpsertResult, error) {
	if len(points) == 0 {
		return UpsertResult{}, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return failAll(points, err)
	}

	ids := make([]int64, 0, len(points))
	logicalIDs := make([]string, 0, len(points))
	sourceTypes := make([]string, 0, len(points))
	sourceNames := make([]string, 0, len(points))
	texts := make([]string, 0, len(points))
	metas := make([]string, 0, len(points))
	vectors := make([][]float32, 0, len(points))

	for _, p := range points {
		metaJSON, err := json.Marshal(p.Payload.Meta)
		if err != nil {
			return failAll(points, apperrors.NewBackendRejectedError("meta not serializable").WithCause(err))
		}
		ids = append(ids, int64(p.ID))
		logicalIDs = append(logicalIDs, p.Payload.LogicalID)
		sourceTypes = append(sourceTypes, p.Payload.Meta["source_type"])
		sourceNames = append(sourceNames, p.Payload.Meta["source_name"])
		texts = append(texts, p.Payload.Text)
		metas = append(metas, string(metaJSON))
		vectors = append(vectors, p.Vector)
	}

	// Upsert按主键替换，保证同一point id不产生重复
	_, err := s.milvusClient.Upsert(ctx, s.collection, "",
		entity.NewColumnInt64("id", ids),
		entity.NewColumnVarChar("logical_id", logicalIDs),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("source_name", sourceNames),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("meta_json", metas),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	)
	if err != nil {
		return failAll(points, classifyMilvusError("upsert", err))
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn(fmt.Sprintf("failed to flush milvus collection %s: %v", s.collection, err))
	}

	result := UpsertResult{SucceededIDs: make([]uint64, 0, len(points))}
	for _, p := range points {
		result.SucceededIDs = append(result.SucceededIDs, p.ID)
	}
	return result, nil
}

func (s *milvusVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		milvusFilterExpr(filter),
		[]string{"logical_id", "text", "meta_json"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.MetricType(s.distance),
		topK,
		sp,
	)
	if err != nil {
		return nil, classifyMilvusError("search", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, classifyMilvusError("search", result.Err)
	}

	var ids []int64
	if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = idCol.Data()
	}

	var logicalIDs, texts, metaJSONs []string
	for _, field := range result.Fields {
		col, ok := field.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		switch field.Name() {
		case "logical_id":
			logicalIDs = col.Data()
		case "text":
			texts = col.Data()
		case "meta_json":
			metaJSONs = col.Data()
		}
	}

	points := make([]ScoredPoint, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		payload, err := milvusPayload(i, logicalIDs, texts, metaJSONs)
		if err != nil {
			return nil, err
		}
		var id uint64
		if i < len(ids) {
			id = uint64(ids[i])
		}
		var score float64
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		points = append(points, ScoredPoint{ID: id, Score: score, Payload: payload})
	}

	SortScored(points)
	if len(points) > topK {
		points = points[:topK]
	}
	return points, nil
}

func (s *milvusVectorStore) List(ctx context.Context, filter *Filter) ([]Payload, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	expr := milvusFilterExpr(filter)
	if expr == "" {
		expr = "id >= 0"
	}

	var payloads []Payload
	offset := int64(0)

	// 按页取回，对调用方呈现单一序列
	for {
		results, err := s.milvusClient.Query(ctx, s.collection, nil, expr,
			[]string{"logical_id", "text", "meta_json"},
			client.WithLimit(milvusQueryPageSize), client.WithOffset(offset))
		if err != nil {
			return nil, classifyMilvusError("query", err)
		}

		var logicalIDs, texts, metaJSONs []string
		rows := 0
		for _, col := range results {
			varchar, ok := col.(*entity.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case "logical_id":
				logicalIDs = varchar.Data()
				rows = len(logicalIDs)
			case "text":
				texts = varchar.Data()
			case "meta_json":
				metaJSONs = varchar.Data()
			}
		}
		if rows == 0 {
			return payloads, nil
		}

		for i := 0; i < rows; i++ {
			payload, err := milvusPayload(i, logicalIDs, texts, metaJSONs)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, payload)
		}

		if int64(rows) < milvusQueryPageSize {
			return payloads, nil
		}
		offset += milvusQueryPageSize
	}
}

func (s *milvusVectorStore) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	expr := fmt.Sprintf("id in [%s]", strings.Join(parts, ", "))

	// 不存在的id被表达式自然跳过
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return classifyMilvusError("delete", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn(fmt.Sprintf("failed to flush after delete: %v", err))
	}
	return nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

func milvusFilterExpr(filter *Filter) string {
	if filter == nil {
		return ""
	}
	var parts []string
	if filter.SourceType != "" {
		parts = append(parts, fmt.Sprintf("source_type == %q", filter.SourceType))
	}
	if filter.SourceName != "" {
		parts = append(parts, fmt.Sprintf("source_name == %q", filter.SourceName))
	}
	return strings.Join(parts, " && ")
}

func milvusPayload(i int, logicalIDs, texts, metaJSONs []string) (Payload, error) {
	payload := Payload{Meta: map[string]string{}}
	if i < len(logicalIDs) {
		payload.LogicalID = logicalIDs[i]
	}
	if i < len(texts) {
		payload.Text = texts[i]
	}
	if i < len(metaJSONs) && metaJSONs[i] != "" {
		if err := json.Unmarshal([]byte(metaJSONs[i]), &payload.Meta); err != nil {
			return Payload{}, apperrors.NewDataIntegrityError("stored meta_json is not decodable").WithCause(err)
		}
	}
	if err := ValidatePayload(payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

// classifyMilvusError 将SDK错误归类：连接/超时可重试，其余立即上报
func classifyMilvusError(op string, err error) error {
	msg := fmt.Sprintf("milvus %s failed", op)
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "unavailable") ||
		strings.Contains(text, "deadline") ||
		strings.Contains(text, "connection") ||
		strings.Contains(text, "timeout") {
		return apperrors.NewBackendUnavailableError(msg).WithCause(err)
	}
	return apperrors.NewBackendRejectedError(msg).WithCause(err)
}
