package knowledge

import (
	"context"
	"sort"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// Payload 向量点的固定负载模式
// text、meta.source_name、meta.source_type为必需字段，读取时校验
type Payload struct {
	LogicalID string            `json:"logical_id"`
	Text      string            `json:"text"`
	Meta      map[string]string `json:"meta"`
}

// Point 向量库写入单元，payload与vector作为整体原子变更
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// ScoredPoint 相似度检索结果
type ScoredPoint struct {
	ID      uint64
	Score   float64
	Payload Payload
}

// Filter 按来源过滤，零值字段不参与过滤
type Filter struct {
	SourceType string
	SourceName string
}

// UpsertResult 批量写入结果，部分失败时按point id报告，成功子集不回滚
type UpsertResult struct {
	SucceededIDs []uint64
	FailedIDs    []uint64
}

// VectorStore 向量存储抽象，系统与外部向量索引的唯一接触点
// 所有实现将后端错误归类为 BACKEND_UNAVAILABLE（连接/超时，内部有限重试后上报）
// 或 BACKEND_REJECTED（请求非法，立即上报不重试）
type VectorStore interface {
	// Upsert 幂等批量写入：已存在的point id被整体替换，不产生重复
	Upsert(ctx context.Context, points []Point) (UpsertResult, error)

	// Query 返回至多topK个结果，按score降序，同分按point id升序
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error)

	// List 枚举负载，内部处理分页，对调用方呈现单一逻辑序列
	List(ctx context.Context, filter *Filter) ([]Payload, error)

	// Delete 删除指定point id，删除不存在的id是no-op
	Delete(ctx context.Context, ids []uint64) error

	Ready() bool
}

// ValidatePayload 固定模式校验，缺少必需字段属于数据完整性错误
func ValidatePayload(p Payload) error {
	if p.Text == "" {
		return apperrors.NewDataIntegrityError(
			"stored point is missing required payload field 'text'")
	}
	if p.Meta == nil || p.Meta["source_name"] == "" {
		return apperrors.NewDataIntegrityError(
			"stored point is missing required payload field 'meta.source_name'")
	}
	if p.Meta["source_type"] == "" {
		return apperrors.NewDataIntegrityError(
			"stored point is missing required payload field 'meta.source_type'")
	}
	return nil
}

// MatchesFilter 判断payload是否命中过滤条件
func MatchesFilter(p Payload, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.SourceType != "" && p.Meta["source_type"] != filter.SourceType {
		return false
	}
	if filter.SourceName != "" && p.Meta["source_name"] != filter.SourceName {
		return false
	}
	return true
}

// SortScored 降序排列检索结果，同分按point id升序保证确定性
func SortScored(points []ScoredPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}
		return points[i].ID < points[j].ID
	})
}
