package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
	"github.com/aihub/testweaver-go/internal/knowledge"
)

// stubEmbedder 测试用确定性向量化器：按预设表返回向量，
// 未登记的文本落到兜底向量
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:  map[string][]float32{},
		fallback: []float32{0.1, 0.1, 0.1},
	}
}

func (e *stubEmbedder) register(text string, vector []float32) {
	e.vectors[text] = vector
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallback, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Ready() bool     { return true }

func newLongTerm(t *testing.T) (*LongTermMemory, *stubEmbedder) {
	t.Helper()
	store, err := knowledge.NewChromemVectorStore(knowledge.ChromemOptions{Collection: "test"})
	require.NoError(t, err)
	chunker, err := knowledge.NewChunker(200, 20)
	require.NoError(t, err)

	embedder := newStubEmbedder()
	return NewLongTermMemory(store, embedder, chunker), embedder
}

func TestLongTermMemory_RememberAndRecall(t *testing.T) {
	mem, embedder := newLongTerm(t)
	ctx := context.Background()

	embedder.register("the deploy pipeline uses blue-green rollouts", []float32{1, 0, 0})
	embedder.register("lunch is at noon", []float32{0, 1, 0})
	embedder.register("how do we deploy?", []float32{0.9, 0.1, 0})

	_, err := mem.Remember(ctx, "the deploy pipeline uses blue-green rollouts", nil)
	require.NoError(t, err)
	_, err = mem.Remember(ctx, "lunch is at noon", nil)
	require.NoError(t, err)

	hits, err := mem.Recall(ctx, "how do we deploy?", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "the deploy pipeline uses blue-green rollouts", hits[0].Text)
	assert.Equal(t, "note", hits[0].Meta["source_type"])
}

func TestLongTermMemory_RememberReturnsFirstChunkID(t *testing.T) {
	mem, _ := newLongTerm(t)

	logicalID, err := mem.Remember(context.Background(), "a short fact",
		map[string]string{"source_type": "note", "source_name": "fact-1"})
	require.NoError(t, err)
	assert.Equal(t, "note:fact-1:chunk:0", logicalID)
}

func TestLongTermMemory_RememberRejectsEmptyText(t *testing.T) {
	mem, _ := newLongTerm(t)

	_, err := mem.Remember(context.Background(), "   ", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

// 同一(source_name, source_type)重复Remember是更新而非新增
func TestLongTermMemory_RememberIsIdempotent(t *testing.T) {
	mem, _ := newLongTerm(t)
	ctx := context.Background()

	meta := map[string]string{"source_type": "note", "source_name": "fact-1"}
	_, err := mem.Remember(ctx, "version one", meta)
	require.NoError(t, err)
	_, err = mem.Remember(ctx, "version two", meta)
	require.NoError(t, err)

	payloads, err := mem.Store().List(ctx, &knowledge.Filter{SourceName: "fact-1"})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "version two", payloads[0].Text)
}

func TestLongTermMemory_RecallEmptyStore(t *testing.T) {
	mem, _ := newLongTerm(t)

	hits, err := mem.Recall(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLongTermMemory_RecallEmptyQuery(t *testing.T) {
	mem, _ := newLongTerm(t)

	hits, err := mem.Recall(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLongTermMemory_RecallOrdering(t *testing.T) {
	mem, embedder := newLongTerm(t)
	ctx := context.Background()

	facts := []struct {
		text   string
		vector []float32
	}{
		{"fact a", []float32{1, 0, 0}},
		{"fact b", []float32{0.8, 0.2, 0}},
		{"fact c", []float32{0.5, 0.5, 0}},
		{"fact d", []float32{0, 1, 0}},
		{"fact e", []float32{0, 0, 1}},
	}
	for i, fact := range facts {
		embedder.register(fact.text, fact.vector)
		_, err := mem.Remember(ctx, fact.text, map[string]string{
			"source_type": "note",
			"source_name": string(rune('a' + i)),
		})
		require.NoError(t, err)
	}
	embedder.register("query", []float32{1, 0, 0})

	hits, err := mem.Recall(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "fact a", hits[0].Text)
	assert.Equal(t, "fact b", hits[1].Text)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestLongTermMemory_ForgetExactChunk(t *testing.T) {
	mem, _ := newLongTerm(t)
	ctx := context.Background()

	meta0 := map[string]string{"source_type": "note", "source_name": "shared"}
	_, err := mem.Remember(ctx, "chunk zero content", meta0)
	require.NoError(t, err)

	// 同一来源的第二个块，手工写入以控制索引
	logicalID1 := knowledge.LogicalID("note", "shared", 1)
	_, err = mem.Store().Upsert(ctx, []knowledge.Point{{
		ID:     knowledge.PointID(logicalID1),
		Vector: []float32{0, 1, 0},
		Payload: knowledge.Payload{
			LogicalID: logicalID1,
			Text:      "chunk one content",
			Meta:      map[string]string{"source_type": "note", "source_name": "shared"},
		},
	}})
	require.NoError(t, err)

	// 删chunk:0只命中精确ID，chunk:1保留
	deleted, err := mem.Forget(ctx, "note:shared:chunk:0")
	require.NoError(t, err)
	assert.True(t, deleted)

	payloads, err := mem.Store().List(ctx, &knowledge.Filter{SourceName: "shared"})
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, logicalID1, payloads[0].LogicalID)
}

func TestLongTermMemory_ForgetMissingIsNotError(t *testing.T) {
	mem, _ := newLongTerm(t)

	deleted, err := mem.Forget(context.Background(), "note:never-stored:chunk:0")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLongTermMemory_ForgetMalformedID(t *testing.T) {
	mem, _ := newLongTerm(t)

	_, err := mem.Forget(context.Background(), "not-a-logical-id")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}
