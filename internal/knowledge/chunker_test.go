package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

func TestNewChunker_InvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChunker(tc.size, tc.overlap)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
		})
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	chunker, err := NewChunker(100, 20)
	require.NoError(t, err)

	assert.Empty(t, chunker.Split(""))
}

func TestChunker_ShortInput(t *testing.T) {
	chunker, err := NewChunker(100, 20)
	require.NoError(t, err)

	chunks := chunker.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "hello world", chunks[0].Text)
}

// 块大小100、重叠20、输入250字符 → 恰好3块，窗口起点0/80/160，
// 长度100/100/90，相邻块共享20字符
// （块总长 = 250 + 2×20 = 290，还原性决定末块必然是90）
func TestChunker_ExactWindows(t *testing.T) {
	chunker, err := NewChunker(100, 20)
	require.NoError(t, err)

	input := strings.Repeat("abcde", 50) // 250 chars
	chunks := chunker.Split(input)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 100)
	assert.Len(t, chunks[1].Text, 100)
	assert.Len(t, chunks[2].Text, 90)

	// 相邻块的后缀/前缀重叠恰好20字符
	assert.Equal(t, chunks[0].Text[80:], chunks[1].Text[:20])
	assert.Equal(t, chunks[1].Text[80:], chunks[2].Text[:20])
}

// 丢弃每个后续块开头的重叠部分后拼接应精确还原原文
func TestChunker_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
		text    string
	}{
		{"no overlap", 10, 0, "the quick brown fox jumps over the lazy dog"},
		{"small overlap", 10, 3, "the quick brown fox jumps over the lazy dog"},
		{"large overlap", 50, 49, strings.Repeat("x y z ", 40)},
		{"unicode", 7, 2, "попробуем 中文字符 and ascii mixed together"},
		{"exact multiple", 10, 0, strings.Repeat("a", 30)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunker, err := NewChunker(tc.size, tc.overlap)
			require.NoError(t, err)

			chunks := chunker.Split(tc.text)
			require.NotEmpty(t, chunks)

			var rebuilt []rune
			for i, chunk := range chunks {
				runes := []rune(chunk.Text)
				if i == 0 {
					rebuilt = append(rebuilt, runes...)
					continue
				}
				rebuilt = append(rebuilt, runes[tc.overlap:]...)
			}
			assert.Equal(t, tc.text, string(rebuilt))
		})
	}
}

// Chunks返回的序列可以重复遍历，结果一致
func TestChunker_SeqIsRestartable(t *testing.T) {
	chunker, err := NewChunker(10, 2)
	require.NoError(t, err)

	seq := chunker.Chunks("abcdefghijklmnopqrstuvwxyz")

	var first, second []Chunk
	for chunk := range seq {
		first = append(first, chunk)
	}
	for chunk := range seq {
		second = append(second, chunk)
	}
	assert.Equal(t, first, second)

	// 提前终止遍历不会panic
	for range seq {
		break
	}
}

func TestChunker_ChunkIndexesAreSequential(t *testing.T) {
	chunker, err := NewChunker(5, 1)
	require.NoError(t, err)

	for i, chunk := range chunker.Split(strings.Repeat("q", 42)) {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\r\n b\t\tc \n"))
	assert.Equal(t, "", NormalizeWhitespace(" \n\t "))
}
