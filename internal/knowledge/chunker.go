package knowledge

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 文本分块器，按rune窗口切分，相邻块精确重叠overlap个字符
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器，参数非法返回配置错误
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= chunkSize {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize))
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}, nil
}

// Size 返回配置的块大小
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap 返回配置的重叠大小
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Chunks 惰性切分文本，可多次遍历
// 每块长度不超过chunkSize，相邻块共享恰好chunkOverlap个字符，
// 末块可以更短。空输入产生零个块。
// 去掉每个后续块开头的重叠部分再拼接，可精确还原原文。
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" {
			return
		}

		runes := []rune(text)
		step := c.chunkSize - c.chunkOverlap
		index := 0

		for start := 0; start < len(runes); start += step {
			end := start + c.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(Chunk{Index: index, Text: string(runes[start:end])}) {
				return
			}
			index++
			if end == len(runes) {
				return
			}
		}
	}
}

// Split 切分文本并收集为切片
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// NormalizeWhitespace 折叠连续空白为单个空格
// 摄取前由提取器调用；分块器本身不修改文本，保证还原性
func NormalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
