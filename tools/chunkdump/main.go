package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aihub/testweaver-go/internal/knowledge"
)

// 分块调试工具：对一个文件跑 提取→分块，打印每个块及其逻辑ID。
// 用法: chunkdump <file> [chunkSize] [overlap]
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chunkdump <file> [chunkSize] [overlap]")
		os.Exit(1)
	}
	path := os.Args[1]

	chunkSize := 1200
	overlap := 200
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &chunkSize)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &overlap)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	sourceType := sourceTypeForExt(filepath.Ext(path))
	sourceName := filepath.Base(path)

	ext, err := knowledge.ExtractorFor(sourceType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	segments, err := ext.Extract(data, sourceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	chunker, err := knowledge.NewChunker(chunkSize, overlap)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("分块配置: chunkSize=%d, overlap=%d\n", chunkSize, overlap)
	fmt.Printf("来源: %s (%s), 片段数: %d\n\n", sourceName, sourceType, len(segments))

	total := 0
	for _, segment := range segments {
		for chunk := range chunker.Chunks(segment) {
			logicalID := knowledge.LogicalID(sourceType, sourceName, total)
			fmt.Println(strings.Repeat("-", 80))
			fmt.Printf("%s (point_id=%d)\n", logicalID, knowledge.PointID(logicalID))
			fmt.Printf("字符数: %d\n", len([]rune(chunk.Text)))
			fmt.Printf("内容:\n%s\n\n", chunk.Text)
			total++
		}
	}
	fmt.Printf("共 %d 块\n", total)
}

func sourceTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return knowledge.SourceTypePDF
	case ".docx", ".doc":
		return knowledge.SourceTypeWord
	case ".json":
		return knowledge.SourceTypeSwagger
	default:
		return knowledge.SourceTypeText
	}
}
