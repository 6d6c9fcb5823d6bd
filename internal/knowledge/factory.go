package knowledge

import (
	"fmt"
	"time"

	"github.com/aihub/testweaver-go/internal/config"
	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// NewVectorStoreFromConfig 按配置选择后端
// 其余代码只依赖VectorStore接口，后端可任意替换
func NewVectorStoreFromConfig(cfg config.VectorStoreConfig) (VectorStore, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch cfg.Provider {
	case "qdrant", "":
		return NewQdrantVectorStore(QdrantOptions{
			Endpoint:   cfg.Qdrant.Endpoint,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
			Distance:   cfg.Distance,
			UseTLS:     cfg.Qdrant.TLS,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "milvus":
		return NewMilvusVectorStore(MilvusOptions{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
			Distance:   cfg.Distance,
			Database:   cfg.Milvus.Database,
			UseTLS:     cfg.Milvus.TLS,
			Timeout:    timeout,
		})
	case "embedded":
		return NewChromemVectorStore(ChromemOptions{
			Collection: cfg.Collection,
		})
	default:
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("unknown vector store provider %q", cfg.Provider))
	}
}
