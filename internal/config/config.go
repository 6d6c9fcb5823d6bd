package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Knowledge KnowledgeConfig
	Memory    MemoryConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type AIConfig struct {
	OpenAIAPIKey string
	BaseURL      string
	ChatModel    string
	MaxTokens    int
	Temperature  float64
}

type KnowledgeConfig struct {
	ChunkSize    int
	ChunkOverlap int
	VectorStore  VectorStoreConfig
	Embedding    EmbeddingConfig
	Upload       UploadConfig
}

type VectorStoreConfig struct {
	Provider   string // qdrant | milvus | embedded
	Qdrant     QdrantConfig
	Milvus     MilvusConfig
	Collection string
	VectorSize int
	Distance   string
	TimeoutSec int
	MaxRetries int
}

type QdrantConfig struct {
	Endpoint string
	APIKey   string
	TLS      bool
}

type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	TLS      bool
}

type EmbeddingConfig struct {
	Model string
}

type UploadConfig struct {
	MaxSize int64
	TmpPath string
}

type MemoryConfig struct {
	// 短期记忆每会话最大轮数，FIFO淘汰
	ShortTermTurns int
	// 检索装配的上下文字符上限
	MaxContextChars int
	RecallTopK      int
}

var AppConfig *Config

func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.port", "9090")
	viper.SetDefault("server.env", "development")

	// AI配置默认值
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.chat_model", "gpt-4o-mini")
	viper.SetDefault("ai.max_tokens", 2000)
	viper.SetDefault("ai.temperature", 0.7)

	// 知识库配置默认值
	viper.SetDefault("knowledge.chunk_size", 1200)
	viper.SetDefault("knowledge.chunk_overlap", 200)
	viper.SetDefault("knowledge.vector_store.provider", "qdrant")
	viper.SetDefault("knowledge.vector_store.collection", "testweaver_memory")
	viper.SetDefault("knowledge.vector_store.vector_size", 1536)
	viper.SetDefault("knowledge.vector_store.distance", "cosine")
	viper.SetDefault("knowledge.vector_store.timeout_sec", 10)
	viper.SetDefault("knowledge.vector_store.max_retries", 3)
	viper.SetDefault("knowledge.vector_store.qdrant.endpoint", "http://localhost:6333")
	viper.SetDefault("knowledge.vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("knowledge.vector_store.milvus.database", "default")
	viper.SetDefault("knowledge.embedding.model", "text-embedding-3-small")
	viper.SetDefault("knowledge.upload.max_size", 15728640) // 15MB
	viper.SetDefault("knowledge.upload.tmp_path", "./uploads")

	// 记忆配置默认值
	viper.SetDefault("memory.short_term_turns", 20)
	viper.SetDefault("memory.max_context_chars", 12000)
	viper.SetDefault("memory.recall_top_k", 5)

	// 读取环境变量
	viper.SetEnvPrefix("TESTWEAVER")
	viper.AutomaticEnv()

	if port := os.Getenv("TESTWEAVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		viper.Set("ai.openai_api_key", key)
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		viper.Set("ai.base_url", baseURL)
	}
	if model := os.Getenv("LLM_MODEL_NAME"); model != "" {
		viper.Set("ai.chat_model", model)
	}
	if endpoint := os.Getenv("QDRANT_URL"); endpoint != "" {
		viper.Set("knowledge.vector_store.qdrant.endpoint", endpoint)
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		viper.Set("knowledge.vector_store.qdrant.api_key", apiKey)
	}
	if addr := os.Getenv("MILVUS_ADDRESS"); addr != "" {
		viper.Set("knowledge.vector_store.milvus.address", addr)
	}

	config := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		AI: AIConfig{
			OpenAIAPIKey: viper.GetString("ai.openai_api_key"),
			BaseURL:      viper.GetString("ai.base_url"),
			ChatModel:    viper.GetString("ai.chat_model"),
			MaxTokens:    viper.GetInt("ai.max_tokens"),
			Temperature:  viper.GetFloat64("ai.temperature"),
		},
		Knowledge: KnowledgeConfig{
			ChunkSize:    viper.GetInt("knowledge.chunk_size"),
			ChunkOverlap: viper.GetInt("knowledge.chunk_overlap"),
			VectorStore: VectorStoreConfig{
				Provider:   viper.GetString("knowledge.vector_store.provider"),
				Collection: viper.GetString("knowledge.vector_store.collection"),
				VectorSize: viper.GetInt("knowledge.vector_store.vector_size"),
				Distance:   viper.GetString("knowledge.vector_store.distance"),
				TimeoutSec: viper.GetInt("knowledge.vector_store.timeout_sec"),
				MaxRetries: viper.GetInt("knowledge.vector_store.max_retries"),
				Qdrant: QdrantConfig{
					Endpoint: viper.GetString("knowledge.vector_store.qdrant.endpoint"),
					APIKey:   viper.GetString("knowledge.vector_store.qdrant.api_key"),
					TLS:      viper.GetBool("knowledge.vector_store.qdrant.tls"),
				},
				Milvus: MilvusConfig{
					Address:  viper.GetString("knowledge.vector_store.milvus.address"),
					Username: viper.GetString("knowledge.vector_store.milvus.username"),
					Password: viper.GetString("knowledge.vector_store.milvus.password"),
					Database: viper.GetString("knowledge.vector_store.milvus.database"),
					TLS:      viper.GetBool("knowledge.vector_store.milvus.tls"),
				},
			},
			Embedding: EmbeddingConfig{
				Model: viper.GetString("knowledge.embedding.model"),
			},
			Upload: UploadConfig{
				MaxSize: viper.GetInt64("knowledge.upload.max_size"),
				TmpPath: viper.GetString("knowledge.upload.tmp_path"),
			},
		},
		Memory: MemoryConfig{
			ShortTermTurns:  viper.GetInt("memory.short_term_turns"),
			MaxContextChars: viper.GetInt("memory.max_context_chars"),
			RecallTopK:      viper.GetInt("memory.recall_top_k"),
		},
	}

	if err := validate(config); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

// validate 启动期校验，分块参数非法属于致命配置错误
func validate(cfg *Config) error {
	if cfg.Knowledge.ChunkSize <= 0 {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("chunk_size must be positive, got %d", cfg.Knowledge.ChunkSize))
	}
	if cfg.Knowledge.ChunkOverlap < 0 {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("chunk_overlap must not be negative, got %d", cfg.Knowledge.ChunkOverlap))
	}
	if cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
				cfg.Knowledge.ChunkOverlap, cfg.Knowledge.ChunkSize))
	}
	if cfg.Memory.ShortTermTurns <= 0 {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("short_term_turns must be positive, got %d", cfg.Memory.ShortTermTurns))
	}
	return nil
}
