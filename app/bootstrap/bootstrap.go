package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aihub/testweaver-go/internal/config"
	"github.com/aihub/testweaver-go/internal/knowledge"
	"github.com/aihub/testweaver-go/internal/llm"
	"github.com/aihub/testweaver-go/internal/logger"
	"github.com/aihub/testweaver-go/internal/memory"
	"github.com/aihub/testweaver-go/internal/services"
)

// App encapsulates the wired components shared by the controllers.
type App struct {
	Config    *config.Config
	Store     knowledge.VectorStore
	ShortTerm *memory.ShortTermMemory
	LongTerm  *memory.LongTermMemory
	Ingestion *services.IngestionService
	Documents *services.DocumentService
	Agent     *services.AgentService
	Metrics   *services.MetricsService
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger and the memory subsystem components
// required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load configuration; invalid chunking parameters abort startup here.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	chunker, err := knowledge.NewChunker(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	store, err := knowledge.NewVectorStoreFromConfig(cfg.Knowledge.VectorStore)
	if err != nil {
		return nil, err
	}

	embedder := knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.BaseURL, cfg.Knowledge.Embedding.Model)
	if !embedder.Ready() {
		logger.Warn("embedding provider not configured, ingestion and recall will fail until OPENAI_API_KEY is set")
	}

	shortTerm := memory.NewShortTermMemory(cfg.Memory.ShortTermTurns)
	longTerm := memory.NewLongTermMemory(store, embedder, chunker)
	assembler := services.NewContextAssembler(shortTerm, longTerm, cfg.Memory.MaxContextChars)

	metrics := services.NewMetricsService()
	chatClient := llm.NewClient(llm.Options{
		APIKey:      cfg.AI.OpenAIAPIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.ChatModel,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})

	app := &App{
		Config:    cfg,
		Store:     store,
		ShortTerm: shortTerm,
		LongTerm:  longTerm,
		Ingestion: services.NewIngestionService(store, embedder, chunker, metrics),
		Documents: services.NewDocumentService(store, longTerm),
		Agent:     services.NewAgentService(assembler, shortTerm, chatClient, metrics, cfg.Memory.RecallTopK),
		Metrics:   metrics,
	}

	SetGlobalApp(app)
	logger.Info("memory subsystem initialized",
		zap.String("vector_store", cfg.Knowledge.VectorStore.Provider),
		zap.Int("chunk_size", cfg.Knowledge.ChunkSize),
		zap.Int("chunk_overlap", cfg.Knowledge.ChunkOverlap))

	return app, nil
}

// Shutdown flushes shared resources.
func (a *App) Shutdown() {
	logger.Sync()
}
