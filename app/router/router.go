package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/testweaver-go/app/controllers"
	"github.com/aihub/testweaver-go/app/middleware"
)

// Init registers all routes. Must be called after bootstrap.
func Init() {
	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	// 摄取路由
	ingestController := &controllers.IngestController{}
	web.Router("/api/ingest/file", ingestController, "post:IngestFile")
	web.Router("/api/ingest/swagger", ingestController, "post:IngestSwagger")

	// 长期记忆路由
	ragController := &controllers.RAGController{}
	web.Router("/api/rag/docs", ragController, "get:ListDocs")
	web.Router("/api/rag/chunks", ragController, "get:ListChunks;delete:DeleteChunk")

	// 对话与会话路由
	chatController := &controllers.ChatController{}
	web.Router("/api/chat", chatController, "post:Chat")
	web.Router("/api/recall", chatController, "post:Recall")
	web.Router("/api/remember", chatController, "post:Remember")
	web.Router("/api/sessions/:session_id/turns", chatController, "post:AppendTurn;get:History")
	web.Router("/api/sessions/:session_id", chatController, "delete:ClearSession")

	// Prometheus指标
	web.Handler("/metrics", promhttp.Handler())
}
