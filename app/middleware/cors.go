package middleware

import (
	"net/http"

	"github.com/beego/beego/v2/server/web/context"
)

// 本地前端与调试工具的默认来源
var allowedOrigins = map[string]bool{
	"http://localhost:5173": true,
	"http://localhost:3000": true,
	"http://127.0.0.1:5173": true,
	"http://127.0.0.1:3000": true,
}

// CORSMiddleware CORS中间件
func CORSMiddleware(ctx *context.Context) {
	origin := ctx.Input.Header("Origin")
	if origin == "" {
		// 同源请求没有Origin头，直接放行
		return
	}

	if allowedOrigins[origin] {
		ctx.Output.Header("Access-Control-Allow-Origin", origin)
		ctx.Output.Header("Access-Control-Allow-Credentials", "true")
	}
	ctx.Output.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	ctx.Output.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
	ctx.Output.Header("Access-Control-Max-Age", "3600")

	// OPTIONS预检请求直接应答
	if ctx.Input.Method() == http.MethodOptions {
		ctx.Output.SetStatus(http.StatusNoContent)
		ctx.Output.Body([]byte(""))
	}
}
