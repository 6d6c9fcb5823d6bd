package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/testweaver-go/app/bootstrap"
	"github.com/aihub/testweaver-go/app/router"
	"github.com/aihub/testweaver-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	web.BConfig.AppName = "TestWeaver Memory Service"
	web.BConfig.CopyRequestBody = true
	if port, err := strconv.Atoi(app.Config.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = port
	} else {
		web.BConfig.Listen.HTTPPort = 9090
	}

	logger.Info("🚀 Starting TestWeaver Memory Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
