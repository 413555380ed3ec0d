package main

import (
	"context"
	"log"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/server"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := server.NewApp(context.Background(), cfg, config.GetDataSourceConfig())
	if err != nil {
		log.Fatalf("FATAL: アプリケーションの初期化に失敗: %v", err)
	}

	r := server.NewRouter(app)

	log.Printf("Starting AgriViewer Chat-API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
