package handler

import (
	"context"
	"log"
	"net/http"
	"sync"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/server"

	"github.com/gin-gonic/gin"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		log.Printf("🟢 [setupApp] Initializing Gin application")

		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		a, err := server.NewApp(context.Background(), cfg, config.GetDataSourceConfig())
		if err != nil {
			initErr = err
			return
		}
		app = server.NewRouter(a)
	})
	return app, initErr
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		log.Printf("❌ [Handler] 初期化に失敗: %v", err)
		http.Error(w, `{"success":false,"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	engine.ServeHTTP(w, r)
}
