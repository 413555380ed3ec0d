package server

import (
	"log"
	"net/http"

	"agriviewer-chat-api/pkg/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// authMiddleware はX-API-KEYヘッダーを検証します。キー未設定なら認証しません。
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || apiKey == "default_secret_key" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			log.Printf("❌ [認証] 無効なAPI Key: %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// NewRouter はAppのサービスを使ってルーティングを構築します。
func NewRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	chatHandler := handlers.NewChatHandler(app.Orchestrator, app.Sessions, app.BackendName)
	sessionHandler := handlers.NewSessionHandler(app.Sessions)
	adminHandler := handlers.NewAdminHandler(app.Config, app.Sessions)
	monitoringHandler := handlers.NewMonitoringHandler(app.Monitoring, app.Sessions)

	// ミドルウェアの登録
	r.Use(app.Monitoring.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-API-KEY")
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(app.Config.APIKey), handlers.MaintenanceGuard())
	{
		v1.GET("/catalog/metrics", handlers.GetMetricCatalog)

		v1.POST("/chat", chatHandler.Chat)
		v1.POST("/chat/freeform", chatHandler.Freeform)
		v1.POST("/parse", chatHandler.Parse)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.GET("/:id/summary", sessionHandler.Summary)
			sessions.GET("/:id/export", sessionHandler.Export)
		}

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
			admin.POST("/sessions/purge", adminHandler.PurgeSessions)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	return r
}
