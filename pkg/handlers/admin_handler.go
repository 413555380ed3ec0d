package handlers

import (
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// isMaintenanceMode はサーバーがメンテナンスモードかどうかを示します。
var isMaintenanceMode atomic.Bool

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string
	sessions      *services.SessionStore
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, sessions *services.SessionStore) *AdminHandler {
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		sessions:      sessions,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authorize は資格情報を検証し、失敗時はレスポンスを書いてfalseを返します。
// パスワード未設定の場合は管理操作そのものを無効にします。
func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Username and password are required"})
		return false
	}
	if h.AdminPassword == "" || input.Username != h.AdminUsername || input.Password != h.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(true)
	log.Printf("🔧 [Admin] メンテナンスモード開始")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(false)
	log.Printf("🔧 [Admin] メンテナンスモード終了")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Maintenance mode stopped"})
}

// PurgeSessions はすべてのセッションを終了させます。
func (h *AdminHandler) PurgeSessions(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	n := h.sessions.Purge()
	log.Printf("🗑️ [Admin] %d件のセッションを終了", n)
	c.JSON(http.StatusOK, gin.H{"success": true, "purged": n})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isMaintenanceMode": isMaintenanceMode.Load(),
		"activeSessions":    h.sessions.Len(),
	})
}

// MaintenanceGuard はメンテナンス中に管理API以外のリクエストを503で拒否します。
func MaintenanceGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isMaintenanceMode.Load() && !strings.HasPrefix(c.Request.URL.Path, "/api/v1/admin") {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Server is in maintenance mode"})
			return
		}
		c.Next()
	}
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(c *gin.Context) {
	if isMaintenanceMode.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
