package handlers

import (
	"net/http"

	"agriviewer-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler はモニタリング関連の操作のハンドラです。
type MonitoringHandler struct {
	Service  *services.MonitoringService
	sessions *services.SessionStore
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(service *services.MonitoringService, sessions *services.SessionStore) *MonitoringHandler {
	return &MonitoringHandler{
		Service:  service,
		sessions: sessions,
	}
}

// GetLogs は集計されたログデータを返します。periodは1h/24h/7dです。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	data := h.Service.GetDashboardData(periodHours(c.DefaultQuery("period", "24h")))
	data.ActiveSessions = h.sessions.Len()
	c.JSON(http.StatusOK, data)
}
