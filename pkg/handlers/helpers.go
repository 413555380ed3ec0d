package handlers

import (
	"fmt"
	"net/http"

	"agriviewer-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// lookupSession はパスの:idからセッションを取得します。見つからなければ404を返します。
func lookupSession(c *gin.Context, store *services.SessionStore) (*services.Session, bool) {
	id := c.Param("id")
	session, ok := store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("セッションが見つかりません: %s", id)})
		return nil, false
	}
	c.Set(services.SessionIDContextKey, session.ID)
	return session, true
}

// periodHours はモニタリングの期間指定を時間数に変換します。
func periodHours(period string) int {
	switch period {
	case "1h":
		return 1
	case "7d":
		return 24 * 7
	default:
		return 24
	}
}
