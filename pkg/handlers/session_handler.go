package handlers

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strings"

	"agriviewer-chat-api/pkg/models"
	"agriviewer-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SessionHandler はセッション管理APIのハンドラです。
type SessionHandler struct {
	store *services.SessionStore
}

// NewSessionHandler は新しいSessionHandlerを生成します。
func NewSessionHandler(store *services.SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

// Create は新しいセッションを開始します。
func (h *SessionHandler) Create(c *gin.Context) {
	session := h.store.Create()
	c.Set(services.SessionIDContextKey, session.ID)
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"session_id": session.ID,
		"created_at": session.CreatedAt,
	})
}

// Get はセッションの会話履歴、メモリ、直近のワークフローを返します。
func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := lookupSession(c, h.store)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": session.Snapshot()})
}

// Delete はセッションを終了します。メモリは破棄されます。
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.store.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("セッションが見つかりません: %s", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "セッションを終了しました"})
}

// Summary は最新の分析テーブルの指標ごとの統計を返します。
func (h *SessionHandler) Summary(c *gin.Context) {
	session, ok := lookupSession(c, h.store)
	if !ok {
		return
	}
	record, ok := session.LatestRecord()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "このセッションにはまだ分析結果がありません"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": models.SessionSummary{
			SessionID: session.ID,
			Location:  record.Request.Location,
			DateRange: record.Request.DateRange,
			Rows:      record.Table.Len(),
			Metrics:   services.SummarizeSeries(record.Table),
		},
	})
}

// Export は最新の分析テーブルをCSVまたはExcelでダウンロードさせます。
func (h *SessionHandler) Export(c *gin.Context) {
	session, ok := lookupSession(c, h.store)
	if !ok {
		return
	}
	record, ok := session.LatestRecord()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "このセッションにはまだ分析結果がありません"})
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	var (
		buf         bytes.Buffer
		err         error
		contentType string
	)
	switch format {
	case "csv":
		err = services.WriteCSV(&buf, record.Table)
		contentType = contentTypeCSV
	case "xlsx":
		err = services.WriteXLSX(&buf, record.Table)
		contentType = contentTypeXLSX
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "formatはcsvかxlsxを指定してください"})
		return
	}
	if err != nil {
		log.Printf("❌ [Export] 出力に失敗: session=%s format=%s: %v", session.ID, format, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "ファイルの生成に失敗しました"})
		return
	}

	filename := fmt.Sprintf("agriviewer_analysis_%s.%s", record.CreatedAt.Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
