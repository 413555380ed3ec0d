package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/models"
	"agriviewer-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ChatHandler はチャットAPIのハンドラです。
type ChatHandler struct {
	orchestrator *services.Orchestrator
	sessions     *services.SessionStore
	backendName  string
}

// NewChatHandler は新しいChatHandlerを生成します。
func NewChatHandler(orchestrator *services.Orchestrator, sessions *services.SessionStore, backendName string) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		sessions:     sessions,
		backendName:  backendName,
	}
}

// Chat は1ターン分の分析を実行します。
// session_idが空か未知の場合は新しいセッションを開始します。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}

	session := h.sessions.GetOrCreate(req.SessionID)
	c.Set(services.SessionIDContextKey, session.ID)

	reply := h.orchestrator.HandleTurn(c.Request.Context(), session, req.Message, req.Metrics)
	if reply.Kind == models.ReplyError {
		log.Printf("⚠️ [Chat] ターン処理でエラー: session=%s", session.ID)
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Success:   reply.Kind != models.ReplyError,
		Timestamp: time.Now().Format(time.RFC3339),
		Backend:   h.backendName,
		TurnReply: reply,
	})
}

// Freeform は分析パイプラインを通さずにモデルと会話します。
func (h *ChatHandler) Freeform(c *gin.Context) {
	var req models.FreeformChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.ToLower(m.Role)
		if !validRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "不明なroleです: " + m.Role})
			return
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	content, err := h.orchestrator.Insights().Chat(c.Request.Context(), messages)
	if err != nil {
		log.Printf("❌ [Chat] フリーフォーム応答の生成に失敗: %v", err)
		status := http.StatusInternalServerError
		if llm.IsBackendError(err) {
			status = http.StatusBadGateway
		}
		if len(messages) == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": llm.UserMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "content": content, "backend": h.backendName})
}

// Parse はパーサーのみを実行し、分析リクエストか聞き返しを返します。
func (h *ChatHandler) Parse(c *gin.Context) {
	var req models.ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}

	request, clarification := h.orchestrator.Parser().Parse(c.Request.Context(), req.Message, req.Metrics)
	c.JSON(http.StatusOK, models.ParseResponse{
		Success:       request != nil,
		Request:       request,
		Clarification: clarification,
	})
}

func validRole(role string) bool {
	switch role {
	case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		return true
	}
	return false
}
