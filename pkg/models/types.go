package models

import "time"

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message   string   `json:"message" binding:"required"`
	Metrics   []string `json:"metrics,omitempty"`    // UIで選択された指標
	SessionID string   `json:"session_id,omitempty"` // セッションIDで会話を紐付け
}

// ChatResponse represents the response from the chat API
type ChatResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Backend   string `json:"backend"`
	TurnReply
}

// ChatMessage 役割付きのメッセージ
type ChatMessage struct {
	Role    string `json:"role" binding:"required"` // "system" / "user" / "assistant"
	Content string `json:"content"`
}

// FreeformChatRequest 分析パイプラインを通さない会話リクエスト
type FreeformChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required"`
}

// ParseRequest パーサー単体の呼び出し
type ParseRequest struct {
	Message string   `json:"message" binding:"required"`
	Metrics []string `json:"metrics,omitempty"`
}

// ParseResponse パーサー単体の結果。RequestかClarificationのどちらか一方が入ります。
type ParseResponse struct {
	Success       bool                  `json:"success"`
	Request       *AnalysisRequest      `json:"request,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
}

// TranscriptEntry チャット履歴の1エントリー
type TranscriptEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Message   string    `json:"message"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSnapshot セッションの状態
type SessionSnapshot struct {
	SessionID     string            `json:"session_id"`
	CreatedAt     time.Time         `json:"created_at"`
	LastActiveAt  time.Time         `json:"last_active_at"`
	State         string            `json:"state"`
	Transcript    []TranscriptEntry `json:"transcript"`
	Memory        []TurnRecord      `json:"memory"`
	WorkflowSteps []WorkflowStep    `json:"workflow_steps"`
}

// SessionSummary 最新テーブルの指標ごとの統計
type SessionSummary struct {
	SessionID string             `json:"session_id"`
	Location  string             `json:"location"`
	DateRange string             `json:"date_range"`
	Rows      int                `json:"rows"`
	Metrics   []MetricStatistics `json:"metrics"`
}
