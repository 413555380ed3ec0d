package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agriviewer-chat-api/pkg/llm"

	genai "google.golang.org/genai"
)

// Client はGoogle GenAI SDKの薄いラッパーです。
type Client struct {
	cli   *genai.Client
	model string
}

// Options は接続設定です。BaseURLはテストやプロキシ経由の接続でのみ指定します。
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewClient は新しいGeminiクライアントを作成します。
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key が設定されていません: %w", llm.ErrBackendAuth)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: opts.Timeout},
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}

	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗: %w", err)
	}
	return &Client{cli: cli, model: opts.Model}, nil
}

func (g *Client) Name() string { return "gemini:" + g.model }

// Complete はsystemメッセージをSystemInstructionへ、assistantをmodelロールへ写して生成します。
func (g *Client) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	contents, system := toContents(messages)

	temperature := float32(params.Temperature)
	topP := float32(params.TopP)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		MaxOutputTokens: int32(params.MaxNewTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", classify(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini: %w", llm.ErrEmptyReply)
	}
	return text, nil
}

func toContents(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

// classify はSDKのエラーをバックエンドの分類エラーへ変換します。
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Backend: "Gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return llm.ClassifyTransport("Gemini", err)
}
