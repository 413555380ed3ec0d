package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agriviewer-chat-api/pkg/llm"
)

// OpenAIClient はAzure OpenAI REST APIへのリクエストを管理します。
// endpointにはAzure OpenAIの実際のエンドポイント、またはリクエストを転送するリバースプロキシを設定します。
type OpenAIClient struct {
	endpoint           string
	apiKey             string
	apiVersion         string
	chatDeploymentName string
	httpClient         *http.Client
}

// NewOpenAIClient は新しいAzure OpenAIクライアントを作成します。
func NewOpenAIClient(endpoint, apiKey, apiVersion, chatDeploymentName, proxyURL string, timeout time.Duration) *OpenAIClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxy)
			log.Println("HTTPクライアントにプロキシを設定しました:", proxyURL)
		} else {
			log.Printf("警告: 無効なプロキシURLです。プロキシは使用されません: %v", err)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIClient{
		endpoint:           endpoint,
		apiKey:             apiKey,
		apiVersion:         apiVersion,
		chatDeploymentName: chatDeploymentName,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// --- データ構造定義 ---

// ChatMessage チャットメッセージ
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest チャット補完リクエスト
type ChatCompletionRequest struct {
	Messages         []ChatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
}

// ChatCompletionResponse チャット補完レスポンス
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// --- メソッド定義 ---

func (c *OpenAIClient) Name() string { return "azure:" + c.chatDeploymentName }

// Complete はllm.Backendの実装です。チャット形式のAPIなのでテンプレートの平坦化は行いません。
func (c *OpenAIClient) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	chat := make([]ChatMessage, len(messages))
	for i, m := range messages {
		chat[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}

	response, err := c.ChatCompletion(ctx, chat, params)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("Azure OpenAI: %w", llm.ErrEmptyReply)
	}
	return response.Choices[0].Message.Content, nil
}

// ChatCompletion チャット補完を実行
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []ChatMessage, params llm.Params) (*ChatCompletionResponse, error) {
	// リクエストURLをエンドポイントとデプロイ名から組み立てます。
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(c.endpoint, "/"), c.chatDeploymentName, c.apiVersion)

	request := ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   params.MaxNewTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	// repetition_penaltyはOpenAI系APIに無いため、1.0超過分をfrequency_penaltyとして渡す
	if params.RepetitionPenalty > 1 {
		request.FrequencyPenalty = params.RepetitionPenalty - 1
	}

	var response ChatCompletionResponse
	if err := c.doRequest(ctx, url, request, &response); err != nil {
		return nil, fmt.Errorf("Azure OpenAI API 呼び出しに失敗: %w", err)
	}
	return &response, nil
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *OpenAIClient) doRequest(ctx context.Context, url string, requestData interface{}, responseData interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key が設定されていません: %w", llm.ErrBackendAuth)
	}

	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.ClassifyTransport("Azure OpenAI", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.ClassifyTransport("Azure OpenAI", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			msg = errorResp.Error.Message
		}
		return &llm.StatusError{Backend: "Azure OpenAI", StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, responseData); err != nil {
		return fmt.Errorf("レスポンスのJSON解析に失敗: %w", llm.ErrBackendStatus)
	}
	return nil
}
