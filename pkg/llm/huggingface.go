package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceClient はHugging Face Inference APIのtext-generationエンドポイントを呼び出します。
type HuggingFaceClient struct {
	apiURL     string
	apiKey     string
	template   ChatTemplate
	httpClient *http.Client
}

// NewHuggingFaceClient は新しいクライアントを作成します。
func NewHuggingFaceClient(apiURL, apiKey string, template ChatTemplate, timeout time.Duration) *HuggingFaceClient {
	if template == nil {
		template = ZephyrTemplate{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HuggingFaceClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		template:   template,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- データ構造定義 ---

type hfParameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	DoSample          bool    `json:"do_sample"`
	ReturnFullText    bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// --- メソッド定義 ---

func (c *HuggingFaceClient) Name() string { return "huggingface:" + c.template.Name() }

// Clean はテンプレートの制御トークンを応答から取り除きます。
func (c *HuggingFaceClient) Clean(reply string) string { return c.template.Clean(reply) }

// Complete はメッセージをテンプレートで平坦化して1回だけ生成を要求します。
func (c *HuggingFaceClient) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	prompt := c.template.Format(messages)
	payload := hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:      params.MaxNewTokens,
			Temperature:       params.Temperature,
			TopP:              params.TopP,
			RepetitionPenalty: params.RepetitionPenalty,
			DoSample:          params.DoSample,
			ReturnFullText:    false,
		},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ClassifyTransport("Hugging Face", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ClassifyTransport("Hugging Face", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var e hfError
		if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
			msg = e.Error
		}
		return "", &StatusError{Backend: "Hugging Face", StatusCode: resp.StatusCode, Message: msg}
	}

	text, err := decodeGeneration(body)
	if err != nil {
		return "", err
	}
	// return_full_textを無視するエンドポイントではプロンプトがそのまま前置される
	text = strings.TrimPrefix(text, prompt)
	return text, nil
}

// decodeGeneration は配列形式とオブジェクト形式の両方の応答を受け付けます。
func decodeGeneration(body []byte) (string, error) {
	var list []hfGeneration
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return "", fmt.Errorf("Hugging Face: %w", ErrEmptyReply)
		}
		return list[0].GeneratedText, nil
	}
	var single hfGeneration
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return single.GeneratedText, nil
	}
	return "", fmt.Errorf("Hugging Face: %w: レスポンスのJSON解析に失敗", ErrBackendStatus)
}
