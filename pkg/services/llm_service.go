package services

import (
	"context"
	"fmt"
	"log"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/azure"
	"agriviewer-chat-api/pkg/gemini"
	"agriviewer-chat-api/pkg/llm"
)

// LLMService は言語モデルバックエンドの呼び出しにタイムアウトと生成パラメータを付与します。
type LLMService struct {
	backend     llm.Backend
	timeout     time.Duration
	temperature float64
	maxTokens   int
	topP        float64
}

// NewLLMService 新しいLLMサービスを作成
func NewLLMService(backend llm.Backend, timeout time.Duration, temperature float64) *LLMService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMService{
		backend:     backend,
		timeout:     timeout,
		temperature: temperature,
		maxTokens:   512,
		topP:        0.9,
	}
}

// WithSampling は設定ファイル由来のmax_new_tokensとtop_pを反映します。
func (s *LLMService) WithSampling(maxTokens int, topP float64) *LLMService {
	if maxTokens > 0 {
		s.maxTokens = maxTokens
	}
	if topP > 0 {
		s.topP = topP
	}
	return s
}

// Name はバックエンド名を返します。
func (s *LLMService) Name() string { return s.backend.Name() }

// Params は1回の生成に使うパラメータです。
func (s *LLMService) Params() llm.Params {
	p := llm.DefaultParams(s.temperature)
	p.MaxNewTokens = s.maxTokens
	p.TopP = s.topP
	return p
}

// Generate は1回だけ生成を要求し、テンプレート制御トークンを除去した応答を返します。リトライはしません。
func (s *LLMService) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.backend.Complete(ctx, messages, s.Params())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !llm.IsBackendError(err) {
			return "", fmt.Errorf("%s: %w: %v", s.backend.Name(), llm.ErrBackendTimeout, err)
		}
		return "", err
	}
	return llm.CleanReply(s.backend, raw), nil
}

// NewBackendFromConfig は設定に応じてバックエンドを1つだけ選んで生成します。
func NewBackendFromConfig(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	var backend llm.Backend
	switch cfg.LLMBackend {
	case "huggingface", "hf", "":
		template, err := llm.NewChatTemplate(cfg.HuggingFaceChatTemplate)
		if err != nil {
			return nil, err
		}
		if cfg.HuggingFaceAPIKey == "" {
			log.Printf("⚠️ [LLM] HF_API_KEY が設定されていません。匿名アクセスで呼び出します。")
		}
		backend = llm.NewHuggingFaceClient(cfg.HuggingFaceAPIURL, cfg.HuggingFaceAPIKey, template, cfg.LLMTimeout)
	case "azure":
		backend = azure.NewOpenAIClient(
			cfg.AzureOpenAIEndpoint,
			cfg.AzureOpenAIAPIKey,
			cfg.AzureOpenAIAPIVersion,
			cfg.AzureOpenAIChatDeploymentName,
			cfg.AzureOpenAIProxyURL,
			cfg.LLMTimeout,
		)
	case "gemini":
		g, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		backend = g
	default:
		return nil, fmt.Errorf("未対応のLLMバックエンド: %s", cfg.LLMBackend)
	}

	log.Printf("🤖 [LLM] バックエンド %s を使用します", backend.Name())
	return llm.WithLogging(backend, nil), nil
}
