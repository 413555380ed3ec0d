// Package server はサービスとハンドラーを組み立て、Ginのルーターを構築します。
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/services"
)

// App はプロセス全体で共有するサービス群です。
type App struct {
	Config       *config.Config
	Prompts      *config.PromptConfig
	Sessions     *services.SessionStore
	Orchestrator *services.Orchestrator
	Monitoring   *services.MonitoringService
	BackendName  string
}

// NewApp は設定からバックエンドを選択してAppを生成します。
func NewApp(ctx context.Context, cfg *config.Config, dsCfg *config.DataSourceConfig) (*App, error) {
	backend, err := services.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("LLMバックエンドの初期化に失敗: %w", err)
	}
	return NewAppWithBackend(cfg, dsCfg, backend)
}

// NewAppWithBackend は指定のバックエンドでAppを生成します。
func NewAppWithBackend(cfg *config.Config, dsCfg *config.DataSourceConfig, backend llm.Backend) (*App, error) {
	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	source, err := services.NewDataSource(dsCfg, cfg.LLMTimeout)
	if err != nil {
		return nil, fmt.Errorf("データソースの初期化に失敗: %w", err)
	}
	log.Printf("🛰️ [DataSource] %s を使用します", source.Name())

	llmService := services.NewLLMService(backend, cfg.LLMTimeout, cfg.Temperature).
		WithSampling(cfg.MaxNewTokens, cfg.TopP)

	orchestrator := services.NewOrchestrator(
		services.NewRequestParser(llmService, prompts),
		source,
		services.NewResultsNormalizer(dsCfg.Seed),
		services.NewInsightGenerator(llmService, prompts),
		prompts,
	)

	return &App{
		Config:       cfg,
		Prompts:      prompts,
		Sessions:     services.NewSessionStore(cfg.MaxSessions, cfg.SessionTTL),
		Orchestrator: orchestrator,
		Monitoring:   services.NewMonitoringService(loadLocation(cfg.MonitoringTimezone)),
		BackendName:  llmService.Name(),
	}, nil
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("⚠️ [Config] タイムゾーン %q を読み込めません。UTCを使用します: %v", name, err)
		return time.UTC
	}
	return loc
}
