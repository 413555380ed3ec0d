package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/services"

	"github.com/joho/godotenv"
)

func main() {
	message := flag.String("message", "Hello!", "送信するメッセージ")
	flag.Parse()

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: .env file not found or could not be loaded: %v", err)
	}

	cfg := config.LoadConfig()
	ctx := context.Background()

	backend, err := services.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("FATAL: バックエンドの初期化に失敗: %v", err)
	}
	svc := services.NewLLMService(backend, cfg.LLMTimeout, cfg.Temperature).WithSampling(cfg.MaxNewTokens, cfg.TopP)

	log.Printf("INFO: %s にリクエストを送信します...", svc.Name())
	start := time.Now()
	reply, err := svc.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: *message}})
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			log.Printf("ERROR: ステータスコード %d", statusErr.StatusCode)
		}
		log.Fatalf("FATAL: %v (%s)", err, llm.UserMessage(err))
	}

	log.Printf("INFO: %v で応答を受信しました", time.Since(start).Round(time.Millisecond))
	log.Println("--- 応答 ---")
	log.Println(reply)
}
