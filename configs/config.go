package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port          string
	Environment   string
	APIKey        string
	AdminUsername string
	AdminPassword string

	// LLMBackend は huggingface / azure / gemini のいずれか
	LLMBackend string

	HuggingFaceAPIKey       string
	HuggingFaceModel        string
	HuggingFaceAPIURL       string
	HuggingFaceChatTemplate string

	AzureOpenAIEndpoint           string
	AzureOpenAIAPIKey             string
	AzureOpenAIAPIVersion         string
	AzureOpenAIChatDeploymentName string
	AzureOpenAIProxyURL           string

	GeminiAPIKey string
	GeminiModel  string

	Temperature  float64
	TopP         float64
	MaxNewTokens int
	LLMTimeout   time.Duration

	SessionTTL  time.Duration
	MaxSessions int
	PromptsFile string

	// MonitoringTimezone はダッシュボードの時間帯表示に使うIANA名
	MonitoringTimezone string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	model := getEnv("HF_MODEL_NAME", "HuggingFaceH4/zephyr-7b-beta")
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		APIKey:        getEnv("API_KEY", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		LLMBackend: strings.ToLower(getEnv("LLM_BACKEND", "huggingface")),

		HuggingFaceAPIKey:       getEnv("HF_API_KEY", ""),
		HuggingFaceModel:        model,
		HuggingFaceAPIURL:       getEnv("HF_API_URL", "https://api-inference.huggingface.co/models/"+model),
		HuggingFaceChatTemplate: strings.ToLower(getEnv("HF_CHAT_TEMPLATE", defaultChatTemplate(model))),

		AzureOpenAIEndpoint:           getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:             getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIAPIVersion:         getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		AzureOpenAIChatDeploymentName: getEnv("AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", "gpt-4o-mini"),
		AzureOpenAIProxyURL:           getEnv("AZURE_OPENAI_PROXY_URL", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		Temperature:  getEnvFloat("LLM_TEMPERATURE", 0.7),
		TopP:         getEnvFloat("LLM_TOP_P", 0.9),
		MaxNewTokens: getEnvInt("LLM_MAX_NEW_TOKENS", 512),
		LLMTimeout:   getEnvDuration("LLM_TIMEOUT", 30*time.Second),

		SessionTTL:  getEnvDuration("SESSION_TTL", 2*time.Hour),
		MaxSessions: getEnvInt("MAX_SESSIONS", 1000),
		PromptsFile: getEnv("PROMPTS_FILE", ""),

		MonitoringTimezone: getEnv("MONITORING_TIMEZONE", "UTC"),
	}
}

// defaultChatTemplate はモデル名からチャットテンプレートを推測します。
func defaultChatTemplate(model string) string {
	if strings.Contains(strings.ToLower(model), "llama") {
		return "llama2"
	}
	return "zephyr"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

// getEnvDuration は "30s" 形式と秒数の整数の両方を受け付けます。
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
