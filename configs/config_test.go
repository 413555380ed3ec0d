package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// テスト用の環境変数を設定
	testCases := map[string]string{
		"PORT":             "9090",
		"ENVIRONMENT":      "test",
		"LLM_BACKEND":      "Azure",
		"HF_MODEL_NAME":    "meta-llama/Llama-2-8b-chat-hf",
		"LLM_TEMPERATURE":  "0.2",
		"LLM_TIMEOUT":      "45",
		"SESSION_TTL":      "10m",
		"MAX_SESSIONS":     "5",
		"DATA_SOURCE_TYPE": "Fixture",
	}

	for key, value := range testCases {
		t.Setenv(key, value)
	}

	cfg := LoadConfig()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be '9090', got '%s'", cfg.Port)
	}
	if cfg.Environment != "test" {
		t.Errorf("Expected Environment to be 'test', got '%s'", cfg.Environment)
	}
	assert.Equal(t, "azure", cfg.LLMBackend)
	assert.Equal(t, "llama2", cfg.HuggingFaceChatTemplate)
	assert.Equal(t, "https://api-inference.huggingface.co/models/meta-llama/Llama-2-8b-chat-hf", cfg.HuggingFaceAPIURL)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.MaxSessions)

	ds := GetDataSourceConfig()
	assert.Equal(t, "fixture", ds.Type)
}

func TestLoadConfigDefaults(t *testing.T) {
	vars := []string{
		"PORT", "ENVIRONMENT", "LLM_BACKEND", "HF_MODEL_NAME", "HF_API_URL", "HF_CHAT_TEMPLATE",
		"LLM_TEMPERATURE", "LLM_TOP_P", "LLM_MAX_NEW_TOKENS", "LLM_TIMEOUT",
		"SESSION_TTL", "MAX_SESSIONS", "DATA_SOURCE_TYPE",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	cfg := LoadConfig()

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Expected default Environment to be 'development', got '%s'", cfg.Environment)
	}
	assert.Equal(t, "huggingface", cfg.LLMBackend)
	assert.Equal(t, "HuggingFaceH4/zephyr-7b-beta", cfg.HuggingFaceModel)
	assert.Equal(t, "zephyr", cfg.HuggingFaceChatTemplate)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.InDelta(t, 0.9, cfg.TopP, 1e-9)
	assert.Equal(t, 512, cfg.MaxNewTokens)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "mock", GetDataSourceConfig().Type)
}

func TestDefaultPrompts(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	assert.Equal(t, "Welcome to AgriViewer! What would you like to analyze? (Specify location/crop/date)", p.Welcome)
	assert.Len(t, p.FollowUpQuestions, 3)
	assert.Contains(t, p.SystemPrompt, "expert agricultural analysis AI assistant")

	instructions := p.BuildExtractionInstructions([]string{"NDVI", "soil_moisture"})
	assert.Contains(t, instructions, "(from: NDVI, soil_moisture)")
	assert.NotContains(t, instructions, "{metrics}")
}

func TestBuildExtractionQuery(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	assert.Equal(t,
		"Extract structured information from this query: Analyze Field A23 in Austin, Texas",
		p.BuildExtractionQuery("Analyze Field A23 in Austin, Texas", nil))
	assert.Equal(t,
		"Extract structured information from this query: check my farm analyzing metrics: NDVI, pest_risk",
		p.BuildExtractionQuery("check my farm", []string{"NDVI", "pest_risk"}))
}

func TestBuildAnalysisPrompt(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	prompt := p.BuildAnalysisPrompt(AnalysisPromptParams{
		AnalysisTypes: "- NDVI: vegetation",
		Data:          "DATE NDVI",
		Location:      "Field A23",
		DateRange:     "last 30 days",
		Metrics:       []string{"NDVI"},
	})
	assert.Contains(t, prompt, "- Location: Field A23")
	assert.Contains(t, prompt, "- Crop Type: unspecified")
	assert.Contains(t, prompt, "- NDVI: vegetation")
	assert.False(t, strings.Contains(prompt, "{data}"))
}

func TestBuildFollowUpQuestions(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	qs := p.BuildFollowUpQuestions("Austin", 3)
	require.Len(t, qs, 3)
	assert.Equal(t, "Would you like to see a detailed analysis of specific areas in Austin?", qs[0])
	assert.Len(t, p.BuildFollowUpQuestions("Austin", 1), 1)
}

func TestLoadPromptsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("welcome: \"Hi there\"\nfollow_up_questions:\n  - \"More on {location}?\"\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", p.Welcome)
	assert.Equal(t, []string{"More on {location}?"}, p.FollowUpQuestions)
	// 上書きされていない項目はデフォルトのまま
	assert.Contains(t, p.SystemPrompt, "agronomy")

	base, err := DefaultPrompts()
	require.NoError(t, err)
	assert.Len(t, base.FollowUpQuestions, 3)

	_, err = LoadPrompts(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSpecialCommands(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)

	ok, reply := p.CheckSpecialCommand(" HELP ")
	assert.True(t, ok)
	assert.Contains(t, reply, "NDVI")

	ok, _ = p.CheckSpecialCommand("help me analyze Field A23")
	assert.False(t, ok)

	assert.True(t, p.IsExitCommand("Quit"))
	assert.False(t, p.IsExitCommand("quite a field"))
}
