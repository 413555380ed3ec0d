package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptConfig はprompts.yamlの構造を定義
type PromptConfig struct {
	System struct {
		Role     string `yaml:"role"`
		Version  string `yaml:"version"`
		Language string `yaml:"language"`
	} `yaml:"system"`

	Welcome      string `yaml:"welcome"`
	SystemPrompt string `yaml:"system_prompt"`

	Extraction struct {
		UserPrefix        string `yaml:"user_prefix"`
		MetricsHintFormat string `yaml:"metrics_hint_format"`
		Instructions      string `yaml:"instructions"`
	} `yaml:"extraction"`

	Analysis struct {
		Template string `yaml:"template"`
	} `yaml:"analysis"`

	FollowUpQuestions []string `yaml:"follow_up_questions"`

	SpecialCommands struct {
		Help struct {
			Trigger  []string `yaml:"trigger"`
			Response string   `yaml:"response"`
		} `yaml:"help"`
		Exit struct {
			Trigger []string `yaml:"trigger"`
		} `yaml:"exit"`
	} `yaml:"special_commands"`

	Metadata struct {
		LastUpdated string `yaml:"last_updated"`
		Version     string `yaml:"version"`
	} `yaml:"metadata"`
}

var (
	defaultPrompts     *PromptConfig
	defaultPromptsErr  error
	defaultPromptsOnce sync.Once
)

// DefaultPrompts は埋め込み済みのprompts.yamlを一度だけパースして返します。
func DefaultPrompts() (*PromptConfig, error) {
	defaultPromptsOnce.Do(func() {
		var cfg PromptConfig
		if err := yaml.Unmarshal(defaultPromptsYAML, &cfg); err != nil {
			defaultPromptsErr = fmt.Errorf("埋め込みプロンプトのパースに失敗: %w", err)
			return
		}
		defaultPrompts = &cfg
	})
	return defaultPrompts, defaultPromptsErr
}

// LoadPrompts はプロンプト設定を読み込みます。
// pathが空なら埋め込みのデフォルトを返し、指定があればそのファイルの項目でデフォルトを上書きします。
func LoadPrompts(path string) (*PromptConfig, error) {
	base, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("プロンプト設定ファイルの読み込みに失敗: %w", err)
	}

	merged := *base
	merged.FollowUpQuestions = append([]string(nil), base.FollowUpQuestions...)
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	return &merged, nil
}

// BuildExtractionInstructions は抽出用のシステムプロンプトに語彙を埋め込みます。
func (c *PromptConfig) BuildExtractionInstructions(vocabulary []string) string {
	return strings.ReplaceAll(c.Extraction.Instructions, "{metrics}", strings.Join(vocabulary, ", "))
}

// BuildExtractionQuery はユーザー入力を抽出リクエスト用の文に整形します。
func (c *PromptConfig) BuildExtractionQuery(text string, metricsHint []string) string {
	if len(metricsHint) > 0 {
		text = strings.NewReplacer(
			"{text}", text,
			"{metrics}", strings.Join(metricsHint, ", "),
		).Replace(c.Extraction.MetricsHintFormat)
	}
	return c.Extraction.UserPrefix + text
}

// AnalysisPromptParams は分析プロンプトの差し込み値です。
type AnalysisPromptParams struct {
	AnalysisTypes string
	Data          string
	Location      string
	DateRange     string
	CropType      string
	Metrics       []string
}

// BuildAnalysisPrompt は分析テンプレートに値を差し込みます。
func (c *PromptConfig) BuildAnalysisPrompt(p AnalysisPromptParams) string {
	cropType := p.CropType
	if strings.TrimSpace(cropType) == "" {
		cropType = "unspecified"
	}
	return strings.NewReplacer(
		"{analysis_types}", p.AnalysisTypes,
		"{data}", p.Data,
		"{location}", p.Location,
		"{date_range}", p.DateRange,
		"{crop_type}", cropType,
		"{metrics}", strings.Join(p.Metrics, ", "),
	).Replace(c.Analysis.Template)
}

// BuildFollowUpQuestions は最大limit件のフォローアップ質問を返します。
func (c *PromptConfig) BuildFollowUpQuestions(location string, limit int) []string {
	questions := make([]string, 0, limit)
	for _, q := range c.FollowUpQuestions {
		if len(questions) >= limit {
			break
		}
		questions = append(questions, strings.ReplaceAll(q, "{location}", location))
	}
	return questions
}

// CheckSpecialCommand は特別なコマンドかチェック
func (c *PromptConfig) CheckSpecialCommand(message string) (bool, string) {
	lowerMsg := strings.ToLower(strings.TrimSpace(message))

	for _, trigger := range c.SpecialCommands.Help.Trigger {
		if lowerMsg == strings.ToLower(trigger) {
			return true, strings.TrimSpace(c.SpecialCommands.Help.Response)
		}
	}
	return false, ""
}

// IsExitCommand は対話セッションを終了する入力かを判定します。
func (c *PromptConfig) IsExitCommand(message string) bool {
	lowerMsg := strings.ToLower(strings.TrimSpace(message))
	for _, trigger := range c.SpecialCommands.Exit.Trigger {
		if lowerMsg == strings.ToLower(trigger) {
			return true
		}
	}
	return false
}
