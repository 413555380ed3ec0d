package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/catalog"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/models"
)

// 聞き返しの定型文
const (
	clarifyRephrase = "I couldn't understand that completely. Could you rephrase your request with a specific location and what you'd like to analyze?"
	clarifyLocation = "Could you please clarify: I need a specific location to analyze. Where should I look?"
	clarifyErrorFmt = "I need some clarification: %s. Could you please provide more details?"
)

// RequestParser は自然文を分析リクエストに変換します。抽出自体は言語モデルに任せます。
type RequestParser struct {
	llm     *LLMService
	prompts *config.PromptConfig
}

// NewRequestParser 新しいパーサーを作成
func NewRequestParser(llmService *LLMService, prompts *config.PromptConfig) *RequestParser {
	return &RequestParser{llm: llmService, prompts: prompts}
}

// Parse はユーザー入力を1回のバックエンド呼び出しで解析します。
// 戻り値はAnalysisRequestかClarificationRequestのどちらか一方だけが非nilです。
func (p *RequestParser) Parse(ctx context.Context, userText string, metricsHint []string) (*models.AnalysisRequest, *models.ClarificationRequest) {
	if strings.TrimSpace(userText) == "" {
		return nil, &models.ClarificationRequest{Prompt: clarifyRephrase}
	}
	for _, m := range metricsHint {
		if !catalog.IsValid(m) {
			return nil, &models.ClarificationRequest{Prompt: catalog.ClarificationText()}
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: p.prompts.BuildExtractionInstructions(catalog.Vocabulary())},
		{Role: llm.RoleUser, Content: p.prompts.BuildExtractionQuery(userText, metricsHint)},
	}

	reply, err := p.llm.Generate(ctx, messages)
	if err != nil {
		log.Printf("❌ [Parser] 抽出リクエストに失敗: %v", err)
		return nil, &models.ClarificationRequest{Prompt: llm.UserMessage(err)}
	}

	req, clarification := interpretExtraction(reply, metricsHint)
	if clarification != nil {
		log.Printf("🧭 [Parser] 聞き返し: %s", clarification.Prompt)
		return nil, clarification
	}
	log.Printf("🧭 [Parser] location=%q date_range=%q metrics=%v", req.Location, req.DateRange, req.Metrics)
	return req, nil
}

// interpretExtraction は抽出結果のJSONを検証してリクエストへ変換します。
// 判定順は JSON → error → location → metrics です。
func interpretExtraction(reply string, metricsHint []string) (*models.AnalysisRequest, *models.ClarificationRequest) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &parsed); err != nil || parsed == nil {
		return nil, &models.ClarificationRequest{Prompt: clarifyRephrase}
	}

	if errVal, ok := parsed["error"]; ok && errVal != nil {
		return nil, &models.ClarificationRequest{Prompt: fmt.Sprintf(clarifyErrorFmt, stringify(errVal))}
	}

	location, _ := parsed["location"].(string)
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, &models.ClarificationRequest{Prompt: clarifyLocation}
	}

	metrics, ok := extractMetrics(parsed["metrics"])
	if !ok {
		return nil, &models.ClarificationRequest{Prompt: catalog.ClarificationText()}
	}
	if len(metrics) == 0 {
		if len(metricsHint) > 0 {
			metrics = dedupe(metricsHint)
		} else {
			metrics = catalog.DefaultMetrics()
		}
	}

	return &models.AnalysisRequest{
		Location:          location,
		DateRange:         extractDateRange(parsed["date_range"]),
		Metrics:           metrics,
		CropType:          extractOptionalText(parsed["crop_type"]),
		AdditionalContext: extractContext(parsed["additional_context"]),
	}, nil
}

// stripCodeFence は ```json ... ``` で囲まれた応答から中身を取り出します。
func stripCodeFence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractMetrics は語彙外の値や文字列以外を含む場合にok=falseを返します。
func extractMetrics(v interface{}) ([]string, bool) {
	if v == nil {
		return nil, true
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok || !catalog.IsValid(strings.TrimSpace(name)) {
			return nil, false
		}
		out = append(out, strings.TrimSpace(name))
	}
	return dedupe(out), true
}

func extractDateRange(v interface{}) string {
	switch dr := v.(type) {
	case string:
		if strings.TrimSpace(dr) != "" {
			return strings.TrimSpace(dr)
		}
	case map[string]interface{}:
		start, _ := dr["start"].(string)
		end, _ := dr["end"].(string)
		if start != "" && end != "" {
			return start + " to " + end
		}
	}
	return catalog.DefaultDateRange
}

func extractOptionalText(v interface{}) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

func extractContext(v interface{}) map[string]interface{} {
	switch c := v.(type) {
	case map[string]interface{}:
		return c
	case nil:
		return map[string]interface{}{}
	default:
		if s := strings.TrimSpace(stringify(c)); s != "" {
			return map[string]interface{}{"note": s}
		}
		return map[string]interface{}{}
	}
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
