package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/catalog"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/models"

	"github.com/olekukonko/tablewriter"
)

// maxFollowUpQuestions はフォローアップ質問の上限
const maxFollowUpQuestions = 3

// 追加データが必要であることを示すフレーズ（小文字で比較）
var moreDataPhrases = []string{
	"need more data",
	"additional information required",
	"insufficient data",
	"historical data would be helpful",
}

// historicalRequestMetrics は過去データを要求された際に追加取得する指標
var historicalRequestMetrics = []string{"NDVI", "soil_moisture"}

// AnalysisContext は分析プロンプトに埋め込むリクエスト情報です。
type AnalysisContext struct {
	Location  string
	DateRange string
	CropType  string
	Metrics   []string
}

// NewAnalysisContext はリクエストから分析コンテキストを作ります。
func NewAnalysisContext(req *models.AnalysisRequest) AnalysisContext {
	return AnalysisContext{
		Location:  req.Location,
		DateRange: req.DateRange,
		CropType:  req.CropType,
		Metrics:   req.Metrics,
	}
}

// InsightGenerator は正規化テーブルから所見を生成します。
type InsightGenerator struct {
	llm     *LLMService
	prompts *config.PromptConfig
}

// NewInsightGenerator 新しいインサイト生成サービスを作成
func NewInsightGenerator(llmService *LLMService, prompts *config.PromptConfig) *InsightGenerator {
	return &InsightGenerator{llm: llmService, prompts: prompts}
}

// Analyze はテーブルとコンテキストを1回のバックエンド呼び出しで解説させます。
// バックエンドの失敗はそのままエラーとして返します。
func (g *InsightGenerator) Analyze(ctx context.Context, table models.MetricSeries, ac AnalysisContext) (*models.InsightResult, error) {
	prompt := g.prompts.BuildAnalysisPrompt(config.AnalysisPromptParams{
		AnalysisTypes: catalog.AnalysisTypes(),
		Data:          FormatTable(table),
		Location:      ac.Location,
		DateRange:     ac.DateRange,
		CropType:      ac.CropType,
		Metrics:       ac.Metrics,
	})

	narrative, err := g.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: g.prompts.SystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("分析の生成に失敗: %w", err)
	}
	if narrative == "" {
		return nil, fmt.Errorf("分析の生成に失敗: %w", llm.ErrEmptyReply)
	}

	needsMore, additional := DetectDataNeeds(narrative)
	result := &models.InsightResult{
		Narrative:         narrative,
		NeedsMoreData:     needsMore,
		AdditionalRequest: additional,
		FollowUpQuestions: []string{},
	}
	if !needsMore {
		result.FollowUpQuestions = g.prompts.BuildFollowUpQuestions(ac.Location, maxFollowUpQuestions)
	}

	log.Printf("💡 [Insight] %d文字 needs_more_data=%v rows=%d", len(narrative), needsMore, table.Len())
	return result, nil
}

// Chat は分析パイプラインを通さない自由会話です。
func (g *InsightGenerator) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("メッセージが空です")
	}
	reply, err := g.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("チャット応答の生成に失敗: %w", err)
	}
	return reply, nil
}

// DetectDataNeeds は応答文が追加データを求めているかを判定します。
// "historical" を含む場合のみ追加リクエストの内容を返します。
func DetectDataNeeds(narrative string) (bool, *models.AdditionalRequest) {
	lower := strings.ToLower(narrative)
	needsMore := false
	for _, phrase := range moreDataPhrases {
		if strings.Contains(lower, phrase) {
			needsMore = true
			break
		}
	}
	if !needsMore || !strings.Contains(lower, "historical") {
		return needsMore, nil
	}
	return true, &models.AdditionalRequest{
		ExtendDateRange: true,
		Metrics:         append([]string(nil), historicalRequestMetrics...),
	}
}

// FormatTable はテーブルを固定幅のテキストにします。
func FormatTable(table models.MetricSeries) string {
	var buf bytes.Buffer
	WriteTable(&buf, table)
	return strings.TrimRight(buf.String(), "\n")
}

// WriteTable はテーブルを罫線なしの固定幅でwに書き出します。
func WriteTable(w io.Writer, table models.MetricSeries) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	tw.SetBorder(false)
	tw.SetColumnSeparator("")
	tw.SetCenterSeparator("")
	tw.SetRowSeparator("")
	tw.SetHeaderLine(false)
	tw.SetHeader(table.Columns)

	valueColumns := table.ValueColumns()
	for _, row := range table.Rows {
		cells := make([]string, 0, len(valueColumns)+1)
		cells = append(cells, row.Date.Format(models.DateLayout))
		for _, col := range valueColumns {
			cells = append(cells, fmt.Sprintf("%.3f", row.Values[col]))
		}
		tw.Append(cells)
	}
	tw.Render()
}
