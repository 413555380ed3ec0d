package models

import (
	"encoding/json"
	"time"
)

// DateLayout は日付列のシリアライズ形式
const DateLayout = "2006-01-02"

// AnalysisRequest は自然文から抽出した分析リクエストです。
// Metricsは常に1件以上で、すべて語彙に含まれます。
type AnalysisRequest struct {
	Location          string                 `json:"location"`
	DateRange         string                 `json:"date_range"`
	Metrics           []string               `json:"metrics"`
	CropType          string                 `json:"crop_type,omitempty"`
	AdditionalContext map[string]interface{} `json:"additional_context"`
}

// ClarificationRequest はユーザーへの聞き返しです。ターンはここで終了します。
type ClarificationRequest struct {
	Prompt string `json:"prompt"`
}

// MetricRow 正規化テーブルの1行
type MetricRow struct {
	Date   time.Time
	Values map[string]float64
}

// MarshalJSON は {"date": "2024-01-01", "ndvi": 0.5, ...} のフラットな形で出力します。
func (r MetricRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.Values)+1)
	for k, v := range r.Values {
		flat[k] = v
	}
	flat["date"] = r.Date.Format(DateLayout)
	return json.Marshal(flat)
}

// MetricSeries は正規化済みの時系列テーブルです。
// 行は日付の昇順で、数値セルにnullは存在しません。
type MetricSeries struct {
	Columns []string    `json:"columns"`
	Rows    []MetricRow `json:"rows"`
}

// Len は行数を返します。
func (s MetricSeries) Len() int { return len(s.Rows) }

// HasColumn は列の有無を返します。
func (s MetricSeries) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ValueColumns はdate以外の列を返します。
func (s MetricSeries) ValueColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c != "date" {
			out = append(out, c)
		}
	}
	return out
}

// Column は列の値を行順に返します。
func (s MetricSeries) Column(name string) []float64 {
	values := make([]float64, len(s.Rows))
	for i, row := range s.Rows {
		values[i] = row.Values[name]
	}
	return values
}

// Clone はディープコピーを返します。
func (s MetricSeries) Clone() MetricSeries {
	out := MetricSeries{
		Columns: append([]string(nil), s.Columns...),
		Rows:    make([]MetricRow, len(s.Rows)),
	}
	for i, row := range s.Rows {
		values := make(map[string]float64, len(row.Values))
		for k, v := range row.Values {
			values[k] = v
		}
		out.Rows[i] = MetricRow{Date: row.Date, Values: values}
	}
	return out
}

// AdditionalRequest はモデルが求める追加データの内容です。
type AdditionalRequest struct {
	ExtendDateRange bool     `json:"extend_date_range"`
	Metrics         []string `json:"metrics"`
}

// InsightResult はInsight Generatorの出力です。
type InsightResult struct {
	Narrative         string             `json:"narrative"`
	NeedsMoreData     bool               `json:"needs_more_data"`
	AdditionalRequest *AdditionalRequest `json:"additional_request,omitempty"`
	FollowUpQuestions []string           `json:"follow_up_questions"`
}

// TurnKindAnalysis はセッションメモリに記録される分析ターン
const TurnKindAnalysis = "analysis"

// TurnRecord はセッションメモリの1レコード
type TurnRecord struct {
	Kind          string          `json:"kind"`
	Request       AnalysisRequest `json:"request"`
	Table         MetricSeries    `json:"table"`
	Insight       InsightResult   `json:"insight"`
	FollowUpRound bool            `json:"follow_up_round"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ワークフローステップの状態
const (
	StepPending  = "pending"
	StepComplete = "complete"
	StepError    = "error"
)

// WorkflowStep は1ターン内の処理ステップの記録です。
type WorkflowStep struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// 返信の種類
const (
	ReplyAnalysis      = "analysis"
	ReplyClarification = "clarification"
	ReplyHelp          = "help"
	ReplyError         = "error"
)

// TurnReply は1ターンの処理結果です。
type TurnReply struct {
	SessionID     string           `json:"session_id"`
	Kind          string           `json:"kind"`
	Reply         string           `json:"reply"`
	Request       *AnalysisRequest `json:"request,omitempty"`
	Table         *MetricSeries    `json:"table,omitempty"`
	Insight       *InsightResult   `json:"insight,omitempty"`
	FollowUpRound bool             `json:"follow_up_round"`
	Steps         []WorkflowStep   `json:"workflow_steps"`
}

// MetricStatistics は1列分の要約統計です。
type MetricStatistics struct {
	Column     string            `json:"column"`
	Count      int               `json:"count"`
	Mean       float64           `json:"mean"`
	StdDev     float64           `json:"std_dev"`
	Min        float64           `json:"min"`
	Max        float64           `json:"max"`
	Trend      string            `json:"trend"` // increasing/decreasing/stable
	Regression *RegressionResult `json:"regression,omitempty"`
}

// RegressionResult represents the result of regression analysis
type RegressionResult struct {
	Slope       float64 `json:"slope"`       // Regression slope
	Intercept   float64 `json:"intercept"`   // Regression intercept
	RSquared    float64 `json:"r_squared"`   // R² (coefficient of determination)
	Prediction  float64 `json:"prediction"`  // Predicted value
	Description string  `json:"description"` // Description of the result
}
