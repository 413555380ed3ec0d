package catalog

import (
	"fmt"
	"strings"
)

// Metric はひとつの農業指標の定義です。
type Metric struct {
	Name        string  `json:"name"`
	Column      string  `json:"column"`
	Description string  `json:"description"`
	Instruction string  `json:"instruction"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// Range は既定の値域です。
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DateColumn は正規化テーブルの日付列名
const DateColumn = "date"

// DefaultDateRange は期間未指定時の既定値
const DefaultDateRange = "last 30 days"

var metrics = []Metric{
	{
		Name:        "NDVI",
		Column:      "ndvi",
		Description: "Normalized Difference Vegetation Index",
		Instruction: "Analyze NDVI (Normalized Difference Vegetation Index) data to assess crop health and biomass. Focus on temporal changes and spatial patterns.",
		Min:         0.3,
		Max:         0.8,
	},
	{
		Name:        "soil_moisture",
		Column:      "soil_moisture",
		Description: "Volumetric soil moisture (%)",
		Instruction: "Evaluate soil moisture levels and their distribution. Identify areas of concern and temporal trends.",
		Min:         20,
		Max:         40,
	},
	{
		Name:        "crop_health",
		Column:      "health_score",
		Description: "Composite crop health score (0-100)",
		Instruction: "Assess overall crop health considering multiple factors. Highlight areas needing attention.",
		Min:         60,
		Max:         90,
	},
	{
		Name:        "growth_stage",
		Column:      "growth_stage",
		Description: "Phenological growth stage (1-9)",
		Instruction: "Determine crop growth stages and their uniformity across the field.",
		Min:         1,
		Max:         9,
	},
	{
		Name:        "pest_risk",
		Column:      "pest_risk",
		Description: "Pest and disease risk index (0-100)",
		Instruction: "Evaluate conditions that might indicate pest risk or presence of disease.",
		Min:         0,
		Max:         100,
	},
}

// fallbackRange は語彙外の数値列に使う値域
var fallbackRange = Range{Min: 0, Max: 100}

var (
	byName   = make(map[string]Metric, len(metrics))
	byColumn = make(map[string]Metric, len(metrics))
)

func init() {
	for _, m := range metrics {
		byName[m.Name] = m
		byColumn[m.Column] = m
	}
}

// All は語彙順にすべての指標を返します。
func All() []Metric {
	out := make([]Metric, len(metrics))
	copy(out, metrics)
	return out
}

// Vocabulary は指標名の一覧を返します。
func Vocabulary() []string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.Name
	}
	return names
}

// DefaultMetrics は指標未指定時の既定セット
func DefaultMetrics() []string {
	return []string{"NDVI", "soil_moisture", "crop_health"}
}

// BaselineColumns は正規化テーブルが必ず持つ列（date含む）
func BaselineColumns() []string {
	return []string{DateColumn, "ndvi", "soil_moisture", "health_score"}
}

// IsValid は語彙に含まれる指標名かを返します。
func IsValid(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Lookup は指標名から定義を返します。
func Lookup(name string) (Metric, bool) {
	m, ok := byName[name]
	return m, ok
}

// ColumnFor は指標名をテーブルの列名に変換します。
// 語彙外の名前は小文字化してそのまま使います。
func ColumnFor(name string) string {
	if m, ok := Lookup(name); ok {
		return m.Column
	}
	return CanonicalColumn(name)
}

// CanonicalColumn はデータソースから来た列名を正規化します。
// "NDVI" や "crop_health" のような指標名も列名に寄せます。
func CanonicalColumn(raw string) string {
	key := strings.TrimSpace(raw)
	if m, ok := byName[key]; ok {
		return m.Column
	}
	lower := strings.ToLower(key)
	for name, m := range byName {
		if strings.EqualFold(name, key) {
			return m.Column
		}
	}
	return strings.ReplaceAll(lower, " ", "_")
}

// RangeFor は列の既定値域を返します。
func RangeFor(column string) Range {
	if m, ok := byColumn[column]; ok {
		return Range{Min: m.Min, Max: m.Max}
	}
	return fallbackRange
}

// ClarificationText は語彙外の指標が指定された際の案内文です。
func ClarificationText() string {
	return fmt.Sprintf("Could you please clarify: I can only analyze these metrics: %s. Which would you like to use?",
		strings.Join(Vocabulary(), ", "))
}

// AnalysisTypes は分析プロンプトに埋め込む指標ごとの指示文です。
func AnalysisTypes() string {
	lines := make([]string, len(metrics))
	for i, m := range metrics {
		lines[i] = fmt.Sprintf("- %s: %s", m.Name, m.Instruction)
	}
	return strings.Join(lines, "\n")
}
