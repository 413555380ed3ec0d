package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"agriviewer-chat-api/pkg/catalog"
	"agriviewer-chat-api/pkg/models"
)

// defaultTableRows は生データが無い場合に合成する行数
const defaultTableRows = 10

// DefaultAnchorDate は合成テーブルの開始日
var DefaultAnchorDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	models.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// ResultsNormalizer はデータソースの出力を正規化テーブルに変換します。
// 乱数を使うのは欠損列の補完と既定テーブルの合成だけです。
type ResultsNormalizer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	anchor time.Time
}

// NewResultsNormalizer 新しいノーマライザーを作成
func NewResultsNormalizer(seed uint64) *ResultsNormalizer {
	return &ResultsNormalizer{
		rng:    newRand(seed),
		anchor: DefaultAnchorDate,
	}
}

type rawRecord map[string]interface{}

// Normalize はどんな形の入力でも正規化テーブルを返します。panicはしません。
// metricsには要求された指標名を渡し、その列が必ず含まれるようにします。
func (n *ResultsNormalizer) Normalize(raw interface{}, metrics ...string) (series models.MetricSeries) {
	required := requiredColumns(metrics)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ [Normalizer] 正規化中にpanicが発生したため既定テーブルを使用します: %v", r)
			series = n.defaultTable(required)
		}
	}()

	records, order, err := toRecords(raw)
	if err != nil {
		log.Printf("⚠️ [Normalizer] 解釈できない入力のため既定テーブルを使用します: %v", err)
		return n.defaultTable(required)
	}
	if len(records) == 0 {
		log.Printf("📭 [Normalizer] データが空のため既定テーブルを使用します")
		return n.defaultTable(required)
	}
	return n.buildSeries(records, order, required)
}

// requiredColumns は基本列と要求列を重複なしで返します（date含む）。
func requiredColumns(metrics []string) []string {
	cols := catalog.BaselineColumns()
	seen := make(map[string]bool, len(cols)+len(metrics))
	for _, c := range cols {
		seen[c] = true
	}
	for _, m := range metrics {
		c := catalog.ColumnFor(m)
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return cols
}

// toRecords は入力を行の列に変換します。orderは既存テーブルの列順です。
func toRecords(raw interface{}) ([]rawRecord, []string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil, nil
	case models.MetricSeries:
		return seriesRecords(v), v.Columns, nil
	case *models.MetricSeries:
		if v == nil {
			return nil, nil, nil
		}
		return seriesRecords(*v), v.Columns, nil
	case map[string]interface{}:
		if inner, ok := unwrapEnvelope(v); ok {
			return toRecords(inner)
		}
		if isColumnar(v) {
			return columnarRecords(v), nil, nil
		}
		return []rawRecord{rawRecord(v)}, nil, nil
	case []map[string]interface{}:
		records := make([]rawRecord, 0, len(v))
		for _, m := range v {
			if m != nil {
				records = append(records, rawRecord(m))
			}
		}
		return records, nil, nil
	case []interface{}:
		records := make([]rawRecord, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				records = append(records, rawRecord(m))
			}
		}
		if len(records) == 0 && len(v) > 0 {
			return nil, nil, fmt.Errorf("マップ以外の要素のみのシーケンス (%d件)", len(v))
		}
		return records, nil, nil
	case json.RawMessage:
		return decodeJSONRecords([]byte(v))
	case []byte:
		return decodeJSONRecords(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil, nil
		}
		return decodeJSONRecords([]byte(v))
	default:
		return nil, nil, fmt.Errorf("未対応の型: %T", raw)
	}
}

func decodeJSONRecords(data []byte) ([]rawRecord, []string, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil, nil
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, nil, fmt.Errorf("JSONの解析に失敗: %w", err)
	}
	if _, isString := decoded.(string); isString {
		return nil, nil, fmt.Errorf("JSON文字列はテーブルではありません")
	}
	return toRecords(decoded)
}

func seriesRecords(s models.MetricSeries) []rawRecord {
	records := make([]rawRecord, len(s.Rows))
	for i, row := range s.Rows {
		rec := make(rawRecord, len(row.Values)+1)
		for k, v := range row.Values {
			rec[k] = v
		}
		rec[catalog.DateColumn] = row.Date
		records[i] = rec
	}
	return records
}

// envelopeKeys は {"rows": [...]} のような封筒形式で行を包むキー
var envelopeKeys = []string{"data", "results", "rows", "records"}

func unwrapEnvelope(m map[string]interface{}) (interface{}, bool) {
	for _, key := range envelopeKeys {
		switch inner := m[key].(type) {
		case []interface{}:
			return inner, true
		case map[string]interface{}:
			return inner, true
		}
	}
	return nil, false
}

// isColumnar は {"date": [...], "ndvi": [...]} のような列指向のマップかを判定します。
func isColumnar(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		if _, ok := v.([]interface{}); !ok {
			return false
		}
	}
	return true
}

func columnarRecords(m map[string]interface{}) []rawRecord {
	length := 0
	for _, v := range m {
		if l := len(v.([]interface{})); l > length {
			length = l
		}
	}
	records := make([]rawRecord, length)
	for i := range records {
		rec := make(rawRecord, len(m))
		for k, v := range m {
			col := v.([]interface{})
			if i < len(col) {
				rec[k] = col[i]
			} else {
				rec[k] = nil
			}
		}
		records[i] = rec
	}
	return records
}

type parsedRow struct {
	date    time.Time
	hasDate bool
	values  map[string]float64
}

func (n *ResultsNormalizer) buildSeries(records []rawRecord, order, required []string) models.MetricSeries {
	rows := make([]parsedRow, len(records))
	numeric := make(map[string]bool)
	present := make(map[string]bool)

	for i, rec := range records {
		row := parsedRow{values: make(map[string]float64, len(rec))}
		for key, val := range rec {
			col := catalog.CanonicalColumn(key)
			if col == catalog.DateColumn {
				row.date, row.hasDate = parseDate(val)
				continue
			}
			present[col] = true
			if f, ok := toFloat(val); ok {
				row.values[col] = f
				numeric[col] = true
			}
		}
		rows[i] = row
	}

	// 日付が無い行は直前の行の翌日、先頭なら基準日から数えます。
	for i := range rows {
		if rows[i].hasDate {
			continue
		}
		if i == 0 {
			rows[i].date = n.anchor
		} else {
			rows[i].date = rows[i-1].date.AddDate(0, 0, 1)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].date.Before(rows[b].date) })

	columns := orderColumns(order, required, present, numeric)

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, col := range columns[1:] {
		sum, count := 0.0, 0
		for _, r := range rows {
			if v, ok := r.values[col]; ok {
				sum += v
				count++
			}
		}
		if count > 0 {
			mean := sum / float64(count)
			for _, r := range rows {
				if _, ok := r.values[col]; !ok {
					r.values[col] = mean
				}
			}
			continue
		}
		rng := catalog.RangeFor(col)
		for _, r := range rows {
			r.values[col] = n.draw(rng)
		}
	}

	series := models.MetricSeries{Columns: columns, Rows: make([]models.MetricRow, len(rows))}
	for i, r := range rows {
		values := make(map[string]float64, len(columns)-1)
		for _, col := range columns[1:] {
			values[col] = r.values[col]
		}
		series.Rows[i] = models.MetricRow{Date: r.date, Values: values}
	}
	return series
}

// orderColumns は既存の列順 → 基本列・要求列 → その他の数値列(名前順)で並べます。
func orderColumns(order, required []string, present, numeric map[string]bool) []string {
	columns := []string{catalog.DateColumn}
	seen := map[string]bool{catalog.DateColumn: true}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	for _, c := range order {
		if c != catalog.DateColumn && numeric[c] {
			add(c)
		}
	}
	for _, c := range required {
		add(c)
	}
	var others []string
	for c := range present {
		if !seen[c] && numeric[c] {
			others = append(others, c)
		}
	}
	sort.Strings(others)
	for _, c := range others {
		add(c)
	}
	return columns
}

func (n *ResultsNormalizer) defaultTable(required []string) models.MetricSeries {
	n.mu.Lock()
	defer n.mu.Unlock()

	series := models.MetricSeries{
		Columns: append([]string(nil), required...),
		Rows:    make([]models.MetricRow, defaultTableRows),
	}
	for i := range series.Rows {
		values := make(map[string]float64, len(required)-1)
		for _, col := range required {
			if col == catalog.DateColumn {
				continue
			}
			values[col] = n.draw(catalog.RangeFor(col))
		}
		series.Rows[i] = models.MetricRow{Date: n.anchor.AddDate(0, 0, i), Values: values}
	}
	return series
}

// draw は値域内の一様乱数を小数第3位で丸めて返します。呼び出し側でロックを取ります。
func (n *ResultsNormalizer) draw(r catalog.Range) float64 {
	v := r.Min + n.rng.Float64()*(r.Max-r.Min)
	return math.Round(v*1000) / 1000
}

func parseDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return truncateDay(d), true
	case *time.Time:
		if d != nil {
			return truncateDay(*d), true
		}
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDay(t), true
			}
		}
	}
	return time.Time{}, false
}

// toFloat は数値として解釈できる値を返します。NaNと無限大は欠損扱いです。
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
