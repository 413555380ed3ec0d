package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/catalog"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// DataSource は圃場の指標データを返すコンピュータビジョン解析の抽象です。
// 戻り値はテーブル・マップ・マップの列・nilのいずれでもよく、そのまま正規化に渡されます。
type DataSource interface {
	Name() string
	Fetch(ctx context.Context, location, dateRange string, metrics []string) (interface{}, error)
}

// NewDataSource は設定に応じたデータソースを1つ生成します。
func NewDataSource(cfg *config.DataSourceConfig, timeout time.Duration) (DataSource, error) {
	switch cfg.Type {
	case "mock", "":
		return NewMockCVAnalyzer(cfg.Seed), nil
	case "fixture", "hardcoded":
		return NewFixtureCVAnalyzer(cfg.FixturePath), nil
	case "remote":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("CV_PIPELINE_URL が設定されていません")
		}
		return NewRemoteCVAnalyzer(cfg.BaseURL, cfg.APIKey, timeout), nil
	default:
		return nil, fmt.Errorf("未対応のデータソース: %s", cfg.Type)
	}
}

// --- モック ---

// MockCVAnalyzer は期間内の日次データを乱数で生成します。
type MockCVAnalyzer struct {
	mu          sync.Mutex
	rng         *rand.Rand
	now         func() time.Time
	missingRate float64
}

// NewMockCVAnalyzer はseedが0以外なら再現可能なモックを作成します。
func NewMockCVAnalyzer(seed uint64) *MockCVAnalyzer {
	return &MockCVAnalyzer{
		rng:         newRand(seed),
		now:         time.Now,
		missingRate: 0.05,
	}
}

func (a *MockCVAnalyzer) Name() string { return "mock" }

// Fetch は指標ごとに1列、期間内の日ごとに1行の []map[string]interface{} を返します。
// 一部のセルは欠損(nil)になります。
func (a *MockCVAnalyzer) Fetch(ctx context.Context, location, dateRange string, metrics []string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, end := ParseDateRange(dateRange, a.now())
	days := DaysBetween(start, end)
	if days <= 0 || days > maxRangeDays {
		return nil, fmt.Errorf("期間が不正です: %q (%d日)", dateRange, days)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]map[string]interface{}, 0, days)
	for i := 0; i < days; i++ {
		row := map[string]interface{}{
			catalog.DateColumn: start.AddDate(0, 0, i).Format(models.DateLayout),
		}
		for _, m := range metrics {
			col := catalog.ColumnFor(m)
			if a.rng.Float64() < a.missingRate {
				row[col] = nil
				continue
			}
			r := catalog.RangeFor(col)
			row[col] = math.Round((r.Min+a.rng.Float64()*(r.Max-r.Min))*1000) / 1000
		}
		rows = append(rows, row)
	}
	log.Printf("🛰️ [CV] mock: location=%q %s〜%s %d行", location, start.Format(models.DateLayout), end.Format(models.DateLayout), len(rows))
	return rows, nil
}

// --- フィクスチャ ---

// FixtureCVAnalyzer は固定のファイル(.json / .csv / .xlsx)をそのまま返します。
type FixtureCVAnalyzer struct {
	path string
}

// NewFixtureCVAnalyzer 新しいフィクスチャデータソースを作成
func NewFixtureCVAnalyzer(path string) *FixtureCVAnalyzer {
	return &FixtureCVAnalyzer{path: path}
}

func (a *FixtureCVAnalyzer) Name() string { return "fixture" }

func (a *FixtureCVAnalyzer) Fetch(ctx context.Context, location, dateRange string, metrics []string) (interface{}, error) {
	switch strings.ToLower(filepath.Ext(a.path)) {
	case ".json":
		data, err := os.ReadFile(a.path)
		if err != nil {
			return nil, fmt.Errorf("フィクスチャの読み込みに失敗: %w", err)
		}
		return json.RawMessage(data), nil
	case ".csv":
		f, err := os.Open(a.path)
		if err != nil {
			return nil, fmt.Errorf("フィクスチャの読み込みに失敗: %w", err)
		}
		defer f.Close()
		return readCSVRecords(f)
	case ".xlsx":
		return readXLSXRecords(a.path)
	default:
		return nil, fmt.Errorf("未対応のフィクスチャ形式: %s", a.path)
	}
}

// readCSVRecords は1行目をヘッダーとしてレコードを読み込みます。
func readCSVRecords(r io.Reader) ([]map[string]interface{}, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVの解析に失敗: %w", err)
	}
	return rowsToRecords(rows), nil
}

// readXLSXRecords は最初のシートを読み込みます。
func readXLSXRecords(path string) ([]map[string]interface{}, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("Excelファイルのオープンに失敗: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("シートが見つかりません: %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("シートの読み込みに失敗: %w", err)
	}
	return rowsToRecords(rows), nil
}

func rowsToRecords(rows [][]string) []map[string]interface{} {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	records := make([]map[string]interface{}, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]interface{}, len(header))
		for i, name := range header {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				rec[name] = nil
				continue
			}
			cell := strings.TrimSpace(row[i])
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				rec[name] = v
			} else {
				rec[name] = cell
			}
		}
		records = append(records, rec)
	}
	return records
}

// --- リモート ---

// RemoteCVAnalyzer は外部のCVパイプラインにHTTPで問い合わせます。
type RemoteCVAnalyzer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRemoteCVAnalyzer 新しいリモートデータソースを作成
func NewRemoteCVAnalyzer(baseURL, apiKey string, timeout time.Duration) *RemoteCVAnalyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteCVAnalyzer{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *RemoteCVAnalyzer) Name() string { return "remote" }

type remoteAnalyzeRequest struct {
	Location  string   `json:"location"`
	DateRange string   `json:"date_range"`
	Metrics   []string `json:"metrics"`
}

// Fetch は {location, date_range, metrics} をPOSTし、デコードしたJSONをそのまま返します。
func (a *RemoteCVAnalyzer) Fetch(ctx context.Context, location, dateRange string, metrics []string) (interface{}, error) {
	body, err := json.Marshal(remoteAnalyzeRequest{Location: location, DateRange: dateRange, Metrics: metrics})
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransport("CV pipeline", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CV pipeline エラー (status: %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}
	return decoded, nil
}

// newRand はseedが0なら時刻由来のシードで乱数生成器を作ります。
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
