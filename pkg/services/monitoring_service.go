package services

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultMaxLogEntries は保持するリクエストログの上限
const defaultMaxLogEntries = 10000

// monitoringExcludedPrefixes はログ対象外のパス
var monitoringExcludedPrefixes = []string{"/api/v1/admin", "/api/v1/monitoring", "/metrics", "/health"}

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriviewer_http_requests_total",
			Help: "Number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agriviewer_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
	SessionID    string        `json:"sessionId,omitempty"`
}

// MonitoringService はAPIのリクエストを記録し、ダッシュボード用に集計します。
type MonitoringService struct {
	mu         sync.RWMutex
	logs       []LogEntry
	maxEntries int
	location   *time.Location
	now        func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// locationは時間帯バケットの表示に使うタイムゾーンで、nilならUTCです。
func NewMonitoringService(location *time.Location) *MonitoringService {
	if location == nil {
		location = time.UTC
	}
	return &MonitoringService{
		logs:       make([]LogEntry, 0),
		maxEntries: defaultMaxLogEntries,
		location:   location,
		now:        time.Now,
	}
}

// LogRequest はリクエストを記録します。上限を超えた古いログは捨てます。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - s.maxEntries; over > 0 {
		s.logs = append([]LogEntry(nil), s.logs[over:]...)
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
// Prometheusのカウンターは除外パスも含めてすべて記録します。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		path := c.Request.URL.Path
		for _, prefix := range monitoringExcludedPrefixes {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
			SessionID:    c.GetString(SessionIDContextKey),
		})
	}
}

// SessionIDContextKey はハンドラーがセッションIDをgin.Contextに載せる際のキー
const SessionIDContextKey = "session_id"

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
	ActiveSessions   int                      `json:"activeSessions"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().In(s.location)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	// 過去から現在へ向かう時間バケット
	requestsOverTime := make([]map[string]interface{}, periodHours)
	bucketIndex := make(map[string]int, periodHours)
	for i := 0; i < periodHours; i++ {
		target := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		bucketIndex[target.Truncate(time.Hour).Format(time.RFC3339)] = i
		requestsOverTime[i] = map[string]interface{}{"time": target.Format("15:00"), "requests": 0}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{
		"2xx Success":      0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	responseTimeSum := make(map[string]time.Duration)
	responseCount := make(map[string]int)

	for _, entry := range filtered {
		key := entry.Timestamp.In(s.location).Truncate(time.Hour).Format(time.RFC3339)
		if i, ok := bucketIndex[key]; ok {
			requestsOverTime[i]["requests"] = requestsOverTime[i]["requests"].(int) + 1
		}

		endpoints[entry.Path]++

		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusCodes["2xx Success"]++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case entry.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}

		responseTimeSum[entry.Path] += entry.ResponseTime
		responseCount[entry.Path]++
	}

	statusNames := make([]string, 0, len(statusCodes))
	for name := range statusCodes {
		statusNames = append(statusNames, name)
	}
	sort.Strings(statusNames)
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusNames))
	for _, name := range statusNames {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": statusCodes[name]})
	}

	paths := make([]string, 0, len(responseTimeSum))
	for path := range responseTimeSum {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	avgResponseTimes := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		avg := responseTimeSum[path].Milliseconds() / int64(responseCount[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
	}
}
