package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/llm/llmtest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fieldA23Extraction = `{"location": "Field A23", "date_range": "2024-06-01 to 2024-06-14", "metrics": ["NDVI","soil_moisture"], "crop_type": "corn", "additional_context": {}}`

func testConfig() *config.Config {
	return &config.Config{
		AdminUsername:      "admin",
		AdminPassword:      "pw",
		Temperature:        0.7,
		TopP:               0.9,
		MaxNewTokens:       256,
		LLMTimeout:         time.Second,
		SessionTTL:         time.Hour,
		MaxSessions:        10,
		MonitoringTimezone: "UTC",
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, backend *llmtest.Backend) (*gin.Engine, *App) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app, err := NewAppWithBackend(cfg, &config.DataSourceConfig{Type: "fixture", FixturePath: "../../asset/metrics.json", Seed: 1}, backend)
	require.NoError(t, err)
	return NewRouter(app), app
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestChatSessionLifecycle(t *testing.T) {
	backend := llmtest.New(fieldA23Extraction, "NDVI climbed steadily over the two weeks.")
	router, app := newTestRouter(t, testConfig(), backend)

	// 分析ターン
	w, body := doJSON(t, router, http.MethodPost, "/api/v1/chat", `{"message": "How is Field A23 doing in early June?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "analysis", body["kind"])
	assert.Equal(t, "fake", body["backend"])
	assert.Equal(t, "NDVI climbed steadily over the two weeks.", body["reply"])
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	table := body["table"].(map[string]interface{})
	assert.Len(t, table["rows"], 14)
	assert.Equal(t, 1, app.Sessions.Len())

	// セッションの状態
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	session := body["session"].(map[string]interface{})
	assert.Len(t, session["transcript"], 2)
	assert.Len(t, session["memory"], 1)

	// 統計サマリー
	w, body = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "Field A23", summary["location"])
	assert.EqualValues(t, 14, summary["rows"])

	// CSVダウンロード
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(w.Body.String(), "date,"))

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 終了
	w, _ = doJSON(t, router, http.MethodDelete, "/api/v1/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatClarificationAndBadRequest(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), llmtest.New(`{"error": "Please specify which field you want to analyze"}`))

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/chat", `{"message": "analyze my crops"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clarification", body["kind"])
	assert.Nil(t, body["table"])

	w, body = doJSON(t, router, http.MethodPost, "/api/v1/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestSessionEndpointsWithoutAnalysis(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), llmtest.New())

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := body["session_id"].(string)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+id+"/summary", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+id+"/export", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, router, http.MethodDelete, "/api/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseAndFreeform(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), llmtest.New(fieldA23Extraction, "Hello! Ask me about your fields."))

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/parse", `{"message": "Field A23 in June"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	request := body["request"].(map[string]interface{})
	assert.Equal(t, "Field A23", request["location"])
	assert.Equal(t, "corn", request["crop_type"])

	w, body = doJSON(t, router, http.MethodPost, "/api/v1/chat/freeform", `{"messages": [{"role": "user", "content": "hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello! Ask me about your fields.", body["content"])

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/chat/freeform", `{"messages": [{"role": "robot", "content": "hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKeyAndPublicEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret"
	router, _ := newTestRouter(t, cfg, llmtest.New())

	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/catalog/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/metrics", nil)
	req.Header.Set("X-API-KEY", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "soil_moisture")

	w, _ = doJSON(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agriviewer_")
}

func TestNewAppRejectsUnknownDataSource(t *testing.T) {
	_, err := NewAppWithBackend(testConfig(), &config.DataSourceConfig{Type: "drone"}, llmtest.New())
	assert.Error(t, err)
}
