package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/llm/llmtest"

	"github.com/stretchr/testify/require"
)

func testPrompts(t *testing.T) *config.PromptConfig {
	t.Helper()
	prompts, err := config.DefaultPrompts()
	require.NoError(t, err)
	return prompts
}

func testLLM(backend *llmtest.Backend) *LLMService {
	return NewLLMService(backend, time.Second, 0.7)
}

// fetchCall はデータソースへの呼び出し記録
type fetchCall struct {
	Location  string
	DateRange string
	Metrics   []string
}

// recordingSource は呼び出しを記録し、用意した結果を返すデータソースです。
type recordingSource struct {
	mu     sync.Mutex
	calls  []fetchCall
	result interface{}
	err    error
	panic  bool
}

func (s *recordingSource) Name() string { return "recording" }

func (s *recordingSource) Fetch(ctx context.Context, location, dateRange string, metrics []string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fetchCall{Location: location, DateRange: dateRange, Metrics: append([]string(nil), metrics...)})
	if s.panic {
		panic("analyzer crashed")
	}
	return s.result, s.err
}

func (s *recordingSource) Calls() []fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fetchCall(nil), s.calls...)
}

var errSourceDown = errors.New("cv pipeline down")

func newTestOrchestrator(t *testing.T, backend *llmtest.Backend, source DataSource) *Orchestrator {
	t.Helper()
	prompts := testPrompts(t)
	svc := testLLM(backend)
	o := NewOrchestrator(
		NewRequestParser(svc, prompts),
		source,
		NewResultsNormalizer(42),
		NewInsightGenerator(svc, prompts),
		prompts,
	)
	o.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	return o
}
