package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/llm/llmtest"
	"agriviewer-chat-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const a23Extraction = `{"location": "Field A23, Austin, Texas", "date_range": "last 30 days", "metrics": ["NDVI","soil_moisture","crop_health"], "crop_type": null, "additional_context": {}}`

func stepNames(steps []models.WorkflowStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Step
	}
	return names
}

func TestHandleTurnAnalysis(t *testing.T) {
	backend := llmtest.New(a23Extraction, "NDVI is stable around 0.6.")
	source := &recordingSource{result: []map[string]interface{}{
		{"date": "2024-06-01", "ndvi": 0.6, "soil_moisture": 30.0, "health_score": 80.0},
	}}
	o := newTestOrchestrator(t, backend, source)
	store := NewSessionStore(10, time.Hour)
	session := store.Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	assert.Equal(t, "NDVI is stable around 0.6.", reply.Reply)
	assert.Equal(t, session.ID, reply.SessionID)
	require.NotNil(t, reply.Table)
	assert.Equal(t, 1, reply.Table.Len())
	require.NotNil(t, reply.Insight)
	assert.Len(t, reply.Insight.FollowUpQuestions, 3)
	assert.False(t, reply.FollowUpRound)
	assert.Equal(t, []string{stepParsing, stepAnalysis, stepProcessing, stepGenerating, stepReady}, stepNames(reply.Steps))
	for _, s := range reply.Steps {
		assert.Equal(t, models.StepComplete, s.Status)
	}

	require.Len(t, source.Calls(), 1)
	assert.Equal(t, fetchCall{Location: "Field A23, Austin, Texas", DateRange: "last 30 days", Metrics: []string{"NDVI", "soil_moisture", "crop_health"}}, source.Calls()[0])

	memory := session.Memory()
	require.Len(t, memory, 1)
	assert.Equal(t, models.TurnKindAnalysis, memory[0].Kind)
	assert.Equal(t, "NDVI is stable around 0.6.", memory[0].Insight.Narrative)
	assert.Equal(t, StateAwaitingInput, session.State())

	snap := session.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, llm.RoleUser, snap.Transcript[0].Role)
	assert.Equal(t, llm.RoleAssistant, snap.Transcript[1].Role)
}

func TestHandleTurnClarificationSkipsDataSource(t *testing.T) {
	backend := llmtest.New(`{"error": "Please specify which field you want to analyze"}`)
	source := &recordingSource{}
	o := newTestOrchestrator(t, backend, source)
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "analyze my crops", nil)

	assert.Equal(t, models.ReplyClarification, reply.Kind)
	assert.Equal(t, "I need some clarification: Please specify which field you want to analyze. Could you please provide more details?", reply.Reply)
	assert.Empty(t, source.Calls())
	assert.Empty(t, session.Memory())
	assert.Equal(t, []string{stepParsing, stepClarification}, stepNames(reply.Steps))
}

func TestHandleTurnEmptyDataUsesDefaultTable(t *testing.T) {
	backend := llmtest.New(a23Extraction, "Synthetic data looks fine.")
	o := newTestOrchestrator(t, backend, &recordingSource{result: []interface{}{}})
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	require.NotNil(t, reply.Table)
	assert.Equal(t, 10, reply.Table.Len())
	assert.Equal(t, DefaultAnchorDate, reply.Table.Rows[0].Date)
	assert.NotEmpty(t, reply.Insight.Narrative)
}

func TestHandleTurnDataSourceErrorFallsBack(t *testing.T) {
	backend := llmtest.New(a23Extraction, "Looks fine.")
	o := newTestOrchestrator(t, backend, &recordingSource{err: errSourceDown})
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	assert.Equal(t, 10, reply.Table.Len())
}

func TestHandleTurnLoopsExactlyOnce(t *testing.T) {
	backend := llmtest.New(
		`{"location": "Field A23", "date_range": "2024-06-01 to 2024-06-30", "metrics": ["crop_health"]}`,
		"There is insufficient data; historical trends are unknown.",
		"Still insufficient data. Historical data would be helpful.",
		"this reply must never be requested",
	)
	source := &recordingSource{result: []interface{}{}}
	o := newTestOrchestrator(t, backend, source)
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "How is Field A23 doing in June?", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	assert.True(t, reply.FollowUpRound)
	assert.Equal(t, "Still insufficient data. Historical data would be helpful.", reply.Reply)
	assert.Len(t, backend.Calls(), 3)

	calls := source.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "2024-06-01 to 2024-06-30", calls[0].DateRange)
	assert.Equal(t, "2024-05-02 to 2024-06-30", calls[1].DateRange)
	assert.Equal(t, []string{"crop_health", "NDVI", "soil_moisture"}, calls[1].Metrics)

	memory := session.Memory()
	require.Len(t, memory, 1)
	assert.True(t, memory[0].FollowUpRound)
	assert.Equal(t, []string{"crop_health", "NDVI", "soil_moisture"}, memory[0].Request.Metrics)

	assert.Equal(t, []string{
		stepParsing,
		stepAnalysis, stepProcessing, stepGenerating,
		stepAnalysis + followUpSuffix, stepProcessing + followUpSuffix, stepGenerating + followUpSuffix,
		stepReady,
	}, stepNames(reply.Steps))
}

func TestHandleTurnNoLoopWithoutAdditionalRequest(t *testing.T) {
	backend := llmtest.New(a23Extraction, "We need more data about irrigation.")
	source := &recordingSource{result: nil}
	o := newTestOrchestrator(t, backend, source)
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	assert.True(t, reply.Insight.NeedsMoreData)
	assert.Nil(t, reply.Insight.AdditionalRequest)
	assert.False(t, reply.FollowUpRound)
	assert.Len(t, source.Calls(), 1)
}

func TestHandleTurnGenerationFailure(t *testing.T) {
	backend := llmtest.New(a23Extraction)
	backend.Push(llmtest.Reply{Err: &llm.StatusError{Backend: "fake", StatusCode: 504, Message: "gateway timeout"}})
	o := newTestOrchestrator(t, backend, &recordingSource{})
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyError, reply.Kind)
	assert.Equal(t, llm.UserMessage(llm.ErrBackendTimeout), reply.Reply)
	require.NotEmpty(t, reply.Steps)
	last := reply.Steps[len(reply.Steps)-1]
	assert.Equal(t, stepError, last.Step)
	assert.Equal(t, models.StepError, last.Status)
	assert.Empty(t, session.Memory())
	assert.Equal(t, StateAwaitingInput, session.State())
}

func TestHandleTurnRecoversFromPanic(t *testing.T) {
	backend := llmtest.New(a23Extraction, a23Extraction, "second turn works")
	source := &recordingSource{panic: true}
	o := newTestOrchestrator(t, backend, source)
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)

	assert.Equal(t, models.ReplyError, reply.Kind)
	assert.Equal(t, llm.GenericApology, reply.Reply)
	assert.Equal(t, StateAwaitingInput, session.State())

	// セッションは引き続き利用できる
	source.mu.Lock()
	source.panic = false
	source.mu.Unlock()
	reply = o.HandleTurn(context.Background(), session, "Analyze Field A23 in Austin, Texas", nil)
	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	assert.Equal(t, "second turn works", reply.Reply)
}

func TestHandleTurnHelpCommand(t *testing.T) {
	backend := llmtest.New()
	o := newTestOrchestrator(t, backend, &recordingSource{})
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, " HELP ", nil)

	assert.Equal(t, models.ReplyHelp, reply.Kind)
	assert.Contains(t, reply.Reply, "pest_risk")
	assert.Empty(t, backend.Calls())
}

func TestHandleTurnSessionsAreIsolated(t *testing.T) {
	const sessions = 8
	backend := llmtest.New()
	for i := 0; i < sessions; i++ {
		backend.Push(llmtest.Reply{Text: a23Extraction})
		backend.Push(llmtest.Reply{Text: "ok"})
	}
	o := newTestOrchestrator(t, backend, &recordingSource{})
	store := NewSessionStore(sessions, time.Hour)

	var wg sync.WaitGroup
	created := make([]*Session, sessions)
	for i := 0; i < sessions; i++ {
		created[i] = store.Create()
		wg.Add(1)
		go func(s *Session, n int) {
			defer wg.Done()
			o.HandleTurn(context.Background(), s, fmt.Sprintf("Analyze Field A%d", n), nil)
		}(created[i], i)
	}
	wg.Wait()

	for _, s := range created {
		assert.Len(t, s.Snapshot().Transcript, 2)
		assert.LessOrEqual(t, len(s.Memory()), 1)
	}
}

func TestMergeRequest(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	orig := &models.AnalysisRequest{Location: "X", DateRange: "last 7 days", Metrics: []string{"NDVI"}}

	merged := mergeRequest(orig, &models.AdditionalRequest{ExtendDateRange: true, Metrics: []string{"NDVI", "soil_moisture", "bogus"}}, now)

	assert.Equal(t, "2024-06-17 to 2024-06-30", merged.DateRange)
	assert.Equal(t, []string{"NDVI", "soil_moisture"}, merged.Metrics)
	assert.Equal(t, []string{"NDVI"}, orig.Metrics)
	assert.Equal(t, "last 7 days", orig.DateRange)
}

func TestMergeRequestCopiesAdditionalContext(t *testing.T) {
	orig := &models.AnalysisRequest{
		Location:          "X",
		DateRange:         "last 7 days",
		Metrics:           []string{"NDVI"},
		AdditionalContext: map[string]interface{}{"irrigation": "drip"},
	}

	merged := mergeRequest(orig, &models.AdditionalRequest{}, time.Now())
	merged.AdditionalContext["irrigation"] = "flood"
	merged.AdditionalContext["soil"] = "clay"

	assert.Equal(t, map[string]interface{}{"irrigation": "drip"}, orig.AdditionalContext)
}

func TestHandleTurnHugeRelativeRangeStillAnalyzes(t *testing.T) {
	backend := llmtest.New(
		`{"location": "Field A23", "date_range": "last 9223372036854775807 days", "metrics": ["NDVI"]}`,
		"NDVI looks fine.",
	)
	source := NewMockCVAnalyzer(5)
	source.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	o := newTestOrchestrator(t, backend, source)
	session := NewSessionStore(10, time.Hour).Create()

	reply := o.HandleTurn(context.Background(), session, "Field A23 since forever", nil)

	assert.Equal(t, models.ReplyAnalysis, reply.Kind)
	require.NotNil(t, reply.Table)
	assert.Equal(t, maxRangeDays, reply.Table.Len())
}

func TestTurnStateString(t *testing.T) {
	assert.Equal(t, "awaiting_input", StateAwaitingInput.String())
	assert.Equal(t, "looping", StateLooping.String())
	assert.Equal(t, "TurnState(42)", TurnState(42).String())
}
