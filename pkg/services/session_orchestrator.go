package services

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/catalog"
	"agriviewer-chat-api/pkg/llm"
	"agriviewer-chat-api/pkg/models"
)

// TurnState はターン処理の状態です。
type TurnState int

const (
	StateAwaitingInput TurnState = iota
	StateParsing
	StateClarifying
	StateAnalyzing
	StateNormalizing
	StateGenerating
	StateLooping
)

func (s TurnState) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateParsing:
		return "parsing"
	case StateClarifying:
		return "clarifying"
	case StateAnalyzing:
		return "analyzing"
	case StateNormalizing:
		return "normalizing"
	case StateGenerating:
		return "generating"
	case StateLooping:
		return "looping"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

// ワークフローステップ名
const (
	stepParsing       = "1. Parsing user prompt"
	stepClarification = "2. Request needs clarification"
	stepAnalysis      = "2. Computer Vision Analysis"
	stepProcessing    = "3. Processing CV Results"
	stepGenerating    = "4. Generating Analysis"
	stepReady         = "5. Ready for follow-up questions"
	stepError         = "Error occurred"

	followUpSuffix = " (follow-up)"
)

// Orchestrator は1ターン分のパイプラインを実行します。
type Orchestrator struct {
	parser     *RequestParser
	source     DataSource
	normalizer *ResultsNormalizer
	insights   *InsightGenerator
	prompts    *config.PromptConfig
	now        func() time.Time
}

// NewOrchestrator 新しいオーケストレーターを作成
func NewOrchestrator(parser *RequestParser, source DataSource, normalizer *ResultsNormalizer, insights *InsightGenerator, prompts *config.PromptConfig) *Orchestrator {
	return &Orchestrator{
		parser:     parser,
		source:     source,
		normalizer: normalizer,
		insights:   insights,
		prompts:    prompts,
		now:        time.Now,
	}
}

// Insights は自由会話用にインサイト生成サービスを返します。
func (o *Orchestrator) Insights() *InsightGenerator { return o.insights }

// Parser はパーサーを返します。
func (o *Orchestrator) Parser() *RequestParser { return o.parser }

// workflow は1ターン内のステップ記録です。
type workflow struct {
	steps []models.WorkflowStep
}

func (w *workflow) start(name string) int {
	w.steps = append(w.steps, models.WorkflowStep{Step: name, Status: models.StepPending, Timestamp: time.Now()})
	return len(w.steps) - 1
}

func (w *workflow) complete(idx int) {
	w.steps[idx].Status = models.StepComplete
	w.steps[idx].Timestamp = time.Now()
}

func (w *workflow) fail() {
	for i := range w.steps {
		if w.steps[i].Status == models.StepPending {
			w.steps[i].Status = models.StepError
		}
	}
	w.steps = append(w.steps, models.WorkflowStep{Step: stepError, Status: models.StepError, Timestamp: time.Now()})
}

// HandleTurn はユーザー入力1件を処理して返信を返します。エラーやpanicは返信文に変換されます。
// 同じセッションのターンは直列に実行され、異なるセッションは並行に実行できます。
func (o *Orchestrator) HandleTurn(ctx context.Context, session *Session, userText string, metricsHint []string) (reply models.TurnReply) {
	session.turnMu.Lock()
	defer session.turnMu.Unlock()

	started := time.Now()
	wf := &workflow{}
	reply = models.TurnReply{SessionID: session.ID}

	session.appendTranscript(llm.RoleUser, userText, "")

	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 [Orchestrator] 予期しないエラー (session=%s): %v\n%s", session.ID, r, debug.Stack())
			wf.fail()
			reply = models.TurnReply{
				SessionID: session.ID,
				Kind:      models.ReplyError,
				Reply:     llm.GenericApology,
			}
		}
		reply.Steps = wf.steps
		session.setSteps(wf.steps)
		session.appendTranscript(llm.RoleAssistant, reply.Reply, reply.Kind)
		session.setState(StateAwaitingInput)
		turnsTotal.WithLabelValues(reply.Kind).Inc()
		turnDuration.Observe(time.Since(started).Seconds())
	}()

	if ok, response := o.prompts.CheckSpecialCommand(userText); ok {
		reply.Kind = models.ReplyHelp
		reply.Reply = response
		return reply
	}

	var (
		req           *models.AnalysisRequest
		clarification *models.ClarificationRequest
		raw           interface{}
		table         models.MetricSeries
		insight       *models.InsightResult
		followUp      bool
		stepIdx       int
	)

	suffix := func() string {
		if followUp {
			return followUpSuffix
		}
		return ""
	}

	state := StateParsing
	for state != StateAwaitingInput {
		session.setState(state)

		switch state {
		case StateParsing:
			stepIdx = wf.start(stepParsing)
			req, clarification = o.parser.Parse(ctx, userText, metricsHint)
			wf.complete(stepIdx)
			if clarification != nil {
				state = StateClarifying
			} else {
				state = StateAnalyzing
			}

		case StateClarifying:
			wf.complete(wf.start(stepClarification))
			reply.Kind = models.ReplyClarification
			reply.Reply = clarification.Prompt
			state = StateAwaitingInput

		case StateAnalyzing:
			stepIdx = wf.start(stepAnalysis + suffix())
			var err error
			raw, err = o.source.Fetch(ctx, req.Location, req.DateRange, req.Metrics)
			if err != nil {
				log.Printf("⚠️ [Orchestrator] データソース(%s)の取得に失敗したため既定テーブルを使用します: %v", o.source.Name(), err)
				dataSourceErrors.WithLabelValues(o.source.Name()).Inc()
				raw = nil
			}
			wf.complete(stepIdx)
			state = StateNormalizing

		case StateNormalizing:
			stepIdx = wf.start(stepProcessing + suffix())
			table = o.normalizer.Normalize(raw, req.Metrics...)
			wf.complete(stepIdx)
			state = StateGenerating

		case StateGenerating:
			stepIdx = wf.start(stepGenerating + suffix())
			var err error
			insight, err = o.insights.Analyze(ctx, table, NewAnalysisContext(req))
			if err != nil {
				log.Printf("❌ [Orchestrator] 分析の生成に失敗 (session=%s): %v", session.ID, err)
				wf.fail()
				reply.Kind = models.ReplyError
				reply.Reply = llm.UserMessage(err)
				reply.Request = req
				state = StateAwaitingInput
				continue
			}
			wf.complete(stepIdx)

			if insight.NeedsMoreData && insight.AdditionalRequest != nil && !followUp {
				state = StateLooping
				continue
			}

			session.appendRecord(models.TurnRecord{
				Kind:          models.TurnKindAnalysis,
				Request:       *req,
				Table:         table,
				Insight:       *insight,
				FollowUpRound: followUp,
				CreatedAt:     o.now(),
			})
			wf.complete(wf.start(stepReady))

			reply.Kind = models.ReplyAnalysis
			reply.Reply = insight.Narrative
			reply.Request = req
			reply.Table = &table
			reply.Insight = insight
			reply.FollowUpRound = followUp
			state = StateAwaitingInput

		case StateLooping:
			followUp = true
			req = mergeRequest(req, insight.AdditionalRequest, o.now())
			followUpRounds.Inc()
			log.Printf("🔁 [Orchestrator] 追加データを取得します: date_range=%q metrics=%v", req.DateRange, req.Metrics)
			state = StateAnalyzing
		}
	}

	return reply
}

// mergeRequest は元のリクエストに追加要求を反映したコピーを返します。
func mergeRequest(orig *models.AnalysisRequest, add *models.AdditionalRequest, now time.Time) *models.AnalysisRequest {
	merged := *orig
	merged.Metrics = append([]string(nil), orig.Metrics...)
	if orig.AdditionalContext != nil {
		merged.AdditionalContext = make(map[string]interface{}, len(orig.AdditionalContext))
		for k, v := range orig.AdditionalContext {
			merged.AdditionalContext[k] = v
		}
	}
	if add == nil {
		return &merged
	}
	if add.ExtendDateRange {
		merged.DateRange = ExtendDateRange(orig.DateRange, now)
	}
	for _, m := range add.Metrics {
		m = strings.TrimSpace(m)
		if catalog.IsValid(m) {
			merged.Metrics = append(merged.Metrics, m)
		}
	}
	merged.Metrics = dedupe(merged.Metrics)
	return &merged
}
