package services

import (
	"log"
	"sync"
	"time"

	"agriviewer-chat-api/pkg/models"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Session は1つの対話セッションの状態です。メモリを変更できるのはオーケストレーターだけです。
type Session struct {
	ID        string
	CreatedAt time.Time

	// turnMu は同一セッションのターンを直列化します。
	turnMu sync.Mutex

	mu         sync.RWMutex
	lastActive time.Time
	state      TurnState
	transcript []models.TranscriptEntry
	memory     []models.TurnRecord
	steps      []models.WorkflowStep
	ended      bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
		state:      StateAwaitingInput,
	}
}

// State は現在のターン状態を返します。
func (s *Session) State() TurnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ended はセッションが終了済みかを返します。
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// Memory は分析ターンの記録のコピーを返します。
func (s *Session) Memory() []models.TurnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TurnRecord(nil), s.memory...)
}

// LatestRecord は最新の分析ターンを返します。
func (s *Session) LatestRecord() (models.TurnRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.memory) == 0 {
		return models.TurnRecord{}, false
	}
	return s.memory[len(s.memory)-1], true
}

// Snapshot はAPIレスポンス用のコピーを返します。
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SessionSnapshot{
		SessionID:     s.ID,
		CreatedAt:     s.CreatedAt,
		LastActiveAt:  s.lastActive,
		State:         s.state.String(),
		Transcript:    append([]models.TranscriptEntry{}, s.transcript...),
		Memory:        append([]models.TurnRecord{}, s.memory...),
		WorkflowSteps: append([]models.WorkflowStep{}, s.steps...),
	}
}

// End はセッションを終了してメモリを破棄します。
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.memory = nil
	s.transcript = nil
	s.steps = nil
}

func (s *Session) setState(state TurnState) {
	s.mu.Lock()
	s.state = state
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) appendRecord(rec models.TurnRecord) {
	s.mu.Lock()
	s.memory = append(s.memory, rec)
	s.mu.Unlock()
}

func (s *Session) appendTranscript(role, message, kind string) {
	s.mu.Lock()
	s.transcript = append(s.transcript, models.TranscriptEntry{
		Role:      role,
		Message:   message,
		Kind:      kind,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()
}

func (s *Session) setSteps(steps []models.WorkflowStep) {
	s.mu.Lock()
	s.steps = append([]models.WorkflowStep(nil), steps...)
	s.mu.Unlock()
}

// SessionStore はセッションをTTL付きLRUで保持します。
// 期限切れ・容量超過・削除のいずれでもセッションは終了します。
type SessionStore struct {
	cache *expirable.LRU[string, *Session]
	now   func() time.Time
}

// NewSessionStore 新しいセッションストアを作成
func NewSessionStore(maxSessions int, ttl time.Duration) *SessionStore {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	onEvict := func(id string, s *Session) {
		s.End()
		activeSessions.Dec()
		log.Printf("🗑️ [Session] セッション終了: %s", id)
	}
	return &SessionStore{
		cache: expirable.NewLRU[string, *Session](maxSessions, onEvict, ttl),
		now:   time.Now,
	}
}

// Create は新しいIDでセッションを開始します。
func (st *SessionStore) Create() *Session {
	s := newSession(uuid.NewString(), st.now())
	st.cache.Add(s.ID, s)
	activeSessions.Inc()
	log.Printf("🆕 [Session] セッション開始: %s", s.ID)
	return s
}

// Get は存在するセッションを返し、TTLを延長します。
func (st *SessionStore) Get(id string) (*Session, bool) {
	s, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	st.cache.Add(id, s)
	return s, true
}

// GetOrCreate はidが空か未知なら新しいセッションを作ります。
func (st *SessionStore) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := st.Get(id); ok {
			return s
		}
	}
	return st.Create()
}

// Delete はセッションを終了して削除します。
func (st *SessionStore) Delete(id string) bool {
	return st.cache.Remove(id)
}

// Len は保持しているセッション数を返します。
func (st *SessionStore) Len() int {
	return st.cache.Len()
}

// Purge はすべてのセッションを終了し、終了した件数を返します。
func (st *SessionStore) Purge() int {
	n := st.cache.Len()
	st.cache.Purge()
	return n
}
