package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"profile-agent/internal/domain"
)

const defaultTurnTimeout = 30 * time.Second

// ParamGetter fetches configuration values from the parameter store.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Retriever is the similarity-search backend. An empty result is valid; an
// unreachable backend returns an error satisfying retrievalUnavailable.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error)
}

// Generator is the text-generation backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionStore persists session memory, history, and analytics records.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionMemory, error)
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error)
	SaveTurn(ctx context.Context, mem domain.SessionMemory, question, answer string) error
	WriteAnalytics(ctx context.Context, rec domain.AnalyticsRecord) error
	GetAnalytics(ctx context.Context, sessionID string, limit int) ([]domain.AnalyticsRecord, error)
}

// DeliveryChannel sends the document to a delivery address.
type DeliveryChannel interface {
	Send(ctx context.Context, p DeliveryPayload) (DeliveryReceipt, error)
}

// Notifier pushes a short operator notification.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// retrievalUnavailable is satisfied by retriever errors that mean the
// backend is unreachable rather than "no results".
type retrievalUnavailable interface {
	RetrievalUnavailable() bool
}

// Service runs the per-turn conversation pipeline.
type Service struct {
	params      ParamGetter
	retriever   Retriever
	generator   Generator
	store       SessionStore
	delivery    DeliveryChannel
	notifier    Notifier
	idem        IdempotencyStore
	paramPrefix string
	turnTimeout time.Duration

	cacheMu     sync.RWMutex
	cacheLoaded bool
	tunables    Tunables
}

// TurnInput is the incoming turn contract. History is server-side state and
// is never accepted from the client.
type TurnInput struct {
	SessionID string
	Role      string
	Query     string
}

// TurnSource identifies one grounding source used for the answer.
type TurnSource struct {
	SourceID string
	Score    float64
}

// TurnOutput is the outgoing turn contract.
type TurnOutput struct {
	SessionID    string
	Answer       string
	ActionsTaken []domain.ActionResult
	Sources      []TurnSource
}

// NewService validates dependencies and returns a ready pipeline service.
func NewService(
	params ParamGetter,
	retriever Retriever,
	generator Generator,
	store SessionStore,
	delivery DeliveryChannel,
	notifier Notifier,
	idem IdempotencyStore,
	paramPrefix string,
	turnTimeout time.Duration,
) (*Service, error) {
	if params == nil {
		return nil, errors.New("pipeline: param getter must not be nil")
	}
	if retriever == nil {
		return nil, errors.New("pipeline: retriever must not be nil")
	}
	if generator == nil {
		return nil, errors.New("pipeline: generator must not be nil")
	}
	if store == nil {
		return nil, errors.New("pipeline: session store must not be nil")
	}
	if delivery == nil {
		return nil, errors.New("pipeline: delivery channel must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("pipeline: notifier must not be nil")
	}
	if idem == nil {
		return nil, errors.New("pipeline: idempotency store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("pipeline: parameter prefix must not be empty")
	}
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	return &Service{
		params:      params,
		retriever:   retriever,
		generator:   generator,
		store:       store,
		delivery:    delivery,
		notifier:    notifier,
		idem:        idem,
		paramPrefix: paramPrefix,
		turnTimeout: turnTimeout,
	}, nil
}

// HandleTurn runs the full pipeline for one user turn. The only hard
// rejection is a missing session identity; everything past that point
// degrades to some user-facing answer.
func (s *Service) HandleTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	tun := s.currentTunables(ctx)
	timer := newStageTimer()

	mem, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		// A fresh memory is safe here: the idempotency store, not session
		// status, guards against duplicate sends.
		slog.Warn("session load failed, starting from empty memory", "session_id", sessionID, "err", err)
		mem = domain.SessionMemory{SessionID: sessionID}
	}
	timer.mark("session_load")

	state := domain.ConversationState{
		SessionID:       sessionID,
		Role:            domain.ParseRole(in.Role),
		Query:           strings.TrimSpace(in.Query),
		Distribution:    mem.Distribution,
		Signals:         mem.Signals,
		DeliveryAddress: mem.DeliveryAddress,
		TurnCount:       mem.TurnCount,
	}

	// Stage 1: classify.
	state = s.classifyStage(state, tun)
	timer.mark("classify")

	if state.Intent == domain.IntentInvalid {
		return s.finishTurn(ctx, state, mem, timer, clarificationAnswer)
	}
	if state.Intent == domain.IntentGreeting {
		return s.finishTurn(ctx, state, mem, timer, greetingAnswer(state.Role))
	}
	if mem.TurnCount >= tun.MaxTurns {
		return s.finishTurn(ctx, state, mem, timer, turnCapAnswer)
	}

	history, err := s.store.GetHistory(ctx, sessionID, tun.HistoryLimit)
	if err != nil {
		slog.Warn("history load failed, continuing without history", "session_id", sessionID, "err", err)
	} else {
		state.History = history
	}
	timer.mark("history_load")

	// Stages 2-5 are skipped for a pure document request: there is no
	// question to ground or answer.
	if state.Intent != domain.IntentDocumentRequest {
		state = s.groundedAnswerStages(ctx, state, tun, timer)
	}

	// Stage 6: plan.
	state, err = domain.ApplyDelta(state, PlanActions(state, tun))
	if err != nil {
		slog.Warn("planner delta rejected", "session_id", sessionID, "err", err)
	}
	timer.mark("plan")

	// Stage 8: execute.
	outcome := s.executeActions(ctx, state)
	timer.mark("execute")

	if outcome.documentSent {
		if next, advErr := state.Distribution.Advance(domain.DistributionSent); advErr == nil {
			state.Distribution = next
		} else {
			slog.Warn("sent transition rejected", "session_id", sessionID, "err", advErr)
		}
	}

	state.Answer = composeAnswer(state, outcome)

	s.persistTurn(ctx, state, mem)
	timer.mark("persist")

	// Stage 9: log, best-effort.
	s.logInteraction(ctx, state, timer.latencies(), outcome.results)

	return TurnOutput{
		SessionID:    sessionID,
		Answer:       state.Answer,
		ActionsTaken: outcome.results,
		Sources:      sources(state),
	}, nil
}

// Analytics returns recent analytics records for a session. Rate limiting
// is applied at the handler; this is a plain read.
func (s *Service) Analytics(ctx context.Context, sessionID string, limit int) ([]domain.AnalyticsRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.store.GetAnalytics(ctx, sessionID, limit)
	if err != nil {
		return nil, newError(ErrorInternal, "analytics_read_error", err)
	}
	return recs, nil
}

func (s *Service) classifyStage(state domain.ConversationState, tun Tunables) domain.ConversationState {
	if len(state.Query) > tun.MaxQuestionLen {
		state.Intent = domain.IntentInvalid
		return state
	}
	cls := Classify(state.Query, state.Role)
	delta := domain.StateDelta{
		Intent:  &cls.Intent,
		Flags:   cls.Flags,
		Signals: cls.Signals,
	}
	if cls.Address != "" {
		delta.DeliveryAddress = &cls.Address
	}
	merged, err := domain.ApplyDelta(state, delta)
	if err != nil {
		slog.Warn("classifier delta rejected", "session_id", state.SessionID, "err", err)
		return state
	}
	return merged
}

// groundedAnswerStages runs expansion, retrieval, grounding validation, and
// synthesis, in that order, folding each stage's delta into the state.
func (s *Service) groundedAnswerStages(ctx context.Context, state domain.ConversationState, tun Tunables, timer *stageTimer) domain.ConversationState {
	state = applyOrKeep(state, Expand(state.Query, state.Intent))
	timer.mark("expand")

	retrievalFailed := false
	if state.Intent == domain.IntentOffTopic {
		// Off-topic turns skip retrieval; the validator's weak-context path
		// produces the redirect copy.
		timer.mark("retrieve")
	} else {
		query := state.Query
		if state.WasExpanded && state.ExpandedQuery != "" {
			query = state.ExpandedQuery
		}
		chunks, err := s.retriever.Retrieve(ctx, query, tun.TopK)
		if err != nil {
			retrievalFailed = true
			if isRetrievalUnavailable(err) {
				slog.Warn("retrieval backend unavailable", "session_id", state.SessionID, "err", err)
			} else {
				slog.Warn("retrieval failed", "session_id", state.SessionID, "err", err)
			}
		} else {
			state = applyOrKeep(state, domain.StateDelta{Chunks: chunks})
		}
		timer.mark("retrieve")
	}

	state = applyOrKeep(state, ValidateGrounding(state, retrievalFailed, tun))
	timer.mark("validate")

	if state.GroundingSufficient {
		state = applyOrKeep(state, synthesize(ctx, s.generator, state, tun))
	}
	timer.mark("synthesize")
	return state
}

func (s *Service) finishTurn(ctx context.Context, state domain.ConversationState, mem domain.SessionMemory, timer *stageTimer, answer string) (TurnOutput, error) {
	state.Answer = answer
	state.PlannedActions = []domain.Action{{Type: domain.ActionRecordAnalytics}}
	outcome := s.executeActions(ctx, state)

	s.persistTurn(ctx, state, mem)
	s.logInteraction(ctx, state, timer.latencies(), outcome.results)

	return TurnOutput{
		SessionID:    state.SessionID,
		Answer:       answer,
		ActionsTaken: outcome.results,
	}, nil
}

func (s *Service) persistTurn(ctx context.Context, state domain.ConversationState, prev domain.SessionMemory) {
	mem := domain.SessionMemory{
		SessionID:       state.SessionID,
		Role:            state.Role,
		Distribution:    state.Distribution,
		Signals:         state.Signals,
		DeliveryAddress: state.DeliveryAddress,
		TurnCount:       prev.TurnCount + 1,
	}
	if err := s.store.SaveTurn(ctx, mem, state.Query, state.Answer); err != nil {
		slog.Warn("turn persist failed", "session_id", state.SessionID, "err", err)
	}
}

// currentTunables loads the SSM tunables document once and caches it. A
// load failure falls back to defaults without caching, so the next request
// retries.
func (s *Service) currentTunables(ctx context.Context) Tunables {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		t := s.tunables
		s.cacheMu.RUnlock()
		return t
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return s.tunables
	}

	raw, err := s.params.GetParameter(ctx, s.paramPrefix+"/tunables")
	if err != nil {
		slog.Warn("tunables load failed, using defaults", "err", err)
		return DefaultTunables()
	}
	t, err := ParseTunables([]byte(raw))
	if err != nil {
		slog.Warn("tunables parse failed, using defaults", "err", err)
		return DefaultTunables()
	}
	s.tunables = t
	s.cacheLoaded = true
	return t
}

func applyOrKeep(state domain.ConversationState, delta domain.StateDelta) domain.ConversationState {
	merged, err := domain.ApplyDelta(state, delta)
	if err != nil {
		slog.Warn("stage delta rejected", "session_id", state.SessionID, "err", err)
		return state
	}
	return merged
}

func isRetrievalUnavailable(err error) bool {
	var u retrievalUnavailable
	return errors.As(err, &u) && u.RetrievalUnavailable()
}

func sources(state domain.ConversationState) []TurnSource {
	if !state.GroundingSufficient {
		return nil
	}
	out := make([]TurnSource, 0, len(state.Chunks))
	for _, c := range state.Chunks {
		out = append(out, TurnSource{SourceID: c.SourceID, Score: c.Score})
	}
	return out
}

type stageTimer struct {
	last time.Time
	lat  map[string]int64
}

func newStageTimer() *stageTimer {
	return &stageTimer{last: time.Now(), lat: make(map[string]int64)}
}

func (t *stageTimer) mark(stage string) {
	now := time.Now()
	t.lat[stage] = now.Sub(t.last).Milliseconds()
	t.last = now
}

func (t *stageTimer) latencies() map[string]int64 {
	out := make(map[string]int64, len(t.lat))
	for k, v := range t.lat {
		out[k] = v
	}
	return out
}
