package pipeline

import (
	"context"
	"log/slog"
	"time"

	"profile-agent/internal/domain"
)

// logInteraction writes the analytics projection of a finished turn. It is
// strictly best-effort: any failure, including a panicking store, is reduced
// to a local warning so the answer already computed for the user is never
// blocked.
func (s *Service) logInteraction(ctx context.Context, state domain.ConversationState, latencies map[string]int64, results []domain.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("analytics logging panicked", "session_id", state.SessionID, "panic", r)
		}
	}()

	scores := make([]float64, 0, len(state.Chunks))
	for _, c := range state.Chunks {
		scores = append(scores, c.Score)
	}

	rec := domain.AnalyticsRecord{
		SessionID:        state.SessionID,
		TurnTimestamp:    time.Now().UTC(),
		StageLatenciesMs: latencies,
		RetrievalScores:  scores,
		ActionsTaken:     results,
		Distribution:     state.Distribution,
	}
	if err := s.store.WriteAnalytics(ctx, rec); err != nil {
		slog.Warn("analytics write failed", "session_id", state.SessionID, "err", err)
	}
}
