package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"profile-agent/internal/domain"
)

// DeliveryPayload is what the delivery channel needs to send the document.
type DeliveryPayload struct {
	SessionID      string
	Address        string
	IdempotencyKey string
}

// DeliveryReceipt is the channel's confirmation of a successful send.
type DeliveryReceipt struct {
	Ref string
}

// executionOutcome summarizes what the executor actually did so the
// orchestrator can compose the answer and decide status transitions.
type executionOutcome struct {
	results          []domain.ActionResult
	documentSent     bool
	deliveryRef      string
	addressRequested bool
	mentionedDoc     bool
	resendOffered    bool
	detailTopic      string
}

// executeActions runs the planned actions in order. Each action is isolated:
// a failing channel records a failed result and the loop continues, so the
// user still gets their answer. Side-effecting actions claim an idempotency
// key first; a key already set is success-no-op with the cached result.
func (s *Service) executeActions(ctx context.Context, state domain.ConversationState) executionOutcome {
	out := executionOutcome{results: make([]domain.ActionResult, 0, len(state.PlannedActions))}

	for _, action := range state.PlannedActions {
		switch action.Type {
		case domain.ActionIncludeDetailBlock:
			out.detailTopic = action.Params["topic"]
			out.results = append(out.results, okResult(action.Type, "included"))

		case domain.ActionMentionDocument:
			out.mentionedDoc = true
			out.results = append(out.results, okResult(action.Type, "mentioned"))

		case domain.ActionRequestAddress:
			out.addressRequested = true
			out.results = append(out.results, okResult(action.Type, "requested"))

		case domain.ActionResendOffer:
			out.resendOffered = true
			out.results = append(out.results, okResult(action.Type, "offered_resend"))

		case domain.ActionSendDocument:
			res := s.executeSend(ctx, state.SessionID, action.Params["address"], &out)
			out.results = append(out.results, res)

		case domain.ActionNotifyOperator:
			out.results = append(out.results, s.executeNotify(ctx, state, action.Params["reason"]))

		case domain.ActionRecordAnalytics:
			// The interaction logger writes the record after the answer is
			// final; this marker keeps the action visible in actionsTaken.
			out.results = append(out.results, okResult(action.Type, "recorded"))

		default:
			out.results = append(out.results, domain.ActionResult{Type: action.Type, OK: false, Detail: "unknown_action"})
		}
	}
	return out
}

func (s *Service) executeSend(ctx context.Context, sessionID, address string, out *executionOutcome) domain.ActionResult {
	if address == "" {
		return domain.ActionResult{Type: domain.ActionSendDocument, OK: false, Detail: "missing_address"}
	}

	key := ActionKey(sessionID, domain.ActionSendDocument)
	claimed, cached, err := s.idem.Claim(ctx, key)
	if err != nil {
		slog.Warn("idempotency claim failed", "session_id", sessionID, "err", err)
		return domain.ActionResult{Type: domain.ActionSendDocument, OK: false, Detail: "idempotency_error"}
	}
	if !claimed {
		if cached != "" {
			// A previous turn already delivered; report its result.
			out.documentSent = true
			out.deliveryRef = cached
			return okResult(domain.ActionSendDocument, cached)
		}
		// A concurrent turn holds the claim; do not send twice and do not
		// report delivery that has not been confirmed.
		return okResult(domain.ActionSendDocument, "duplicate_in_flight")
	}

	receipt, err := s.delivery.Send(ctx, DeliveryPayload{
		SessionID:      sessionID,
		Address:        address,
		IdempotencyKey: key,
	})
	if err != nil {
		slog.Warn("document delivery failed", "session_id", sessionID, "err", err)
		if relErr := s.idem.Release(ctx, key); relErr != nil {
			slog.Warn("idempotency release failed", "session_id", sessionID, "err", relErr)
		}
		return domain.ActionResult{Type: domain.ActionSendDocument, OK: false, Detail: "delivery_failed"}
	}

	if err := s.idem.Complete(ctx, key, receipt.Ref); err != nil {
		slog.Warn("idempotency complete failed", "session_id", sessionID, "err", err)
	}
	out.documentSent = true
	out.deliveryRef = receipt.Ref
	return okResult(domain.ActionSendDocument, receipt.Ref)
}

func (s *Service) executeNotify(ctx context.Context, state domain.ConversationState, reason string) domain.ActionResult {
	key := ActionKey(state.SessionID, domain.ActionNotifyOperator)
	claimed, cached, err := s.idem.Claim(ctx, key)
	if err != nil {
		return domain.ActionResult{Type: domain.ActionNotifyOperator, OK: false, Detail: "idempotency_error"}
	}
	if !claimed {
		if cached != "" {
			return okResult(domain.ActionNotifyOperator, cached)
		}
		return okResult(domain.ActionNotifyOperator, "duplicate_in_flight")
	}

	msg := fmt.Sprintf("session %s: %s (role %s, turn %d)", state.SessionID, reason, state.Role, state.TurnCount+1)
	if err := s.notifier.Notify(ctx, "profile-agent document interest", msg); err != nil {
		slog.Warn("operator notification failed", "session_id", state.SessionID, "err", err)
		if relErr := s.idem.Release(ctx, key); relErr != nil {
			slog.Warn("idempotency release failed", "session_id", state.SessionID, "err", relErr)
		}
		return domain.ActionResult{Type: domain.ActionNotifyOperator, OK: false, Detail: "notify_failed"}
	}
	if err := s.idem.Complete(ctx, key, "notified"); err != nil {
		slog.Warn("idempotency complete failed", "session_id", state.SessionID, "err", err)
	}
	return okResult(domain.ActionNotifyOperator, "notified")
}

func okResult(t domain.ActionType, detail string) domain.ActionResult {
	return domain.ActionResult{Type: t, OK: true, Detail: detail}
}
