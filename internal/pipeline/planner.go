package pipeline

import (
	"profile-agent/internal/domain"
)

// PlanActions is the per-turn decision table: (role, intent, turn count,
// accumulated signals, distribution status) to an ordered action list plus
// any distribution transition earned this turn. It is pure and deterministic;
// identical inputs always produce an identical ordered list.
//
// Distribution rules, in evaluation order:
//   - Sent is terminal: a repeated request only plans a resend offer.
//   - An explicit document request moves the session to Offered and either
//     schedules the send (address known) or asks for an address.
//   - An address arriving while Offered completes the pending request.
//   - SignalDetected converts to a single low-pressure mention on the turn
//     after detection, then never re-fires.
//   - Enough accumulated signals arm the offer for the next turn.
func PlanActions(s domain.ConversationState, t Tunables) domain.StateDelta {
	actions := make([]domain.Action, 0, 4)
	var status *domain.DistributionStatus

	if s.GroundingSufficient && wantsDetailBlock(s.Role, s.Intent) {
		actions = append(actions, domain.Action{
			Type:   domain.ActionIncludeDetailBlock,
			Params: map[string]string{"topic": string(s.Intent)},
		})
	}

	explicit := s.HasFlag(domain.FlagExplicitDocRequest)

	switch {
	case s.Distribution.Terminal():
		if explicit {
			actions = append(actions, domain.Action{Type: domain.ActionResendOffer})
		}
	case explicit:
		status = statusPtr(domain.DistributionOffered)
		if s.DeliveryAddress != "" {
			actions = append(actions,
				domain.Action{Type: domain.ActionSendDocument, Params: map[string]string{"address": s.DeliveryAddress}},
				domain.Action{Type: domain.ActionNotifyOperator, Params: map[string]string{"reason": "document_requested"}},
			)
		} else {
			actions = append(actions, domain.Action{Type: domain.ActionRequestAddress})
		}
	case s.Distribution == domain.DistributionOffered && s.HasFlag(domain.FlagHasAddress) && s.DeliveryAddress != "":
		actions = append(actions,
			domain.Action{Type: domain.ActionSendDocument, Params: map[string]string{"address": s.DeliveryAddress}},
			domain.Action{Type: domain.ActionNotifyOperator, Params: map[string]string{"reason": "address_received"}},
		)
	case s.Distribution == domain.DistributionSignalDetected:
		actions = append(actions, domain.Action{Type: domain.ActionMentionDocument})
		status = statusPtr(domain.DistributionOffered)
	case s.Distribution == domain.DistributionNotOffered && s.SignalCount() >= t.SignalsForOffer:
		status = statusPtr(domain.DistributionSignalDetected)
	}

	actions = append(actions, domain.Action{Type: domain.ActionRecordAnalytics})

	return domain.StateDelta{PlannedActions: actions, Distribution: status}
}

// wantsDetailBlock keeps the richer topical block for personas that act on
// it; engineers get depth in the answer body instead.
func wantsDetailBlock(role domain.Role, intent domain.Intent) bool {
	if intent != domain.IntentCareer && intent != domain.IntentDataDisplay {
		return false
	}
	return role == domain.RoleRecruiter || role == domain.RoleHiringManager
}

func statusPtr(s domain.DistributionStatus) *domain.DistributionStatus {
	return &s
}
