package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"profile-agent/internal/domain"
)

func actionTypes(actions []domain.Action) []domain.ActionType {
	out := make([]domain.ActionType, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Type)
	}
	return out
}

func TestPlanActions_AlwaysRecordsAnalyticsLast(t *testing.T) {
	d := PlanActions(domain.ConversationState{Intent: domain.IntentInformational}, DefaultTunables())
	require.NotEmpty(t, d.PlannedActions)
	require.Equal(t, domain.ActionRecordAnalytics, d.PlannedActions[len(d.PlannedActions)-1].Type)
}

func TestPlanActions_DetailBlockForRecruiterCareerOnly(t *testing.T) {
	base := domain.ConversationState{
		GroundingSufficient: true,
		Intent:              domain.IntentCareer,
		Role:                domain.RoleRecruiter,
	}
	d := PlanActions(base, DefaultTunables())
	require.Contains(t, actionTypes(d.PlannedActions), domain.ActionIncludeDetailBlock)

	engineer := base
	engineer.Role = domain.RoleEngineer
	d = PlanActions(engineer, DefaultTunables())
	require.NotContains(t, actionTypes(d.PlannedActions), domain.ActionIncludeDetailBlock)

	ungrounded := base
	ungrounded.GroundingSufficient = false
	d = PlanActions(ungrounded, DefaultTunables())
	require.NotContains(t, actionTypes(d.PlannedActions), domain.ActionIncludeDetailBlock)
}

func TestPlanActions_SignalsArmOfferThenMentionOnceNextTurn(t *testing.T) {
	tun := DefaultTunables()

	// Turn with enough accumulated signals: arm, but do not mention yet.
	armed := domain.ConversationState{
		Distribution: domain.DistributionNotOffered,
		Signals:      []domain.Signal{domain.SignalStaffingNeed, domain.SignalTimeline},
	}
	d := PlanActions(armed, tun)
	require.NotContains(t, actionTypes(d.PlannedActions), domain.ActionMentionDocument)
	require.NotNil(t, d.Distribution)
	require.Equal(t, domain.DistributionSignalDetected, *d.Distribution)

	// Next turn: exactly one mention, then status moves to Offered.
	next := armed
	next.Distribution = domain.DistributionSignalDetected
	d = PlanActions(next, tun)
	require.Contains(t, actionTypes(d.PlannedActions), domain.ActionMentionDocument)
	require.Equal(t, domain.DistributionOffered, *d.Distribution)

	// Once Offered, no further mentions regardless of new signals.
	after := next
	after.Distribution = domain.DistributionOffered
	after.Signals = append(after.Signals, domain.SignalCompensation)
	d = PlanActions(after, tun)
	require.NotContains(t, actionTypes(d.PlannedActions), domain.ActionMentionDocument)
	require.Nil(t, d.Distribution)
}

func TestPlanActions_OneSignalIsNotEnough(t *testing.T) {
	d := PlanActions(domain.ConversationState{
		Signals: []domain.Signal{domain.SignalStaffingNeed},
	}, DefaultTunables())
	require.Nil(t, d.Distribution)
}

func TestPlanActions_ExplicitRequestWithAddressSchedulesSend(t *testing.T) {
	s := domain.ConversationState{
		Intent:          domain.IntentDocumentRequest,
		Flags:           []domain.Flag{domain.FlagExplicitDocRequest, domain.FlagHasAddress},
		DeliveryAddress: "jane@example.com",
	}
	d := PlanActions(s, DefaultTunables())
	types := actionTypes(d.PlannedActions)
	require.Contains(t, types, domain.ActionSendDocument)
	require.Contains(t, types, domain.ActionNotifyOperator)
	require.Equal(t, domain.DistributionOffered, *d.Distribution)
}

func TestPlanActions_ExplicitRequestWithoutAddressAsksForOne(t *testing.T) {
	s := domain.ConversationState{
		Intent: domain.IntentDocumentRequest,
		Flags:  []domain.Flag{domain.FlagExplicitDocRequest},
	}
	d := PlanActions(s, DefaultTunables())
	types := actionTypes(d.PlannedActions)
	require.Contains(t, types, domain.ActionRequestAddress)
	require.NotContains(t, types, domain.ActionSendDocument)
	require.Equal(t, domain.DistributionOffered, *d.Distribution)
}

func TestPlanActions_AddressArrivingWhileOfferedCompletesSend(t *testing.T) {
	s := domain.ConversationState{
		Distribution:    domain.DistributionOffered,
		Flags:           []domain.Flag{domain.FlagHasAddress},
		DeliveryAddress: "jane@example.com",
	}
	d := PlanActions(s, DefaultTunables())
	types := actionTypes(d.PlannedActions)
	require.Contains(t, types, domain.ActionSendDocument)
	require.Contains(t, types, domain.ActionNotifyOperator)
	require.Nil(t, d.Distribution)
}

func TestPlanActions_SentIsTerminal(t *testing.T) {
	s := domain.ConversationState{
		Distribution: domain.DistributionSent,
		Signals:      []domain.Signal{domain.SignalStaffingNeed, domain.SignalTimeline},
	}
	d := PlanActions(s, DefaultTunables())
	types := actionTypes(d.PlannedActions)
	require.NotContains(t, types, domain.ActionSendDocument)
	require.NotContains(t, types, domain.ActionMentionDocument)
	require.Nil(t, d.Distribution)

	// A repeated explicit request only offers a resend.
	s.Flags = []domain.Flag{domain.FlagExplicitDocRequest}
	d = PlanActions(s, DefaultTunables())
	require.Contains(t, actionTypes(d.PlannedActions), domain.ActionResendOffer)
	require.Nil(t, d.Distribution)
}

func TestPlanActions_Deterministic(t *testing.T) {
	s := domain.ConversationState{
		GroundingSufficient: true,
		Intent:              domain.IntentCareer,
		Role:                domain.RoleHiringManager,
		Distribution:        domain.DistributionSignalDetected,
		Signals:             []domain.Signal{domain.SignalStaffingNeed, domain.SignalTeamContext},
	}
	first := PlanActions(s, DefaultTunables())
	for i := 0; i < 10; i++ {
		again := PlanActions(s, DefaultTunables())
		require.Equal(t, first.PlannedActions, again.PlannedActions)
		require.Equal(t, *first.Distribution, *again.Distribution)
	}
}
