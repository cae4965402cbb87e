package domain

import "time"

// Role is the persona a visitor self-selects when starting a conversation.
type Role string

const (
	RoleRecruiter     Role = "recruiter"
	RoleHiringManager Role = "hiring_manager"
	RoleEngineer      Role = "engineer"
	RoleGeneral       Role = "general"
)

// ParseRole maps an incoming role string to a supported persona. Unknown or
// empty values fall back to RoleGeneral rather than rejecting the turn.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleRecruiter, RoleHiringManager, RoleEngineer, RoleGeneral:
		return Role(s)
	default:
		return RoleGeneral
	}
}

// Intent is the classified purpose of a single user turn.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentInformational   Intent = "informational"
	IntentCareer          Intent = "career"
	IntentDataDisplay     Intent = "data_display"
	IntentDocumentRequest Intent = "document_request"
	IntentAmbiguous       Intent = "ambiguous"
	IntentOffTopic        Intent = "off_topic"
	IntentInvalid         Intent = "invalid"
)

// Flag is an auxiliary marker emitted by the classifier alongside the intent.
type Flag string

const (
	FlagExplicitDocRequest Flag = "explicit_doc_request"
	FlagHasAddress         Flag = "has_address"
)

// Signal is a conversational cue suggesting interest in the distributed
// document. Signals accumulate in session memory and are never reset.
type Signal string

const (
	SignalStaffingNeed Signal = "staffing_need"
	SignalTeamContext  Signal = "team_context"
	SignalTimeline     Signal = "timeline"
	SignalCompensation Signal = "compensation"
)

// Exchange is a completed prior turn replayed into prompt context.
type Exchange struct {
	Question string
	Answer   string
}

// RetrievedChunk is one ranked similarity-search result.
type RetrievedChunk struct {
	Content  string
	SourceID string
	Score    float64
}

// ConversationState is the per-turn unit of work. It is created fresh from
// the incoming request plus persisted session memory, and is only modified
// through ApplyDelta.
type ConversationState struct {
	SessionID string
	Role      Role
	Query     string

	ExpandedQuery string
	WasExpanded   bool

	History []Exchange

	Chunks              []RetrievedChunk
	GroundingSufficient bool

	Intent Intent
	Flags  []Flag

	Answer         string
	PlannedActions []Action

	Distribution    DistributionStatus
	Signals         []Signal
	DeliveryAddress string

	TurnCount int
}

// HasFlag reports whether the classifier set the given flag this turn.
func (s ConversationState) HasFlag(f Flag) bool {
	for _, v := range s.Flags {
		if v == f {
			return true
		}
	}
	return false
}

// SignalCount returns the number of distinct accumulated signals.
func (s ConversationState) SignalCount() int {
	return len(s.Signals)
}

// SessionMemory is the slice of state that survives across turns.
type SessionMemory struct {
	SessionID       string
	Role            Role
	Distribution    DistributionStatus
	Signals         []Signal
	DeliveryAddress string
	TurnCount       int
}

// AnalyticsRecord is the immutable projection of a finished turn.
type AnalyticsRecord struct {
	SessionID        string
	TurnTimestamp    time.Time
	StageLatenciesMs map[string]int64
	RetrievalScores  []float64
	ActionsTaken     []ActionResult
	Distribution     DistributionStatus
}
