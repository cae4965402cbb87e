package domain

// StateDelta is the typed partial update a pipeline stage returns. Each stage
// sets only the fields it owns; the orchestrator folds deltas into the turn
// state through ApplyDelta. The fixed schema replaces open-ended key/value
// stashing so a stage cannot invent or typo a field.
type StateDelta struct {
	ExpandedQuery       *string
	WasExpanded         *bool
	Chunks              []RetrievedChunk
	GroundingSufficient *bool
	Intent              *Intent
	Flags               []Flag
	Answer              *string
	PlannedActions      []Action
	Distribution        *DistributionStatus
	Signals             []Signal
	DeliveryAddress     *string
}

// ApplyDelta merges a stage delta into a state snapshot and returns the new
// state. The input state is not modified. Distribution changes go through
// DistributionStatus.Advance so regressions are rejected here rather than in
// every stage; new signals are deduplicated against the accumulated set.
func ApplyDelta(s ConversationState, d StateDelta) (ConversationState, error) {
	if d.ExpandedQuery != nil {
		s.ExpandedQuery = *d.ExpandedQuery
	}
	if d.WasExpanded != nil {
		s.WasExpanded = *d.WasExpanded
	}
	if d.Chunks != nil {
		s.Chunks = append([]RetrievedChunk(nil), d.Chunks...)
	}
	if d.GroundingSufficient != nil {
		s.GroundingSufficient = *d.GroundingSufficient
	}
	if d.Intent != nil {
		s.Intent = *d.Intent
	}
	if d.Flags != nil {
		s.Flags = append([]Flag(nil), d.Flags...)
	}
	if d.Answer != nil {
		s.Answer = *d.Answer
	}
	if d.PlannedActions != nil {
		s.PlannedActions = append([]Action(nil), d.PlannedActions...)
	}
	if d.Distribution != nil {
		next, err := s.Distribution.Advance(*d.Distribution)
		if err != nil {
			return ConversationState{}, err
		}
		s.Distribution = next
	}
	if d.DeliveryAddress != nil {
		s.DeliveryAddress = *d.DeliveryAddress
	}
	for _, sig := range d.Signals {
		if !hasSignal(s.Signals, sig) {
			s.Signals = append(s.Signals, sig)
		}
	}
	return s, nil
}

func hasSignal(signals []Signal, target Signal) bool {
	for _, s := range signals {
		if s == target {
			return true
		}
	}
	return false
}
