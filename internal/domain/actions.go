package domain

// ActionType identifies a follow-up action the planner can schedule.
type ActionType string

const (
	ActionIncludeDetailBlock ActionType = "include_detail_block"
	ActionMentionDocument    ActionType = "mention_document"
	ActionRequestAddress     ActionType = "request_address"
	ActionSendDocument       ActionType = "send_document"
	ActionResendOffer        ActionType = "resend_offer"
	ActionNotifyOperator     ActionType = "notify_operator"
	ActionRecordAnalytics    ActionType = "record_analytics"
)

// Action is one planned follow-up with its parameters.
type Action struct {
	Type   ActionType
	Params map[string]string
}

// ActionResult records the outcome of an executed action.
type ActionResult struct {
	Type   ActionType
	OK     bool
	Detail string
}

// SideEffecting reports whether the action touches an external channel and
// therefore requires an idempotency claim before execution.
func (t ActionType) SideEffecting() bool {
	switch t {
	case ActionSendDocument, ActionNotifyOperator:
		return true
	default:
		return false
	}
}
