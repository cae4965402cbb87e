package pipeline

import (
	"fmt"
	"strings"

	"profile-agent/internal/domain"
)

const (
	clarificationAnswer = "I didn't catch a question there. Ask me anything about my professional background — experience, skills, projects, or availability."
	turnCapAnswer       = "We've covered a lot this session. If you'd like to keep talking, the best next step is to reach out directly — I'm happy to continue over email."
)

func greetingAnswer(role domain.Role) string {
	switch role {
	case domain.RoleRecruiter, domain.RoleHiringManager:
		return "Hello! I'm happy to walk you through my experience, skills, or anything else relevant to the role you're working on. What would you like to know?"
	case domain.RoleEngineer:
		return "Hey! Feel free to ask about the systems I've built, the stacks I've used, or anything else technical."
	default:
		return "Hello! Ask me anything about my professional background."
	}
}

// composeAnswer appends the executed actions' user-visible copy to whatever
// the synthesizer or validator produced. Order is fixed: base answer, detail
// offer, delivery outcome, address request, document mention, resend offer.
func composeAnswer(state domain.ConversationState, out executionOutcome) string {
	parts := make([]string, 0, 4)
	if state.Answer != "" {
		parts = append(parts, state.Answer)
	}
	if out.detailTopic != "" {
		parts = append(parts, "I can also break this down by role, dates, and outcomes if that's useful.")
	}
	if out.documentSent {
		parts = append(parts, fmt.Sprintf("I've sent the document to %s.", state.DeliveryAddress))
	} else if sendFailed(out.results) {
		parts = append(parts, "I couldn't send the document just now. Your request is noted — ask again shortly and I'll retry.")
	}
	if out.addressRequested {
		parts = append(parts, "Happy to send my full resume over. What email address should I use?")
	}
	if out.mentionedDoc {
		parts = append(parts, "By the way, I keep a detailed resume document I can email you if that would help.")
	}
	if out.resendOffered {
		parts = append(parts, "I've already sent the document this session. Let me know if you'd like it resent to the same address.")
	}
	if len(parts) == 0 {
		parts = append(parts, GenericAnswer)
	}
	return strings.Join(parts, "\n\n")
}

func sendFailed(results []domain.ActionResult) bool {
	for _, r := range results {
		if r.Type == domain.ActionSendDocument && !r.OK {
			return true
		}
	}
	return false
}
