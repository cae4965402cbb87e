package pipeline

import (
	"fmt"
	"strings"

	"profile-agent/internal/domain"
)

// DegradedServiceAnswer is the fixed reply used when the retrieval backend
// is unreachable. Kept as a constant so retries and tests see identical copy.
const DegradedServiceAnswer = "I'm having trouble reaching my knowledge base right now, so I can't give you a grounded answer. Please try again in a moment."

var fallbackTopics = []string{
	"professional experience and past roles",
	"technical skills and tools",
	"projects and open source work",
	"education and certifications",
	"availability, location, and logistics",
}

// ValidateGrounding decides whether the retrieved context is good enough to
// synthesize from. The cases are evaluated in priority order; distinguishing
// "expansion found nothing" from "retrieval found only weak matches" lets
// the fallback copy point the user somewhere useful instead of guessing.
func ValidateGrounding(s domain.ConversationState, retrievalFailed bool, t Tunables) domain.StateDelta {
	insufficient := false

	if retrievalFailed {
		return answerDelta(DegradedServiceAnswer, &insufficient)
	}

	if s.WasExpanded && len(s.Chunks) == 0 {
		return answerDelta(expansionMissAnswer(s.Query), &insufficient)
	}

	if allBelow(s.Chunks, t.LowQualityThreshold) {
		return answerDelta(weakContextAnswer(), &insufficient)
	}

	kept := make([]domain.RetrievedChunk, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if c.Score >= t.GroundingThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return answerDelta(weakContextAnswer(), &insufficient)
	}

	sufficient := true
	return domain.StateDelta{GroundingSufficient: &sufficient, Chunks: kept}
}

// allBelow reports whether every score is under the threshold. An empty
// chunk set counts as all-weak so a no-hit query gets the topic fallback.
func allBelow(chunks []domain.RetrievedChunk, threshold float64) bool {
	for _, c := range chunks {
		if c.Score >= threshold {
			return false
		}
	}
	return true
}

// expansionMissAnswer restates the user's original short query and offers
// concrete reformulations drawn from the expansion table.
func expansionMissAnswer(originalQuery string) string {
	examples := ExampleReformulations(3)
	var b strings.Builder
	fmt.Fprintf(&b, "I couldn't find anything solid for %q. Could you be more specific? For example:\n", strings.TrimSpace(originalQuery))
	for _, e := range examples {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}

func weakContextAnswer() string {
	var b strings.Builder
	b.WriteString("I don't have good source material for that one. Topics I can speak to in detail:\n")
	for _, t := range fallbackTopics {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return strings.TrimRight(b.String(), "\n")
}

func answerDelta(answer string, sufficient *bool) domain.StateDelta {
	return domain.StateDelta{Answer: &answer, GroundingSufficient: sufficient}
}
