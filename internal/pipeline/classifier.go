package pipeline

import (
	"regexp"
	"strings"

	"profile-agent/internal/domain"
)

// Classification is the classifier's full output for one turn: the intent
// tag plus auxiliary flags, any interest signals detected in the utterance,
// and an extracted delivery address when one is present.
type Classification struct {
	Intent  domain.Intent
	Flags   []domain.Flag
	Signals []domain.Signal
	Address string
}

var (
	greetingRe = regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|howdy|greetings|good\s+(morning|afternoon|evening))[\s!.,]*$`)
	addressRe  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	clauseSplitRe  = regexp.MustCompile(`[.?!;]+|,?\s*\band also\b|, and\b`)
	questionLeadRe = regexp.MustCompile(`^(what|how|when|where|why|who|which|is|are|do|does|did|can|could|would|will|tell me|have you)\b`)

	docNouns   = []string{"resume", "cv", "document", "portfolio pdf", "one-pager"}
	docVerbs   = []string{"send", "email", "mail", "share", "forward", "get a copy", "have a copy"}
	displayCue = []string{"show", "list", "display", "chart", "graph", "timeline of"}
	careerCue  = []string{"experience", "career", "worked", "background", "previous role", "job history", "education", "skills", "projects", "achievements"}

	offTopicCue = []string{"weather", "politics", "election", "sports score", "bitcoin", "stock price", "tell me a joke", "recipe"}

	signalCues = []struct {
		signal domain.Signal
		terms  []string
	}{
		{domain.SignalStaffingNeed, []string{"hiring", "we're looking for", "we are looking for", "open position", "open role", "headcount", "vacancy", "filling a role"}},
		{domain.SignalTeamContext, []string{"our team", "my team", "the team", "we need someone", "join us", "our company", "our org"}},
		{domain.SignalTimeline, []string{"start date", "when can you start", "available", "availability", "notice period", "how soon"}},
		{domain.SignalCompensation, []string{"salary", "compensation", "pay range", "rate", "contract terms"}},
	}
)

// Classify assigns an intent to the query and extracts flags and signals.
// It is pure and deterministic: no I/O, no randomness. An empty query maps
// to IntentInvalid rather than an error; the orchestrator treats invalid as
// a terminal short-circuit.
func Classify(query string, role domain.Role) Classification {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Classification{Intent: domain.IntentInvalid}
	}

	lower := strings.ToLower(trimmed)
	c := Classification{}

	if addr := addressRe.FindString(trimmed); addr != "" {
		c.Address = addr
		c.Flags = append(c.Flags, domain.FlagHasAddress)
	}
	for _, cue := range signalCues {
		if containsAny(lower, cue.terms) {
			c.Signals = append(c.Signals, cue.signal)
		}
	}

	// The explicit request is a flag layered over the intent, not the intent
	// itself: a turn can ask for the document and carry a question at once.
	// The intent collapses to document_request only when nothing else was
	// asked, so the grounded stages still run for the attached question.
	explicit := isExplicitDocRequest(lower)
	if explicit {
		c.Flags = append(c.Flags, domain.FlagExplicitDocRequest)
	}

	switch {
	case greetingRe.MatchString(trimmed):
		c.Intent = domain.IntentGreeting
	case explicit && !questionBeyondRequest(lower):
		c.Intent = domain.IntentDocumentRequest
	case containsAny(lower, offTopicCue):
		c.Intent = domain.IntentOffTopic
	case containsAny(lower, displayCue):
		c.Intent = domain.IntentDataDisplay
	case containsAny(lower, careerCue):
		c.Intent = domain.IntentCareer
	case len(strings.Fields(lower)) <= 2:
		c.Intent = ambiguousFor(role)
	default:
		c.Intent = domain.IntentInformational
	}

	// An utterance that is only an address is the follow-up to an earlier
	// address request, not a new question.
	if c.Address != "" && strings.TrimSpace(strings.Replace(trimmed, c.Address, "", 1)) == "" {
		c.Intent = domain.IntentDocumentRequest
	}

	return c
}

// isExplicitDocRequest matches a direct ask for the document: a document
// noun together with a delivery verb ("send me your resume", "can you email
// the cv").
func isExplicitDocRequest(lower string) bool {
	if !containsAny(lower, docNouns) {
		return false
	}
	return containsAny(lower, docVerbs)
}

// questionBeyondRequest reports whether the utterance carries a question in
// addition to the document request. The utterance is split into clauses on
// sentence breaks and coordinating joins; a clause that does not mention the
// document and reads as a question or topical cue keeps the turn on the
// grounded path.
func questionBeyondRequest(lower string) bool {
	for _, clause := range clauseSplitRe.Split(lower, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" || containsAny(clause, docNouns) {
			continue
		}
		if questionLeadRe.MatchString(clause) ||
			containsAny(clause, careerCue) ||
			containsAny(clause, displayCue) ||
			containsAny(clause, offTopicCue) {
			return true
		}
	}
	return false
}

// ambiguousFor biases very short queries by persona: recruiters and hiring
// managers asking two-word questions almost always mean career topics.
func ambiguousFor(role domain.Role) domain.Intent {
	switch role {
	case domain.RoleRecruiter, domain.RoleHiringManager:
		return domain.IntentCareer
	default:
		return domain.IntentAmbiguous
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
