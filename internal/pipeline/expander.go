package pipeline

import (
	"sort"
	"strings"

	"profile-agent/internal/domain"
)

// expansionTable maps common one- and two-word queries to the fuller
// question people usually mean. The keys double as example reformulations in
// the grounding fallback copy.
var expansionTable = map[string]string{
	"engineering":  "What engineering work have you done and what technologies did you use?",
	"experience":   "Can you summarize your professional experience and the roles you have held?",
	"skills":       "What are your strongest technical skills and how have you applied them?",
	"education":    "What is your educational background?",
	"projects":     "What notable projects have you built or contributed to?",
	"leadership":   "What leadership or mentoring experience do you have?",
	"golang":       "What experience do you have building systems in Go?",
	"go":           "What experience do you have building systems in Go?",
	"cloud":        "What cloud platforms and infrastructure have you worked with?",
	"aws":          "What experience do you have with AWS services?",
	"availability": "When are you available to start a new role?",
	"location":     "Where are you located and are you open to relocation or remote work?",
}

// Expand rewrites a vague short query into the fuller retrieval question
// from the static table. Only queries of at most two tokens are considered
// vague; anything longer passes through untouched. Pure, no I/O.
func Expand(query string, intent domain.Intent) domain.StateDelta {
	tokens := strings.Fields(query)
	if len(tokens) > 2 || intent == domain.IntentGreeting || intent == domain.IntentDocumentRequest {
		return domain.StateDelta{}
	}

	key := strings.ToLower(strings.TrimSpace(query))
	key = strings.Trim(key, "?!. ")
	expanded, ok := expansionTable[key]
	if !ok {
		// Try the individual tokens so "your skills" still expands.
		for _, tok := range tokens {
			if e, found := expansionTable[strings.ToLower(strings.Trim(tok, "?!. "))]; found {
				expanded, ok = e, true
				break
			}
		}
	}
	if !ok {
		return domain.StateDelta{}
	}

	was := true
	return domain.StateDelta{ExpandedQuery: &expanded, WasExpanded: &was}
}

// ExampleReformulations returns up to n sample questions from the expansion
// table, sorted for deterministic fallback copy.
func ExampleReformulations(n int) []string {
	seen := make(map[string]bool, len(expansionTable))
	unique := make([]string, 0, len(expansionTable))
	for _, q := range expansionTable {
		if !seen[q] {
			seen[q] = true
			unique = append(unique, q)
		}
	}
	sort.Strings(unique)
	if n < len(unique) {
		unique = unique[:n]
	}
	return unique
}
