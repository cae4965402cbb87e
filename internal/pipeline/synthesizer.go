package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"profile-agent/internal/domain"
)

// GenericAnswer is returned when generation stays degraded after the retry.
const GenericAnswer = "I wasn't able to put together a complete answer just now. Could you rephrase the question, or ask about a specific part of my background?"

const maxHistoryExchangeLen = 280

var roleInstructions = map[domain.Role]string{
	domain.RoleRecruiter:     "You are answering as the profile owner in first person, speaking to a recruiter. Emphasize roles, scope, and outcomes. Keep it concise.",
	domain.RoleHiringManager: "You are answering as the profile owner in first person, speaking to a hiring manager. Emphasize delivery, collaboration, and technical depth.",
	domain.RoleEngineer:      "You are answering as the profile owner in first person, speaking to a fellow engineer. It is fine to go into technical detail.",
	domain.RoleGeneral:       "You are answering as the profile owner in first person. Keep responses professional and approachable.",
}

// synthesize builds the grounded prompt, calls the generator once, and
// sanitizes the output. Empty or too-short output is treated as degraded:
// one retry with a simplified prompt, then the generic answer. Generation
// problems never surface to the caller as errors.
func synthesize(ctx context.Context, gen Generator, s domain.ConversationState, t Tunables) domain.StateDelta {
	prompt := buildPrompt(s, false)
	raw, err := gen.Generate(ctx, prompt)
	answer := SanitizeAnswer(raw)
	if err != nil || len(answer) < t.MinAnswerLen {
		if err != nil {
			slog.Warn("generation failed, retrying with simplified prompt", "session_id", s.SessionID, "err", err)
		} else {
			slog.Warn("generation degraded, retrying with simplified prompt", "session_id", s.SessionID, "len", len(answer))
		}
		raw, err = gen.Generate(ctx, buildPrompt(s, true))
		answer = SanitizeAnswer(raw)
		if err != nil || len(answer) < t.MinAnswerLen {
			answer = GenericAnswer
		}
	}
	return domain.StateDelta{Answer: &answer}
}

// buildPrompt assembles role instructions, bounded history, retrieved
// context, and the question into one generation prompt. The simplified form
// drops history and keeps only the top chunk for the degraded-retry path.
func buildPrompt(s domain.ConversationState, simplified bool) string {
	var b strings.Builder

	instructions, ok := roleInstructions[s.Role]
	if !ok {
		instructions = roleInstructions[domain.RoleGeneral]
	}
	b.WriteString(instructions)
	b.WriteString("\nAnswer using only the context below. If the context does not cover the question, say so plainly.\n")

	chunks := s.Chunks
	if simplified && len(chunks) > 1 {
		chunks = chunks[:1]
	}
	b.WriteString("\nContext:\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "[Source: %s]\n%s\n", c.SourceID, strings.TrimSpace(c.Content))
	}

	if !simplified && len(s.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, h := range s.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", truncate(h.Question, maxHistoryExchangeLen), truncate(h.Answer, maxHistoryExchangeLen))
		}
	}

	question := s.Query
	if s.WasExpanded && s.ExpandedQuery != "" {
		question = s.ExpandedQuery
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	b.WriteString("Respond in plain professional prose with no markup, lists, or headings.\n")
	return b.String()
}

var (
	headingRe   = regexp.MustCompile(`(?m)^\s*#{1,6}\s+`)
	fenceRe     = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*\\s*$")
	wikiLinkRe  = regexp.MustCompile(`\[\[([^\]]*)\]\]`)
	htmlTagRe   = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	queryLineRe = regexp.MustCompile(`(?m)^\s*(SELECT\s|WHERE\s|nearText\s*\(|\{\s*Get\s*\{).*$`)
	multiNLRe   = regexp.MustCompile(`\n{3,}`)
)

// SanitizeAnswer strips structural markup and query-language artifacts the
// corpus can leak into generated text. The corpus carries rich markup for
// search quality; user-facing answers must be plain prose.
func SanitizeAnswer(raw string) string {
	out := strings.TrimSpace(raw)
	out = fenceRe.ReplaceAllString(out, "")
	out = headingRe.ReplaceAllString(out, "")
	out = wikiLinkRe.ReplaceAllString(out, "$1")
	out = htmlTagRe.ReplaceAllString(out, "")
	out = queryLineRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "**", "")
	out = strings.ReplaceAll(out, "__", "")
	out = strings.ReplaceAll(out, "`", "")
	out = multiNLRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// truncate bounds s to maxLen bytes, backing off to a rune boundary so the
// cut never leaves a partial UTF-8 sequence in the prompt.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
