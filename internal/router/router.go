// Package router decides which subagent, if any, should handle an input.
// Routing is a pure function of the intent; it owns no state and has no side
// effects, so callers may invoke it concurrently with anything.
package router

import (
	"fmt"
	"strings"
	"unicode"
)

// Candidate is the routing-relevant surface of one registered subagent.
type Candidate struct {
	Name     string
	Keywords []string
}

// Intent bundles everything one routing decision depends on.
type Intent struct {
	// Text is the free-text input to route.
	Text string
	// Selector is an explicit subagent selection, when the caller received
	// one out of band (e.g. a CLI argument). Empty means none.
	Selector string
	// AutoRoute enables keyword inference when no explicit selector is
	// present.
	AutoRoute bool
	// Candidates is the effective set of registered subagents.
	Candidates []Candidate
}

// Decision is the routing outcome. AgentName is empty when no subagent was
// selected; Reason always explains the outcome, match or not.
type Decision struct {
	AgentName string
	Reason    string
}

// Matched reports whether the decision selected a subagent.
func (d Decision) Matched() bool { return d.AgentName != "" }

// Route resolves an intent to a subagent or a fully-described non-match.
//
// Decision order: empty candidate set; explicit selector (direct or a
// "/use <name>" command prefix, the argument may be quoted); auto-route
// gate; keyword scoring with ties never broken arbitrarily.
func Route(intent Intent) Decision {
	if len(intent.Candidates) == 0 {
		return Decision{Reason: "no registered subagents"}
	}

	selector, viaCommand, present := explicitSelector(intent)
	if present {
		if selector == "" {
			return Decision{Reason: "missing name after command"}
		}
		if c, ok := resolveSelector(selector, intent.Candidates); ok {
			reason := "explicitly selected"
			if viaCommand {
				reason = "selected via /use command"
			}
			return Decision{AgentName: c.Name, Reason: reason}
		}
		return Decision{Reason: fmt.Sprintf("unknown subagent '%s'", selector)}
	}

	if !intent.AutoRoute {
		return Decision{Reason: "auto-routing disabled"}
	}

	return scoreCandidates(intent.Text, intent.Candidates)
}

// explicitSelector extracts an explicit selection from the intent: either the
// Selector field or a leading /use command in the text. present is true even
// when the selection is blank, which is its own outcome.
func explicitSelector(intent Intent) (selector string, viaCommand, present bool) {
	if intent.Selector != "" {
		return strings.TrimSpace(intent.Selector), false, true
	}

	trimmed := strings.TrimSpace(intent.Text)
	if trimmed != "/use" && !strings.HasPrefix(trimmed, "/use ") && !strings.HasPrefix(trimmed, "/use\t") {
		return "", false, false
	}
	arg := strings.TrimSpace(strings.TrimPrefix(trimmed, "/use"))
	return unquote(arg), true, true
}

// unquote strips one level of matching quotes so selectors may contain
// spaces: /use "spec parser".
func unquote(arg string) string {
	if len(arg) < 2 {
		return arg
	}
	if (arg[0] == '"' && arg[len(arg)-1] == '"') || (arg[0] == '\'' && arg[len(arg)-1] == '\'') {
		return strings.TrimSpace(arg[1 : len(arg)-1])
	}
	if arg[0] == '"' || arg[0] == '\'' {
		return strings.TrimSpace(arg[1:])
	}
	// Unquoted selectors end at the first whitespace.
	if i := strings.IndexFunc(arg, unicode.IsSpace); i >= 0 {
		return arg[:i]
	}
	return arg
}

// resolveSelector matches a selector against candidate names and keywords
// using a case- and punctuation-insensitive slug comparison.
func resolveSelector(selector string, candidates []Candidate) (Candidate, bool) {
	want := slug(selector)
	if want == "" {
		return Candidate{}, false
	}
	for _, c := range candidates {
		if slug(c.Name) == want {
			return c, true
		}
	}
	for _, c := range candidates {
		for _, kw := range c.Keywords {
			if slug(kw) == want {
				return c, true
			}
		}
	}
	return Candidate{}, false
}

// slug lowercases and drops everything except letters and digits.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scored pairs a candidate with its match evidence.
type scored struct {
	candidate Candidate
	score     int
	signals   []string
}

// scoreCandidates runs the keyword inference pass: +3 for a full name token
// match, +2 for a name substring, +1 per distinct matching keyword. Ties are
// reported, never broken.
func scoreCandidates(text string, candidates []Candidate) Decision {
	textTokens := tokenSet(text)
	lowerText := strings.ToLower(text)

	max := 0
	var top []scored
	for _, c := range candidates {
		s := scoreCandidate(c, textTokens, lowerText)
		if s.score == 0 || s.score < max {
			continue
		}
		if s.score > max {
			max = s.score
			top = top[:0]
		}
		top = append(top, s)
	}

	if max == 0 {
		return Decision{Reason: "no confident keyword match"}
	}
	if len(top) > 1 {
		names := make([]string, len(top))
		for i, s := range top {
			names[i] = s.candidate.Name
		}
		return Decision{Reason: "multiple subagents match: " + strings.Join(names, ", ")}
	}

	best := top[0]
	return Decision{AgentName: best.candidate.Name, Reason: matchReason(best.signals)}
}

func scoreCandidate(c Candidate, textTokens map[string]bool, lowerText string) scored {
	s := scored{candidate: c}

	lowerName := strings.ToLower(c.Name)
	nameTokens := tokens(c.Name)
	if len(nameTokens) > 0 && allPresent(nameTokens, textTokens) {
		s.score += 3
		s.signals = append(s.signals, "name")
	} else if lowerName != "" && strings.Contains(lowerText, lowerName) {
		s.score += 2
		s.signals = append(s.signals, "name")
	}

	seen := make(map[string]bool)
	for _, kw := range c.Keywords {
		lowerKw := strings.ToLower(strings.TrimSpace(kw))
		if lowerKw == "" || seen[lowerKw] {
			continue
		}
		seen[lowerKw] = true

		kwTokens := tokens(lowerKw)
		if (len(kwTokens) > 0 && allPresent(kwTokens, textTokens)) || strings.Contains(lowerText, lowerKw) {
			s.score++
			s.signals = append(s.signals, fmt.Sprintf("keyword '%s'", lowerKw))
		}
	}
	return s
}

func matchReason(signals []string) string {
	return "matched " + strings.Join(signals, ", ")
}

// tokens splits on anything that is not a letter or digit and lowercases.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokens(s) {
		set[tok] = true
	}
	return set
}

func allPresent(toks []string, set map[string]bool) bool {
	for _, tok := range toks {
		if !set[tok] {
			return false
		}
	}
	return true
}
