// Package router implements the rule-based intent detector (C8) that picks
// a specialist agent profile before the main reason/act loop starts. It is
// a pure function over lowercased request text, evaluated in a fixed rule
// order — grounded on the sibling agent SDK's keyword-matcher subagent
// dispatch (pkg/runtime/subagents in the retrieval pack), collapsed from
// that package's dynamic priority/mutex registration down to the two fixed
// rules this runtime's design calls for.
package router

import "strings"

// Profile is the full specialist-agent record a match resolves to, so
// callers never need a second lookup by id.
type Profile struct {
	ID           string
	Name         string
	SystemPrompt string
	ToolNames    []string
}

// Match is the result of a successful route: the chosen profile and the
// human-readable reason it was chosen, logged by the "agent" event (§4.9).
type Match struct {
	Agent  Profile
	Reason string
}

var researchKeywords = []string{
	"research", "deep dive", "investigate", "find sources", "source list",
	"literature review", "background on",
}

var emailKeywords = []string{"email", "e-mail"}
var emailVerbs = []string{"draft", "reply", "respond", "compose", "write"}
var emailPhrases = []string{
	"draft a reply", "write a reply", "reply to", "write an email", "compose an email",
}

// Research is the specialist profile selected by research-intent requests.
var Research = Profile{
	ID:   "research",
	Name: "research",
	SystemPrompt: "You are a research specialist. Given a request, sketch a" +
		" structured research plan and, where possible, name concrete leads:" +
		" search terms, source types, and open questions to chase down. Be" +
		" concise and concrete.",
}

// EmailWriter is the specialist profile selected by email-intent requests.
var EmailWriter = Profile{
	ID:   "email_writer",
	Name: "email_writer",
	SystemPrompt: "You are an email-drafting specialist. Given a request," +
		" draft clear, professional email copy: a subject line and body," +
		" matching the requested tone. Do not invent factual claims not" +
		" present in the request.",
}

// Route inspects the lowercased requestText and returns the first matching
// rule, evaluated in order: research, then email. A request matching
// neither returns nil, meaning the main loop should proceed without
// synthesizing a specialist note.
func Route(requestText string) *Match {
	lower := strings.ToLower(requestText)

	for _, kw := range researchKeywords {
		if strings.Contains(lower, kw) {
			return &Match{Agent: Research, Reason: "matched research keyword: " + kw}
		}
	}

	if matchesEmail(lower) {
		return &Match{Agent: EmailWriter, Reason: "matched email intent"}
	}

	return nil
}

func matchesEmail(lower string) bool {
	for _, phrase := range emailPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	hasEmailWord := false
	for _, kw := range emailKeywords {
		if strings.Contains(lower, kw) {
			hasEmailWord = true
			break
		}
	}
	if !hasEmailWord {
		return false
	}
	for _, verb := range emailVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}
