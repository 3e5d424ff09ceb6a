// Package classify maps a user utterance to a backend route. Classification
// is a pure function over ordered keyword groups with a word-count fallback;
// it performs no I/O and holds no state.
package classify

import "strings"

// Route identifies the backend treatment for a query.
type Route string

const (
	// RouteTool targets the tool-enabled backend for queries needing current
	// information or external actions.
	RouteTool Route = "tool"
	// RouteCode targets the code/technical backend.
	RouteCode Route = "code"
	// RouteCreative targets the creative-writing backend.
	RouteCreative Route = "creative"
	// RouteExplain targets the simple-explanation backend.
	RouteExplain Route = "explain"
	// RouteComplex is the no-tools route for long, open-ended queries.
	RouteComplex Route = "complex"
	// RouteSimple is the default short-query route.
	RouteSimple Route = "simple"
)

// complexWordThreshold is the word count above which an unmatched query is
// routed to the complex backend.
const complexWordThreshold = 30

var toolKeywords = []string{
	"weather", "temperature", "forecast",
	"news", "headline", "stock", "price",
	"today", "current", "latest", "now", "recent",
	"search", "look up", "lookup", "find out",
	"time in", "date",
}

var codeKeywords = []string{
	"code", "function", "bug", "debug", "fix",
	"compile", "error", "exception", "stack trace",
	"implement", "refactor", "script", "program",
	"api", "sql", "regex", "algorithm",
}

var creativeKeywords = []string{
	"write a", "compose", "poem", "haiku", "story",
	"song", "lyrics", "creative", "imagine", "fiction",
	"brainstorm",
}

var explainKeywords = []string{
	"explain", "what is", "what are", "how does",
	"why is", "why does", "describe", "define",
	"meaning of", "eli5",
}

// currentEventsOverride sends explanation-style queries about live topics
// back to the tool route, since answering them requires fresh information.
var currentEventsOverride = []string{
	"today", "current", "latest", "now", "recent", "this week", "this year",
}

// normalize lowercases the utterance and strips punctuation so keyword
// checks match on whole words ("coding" must not trip "code").
func normalize(utterance string) (string, map[string]struct{}) {
	lowered := strings.ToLower(utterance)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		default:
			return ' '
		}
	}, lowered)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	words := map[string]struct{}{}
	for _, w := range strings.Fields(cleaned) {
		words[w] = struct{}{}
	}
	return cleaned, words
}

// matchesAny reports whether any keyword occurs in the utterance. Multi-word
// keywords match as phrases, single words as exact tokens.
func matchesAny(norm string, words map[string]struct{}, keywords []string) bool {
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(norm, kw) {
				return true
			}
			continue
		}
		if _, ok := words[kw]; ok {
			return true
		}
	}
	return false
}

// Classify returns the route for an utterance. Keyword groups are tested in
// priority order: tool-requiring, code, creative, then explanation (with a
// current-events override back to the tool route). Unmatched queries split
// on word count.
func Classify(utterance string) Route {
	norm, words := normalize(utterance)

	switch {
	case matchesAny(norm, words, toolKeywords):
		return RouteTool
	case matchesAny(norm, words, codeKeywords):
		return RouteCode
	case matchesAny(norm, words, creativeKeywords):
		return RouteCreative
	case matchesAny(norm, words, explainKeywords):
		if matchesAny(norm, words, currentEventsOverride) {
			return RouteTool
		}
		return RouteExplain
	}

	if len(strings.Fields(norm)) > complexWordThreshold {
		return RouteComplex
	}
	return RouteSimple
}
