// Package intent routes a user utterance to one of the three conversation
// paths: chat-history recall, recommendation, or general chat.
package intent

import "strings"

// Route names a conversation path.
type Route string

const (
	RouteHistory        Route = "chat-history"
	RouteRecommendation Route = "recommendation"
	RouteGeneral        Route = "general"
)

// Result is one classification outcome.
type Result struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`
}

// The precedence below is a contract, not an accident: a history keyword wins
// unconditionally, so "what did you recommend last time" routes to history
// despite the recommendation keyword.
var historyKeywords = []string{
	"do you remember",
	"what did i",
	"what did you",
	"last time",
	"previously",
	"earlier you said",
	"we talked about",
	"you mentioned",
	"my history",
	"past conversation",
}

var recommendationKeywords = []string{
	"recommend",
	"suggestion",
	"suggest",
	"similar to",
	"similar",
	"like this",
	"find me",
	"find",
	"looking for",
	"show me",
	"restaurant",
	"movie",
	"film",
	"book",
	"artist",
	"band",
	"brand",
	"podcast",
	"tv show",
	"video game",
	"place to",
	"places",
	"bars",
	"cafes",
	"travel",
	"destination",
}

var generalKeywords = []string{
	"hello",
	"hi there",
	"hey",
	"thanks",
	"thank you",
	"how are you",
	"who are you",
	"what can you do",
	"help",
	"good morning",
	"good evening",
	"bye",
	"goodbye",
}

// Classify maps free text to a route. Pure function of its input.
func Classify(text string) Result {
	lower := strings.ToLower(text)

	if containsAny(lower, historyKeywords) {
		return Result{Route: RouteHistory, Confidence: 0.9}
	}

	hasRecommendation := containsAny(lower, recommendationKeywords)
	hasGeneral := containsAny(lower, generalKeywords)

	if hasRecommendation && !hasGeneral {
		return Result{Route: RouteRecommendation, Confidence: 0.75}
	}

	return Result{Route: RouteGeneral, Confidence: 0.5}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
