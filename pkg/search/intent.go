package search

import (
	"regexp"
	"strings"
)

// Intent is a coarse classification of what a query is looking for, used to
// bias fusion and secondary scoring weights.
type Intent string

const (
	// IntentEntity: the query names a thing — a path, an identifier, a file.
	IntentEntity Intent = "entity"

	// IntentTemporal: the query asks about recency or change.
	IntentTemporal Intent = "temporal"

	// IntentRelationship: the query asks how things connect.
	IntentRelationship Intent = "relationship"

	// IntentAspect: the query names a convention or category domain.
	IntentAspect Intent = "aspect"

	// IntentExploratory: broad question-shaped queries, the fallback.
	IntentExploratory Intent = "exploratory"
)

// Intents is the fixed intent set.
var Intents = []Intent{IntentEntity, IntentTemporal, IntentRelationship, IntentAspect, IntentExploratory}

// Classification is the per-query result. Produced fresh per query, never
// persisted.
type Classification struct {
	Intent         Intent   `json:"intent"`
	Confidence     float64  `json:"confidence"`
	Terms          []string `json:"terms"`
	SuggestedTypes []string `json:"suggested_types,omitempty"`
}

// Weights biases the caller's final ordering per intent. The re-weighting
// itself happens outside this engine.
type Weights struct {
	FTSBoost      float64 `json:"fts_boost"`
	VectorBoost   float64 `json:"vector_boost"`
	RecencyBoost  float64 `json:"recency_boost"`
	PriorityBoost float64 `json:"priority_boost"`
	GraphBoost    float64 `json:"graph_boost"`
}

var intentWeights = map[Intent]Weights{
	IntentEntity:       {FTSBoost: 1.5, VectorBoost: 0.8, RecencyBoost: 1.0, PriorityBoost: 1.0, GraphBoost: 0.5},
	IntentTemporal:     {FTSBoost: 1.0, VectorBoost: 1.0, RecencyBoost: 2.0, PriorityBoost: 1.0, GraphBoost: 0.3},
	IntentRelationship: {FTSBoost: 0.8, VectorBoost: 1.2, RecencyBoost: 1.0, PriorityBoost: 1.0, GraphBoost: 1.5},
	IntentAspect:       {FTSBoost: 1.0, VectorBoost: 1.2, RecencyBoost: 1.0, PriorityBoost: 1.5, GraphBoost: 0.5},
	IntentExploratory:  {FTSBoost: 0.8, VectorBoost: 1.5, RecencyBoost: 1.0, PriorityBoost: 1.0, GraphBoost: 0.8},
}

// WeightsFor looks up the weighting profile for an intent. Unknown intents
// get the exploratory profile.
func WeightsFor(intent Intent) Weights {
	if w, ok := intentWeights[intent]; ok {
		return w
	}
	return intentWeights[IntentExploratory]
}

// Rule patterns, checked in priority order; the first matching intent wins.
var (
	pascalCasePattern = regexp.MustCompile(`^[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+$`)
	snakeCasePattern  = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)+$`)
	fileExtPattern    = regexp.MustCompile(`(?i)\.(go|ts|tsx|js|jsx|py|rb|rs|java|kt|c|h|cpp|css|html|md|json|yaml|yml|toml|sql|sh|proto)\b`)

	temporalPattern = regexp.MustCompile(`(?i)\b(recent(ly)?|latest|newest|yesterday|changed|updated|last\s+(week|month|sprint|few\s+days)|this\s+week)\b`)

	relationshipPattern = regexp.MustCompile(`(?i)\b(related\s+to|relates\s+to|depends?\s+on|dependenc(y|ies)|connected\s+to|linked\s+to|references|refers\s+to)\b`)

	aspectPattern = regexp.MustCompile(`(?i)\b(testing|tests?\s+conventions?|conventions?|coding\s+style|style\s+guide|best\s+practices?|patterns?|standards?|guidelines?|naming|approach(es)?)\b`)

	questionPattern = regexp.MustCompile(`(?i)^(how|what|why|where|when|which|who|is|are|can|could|should|does|do)\b`)
)

// memoryTypeLabels are the category labels a query can literally suggest.
var memoryTypeLabels = []string{
	"decision", "convention", "pattern", "preference",
	"architecture", "reference", "snippet", "todo",
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "for": true, "about": true,
	"of": true, "in": true, "on": true, "to": true, "and": true,
	"or": true, "with": true, "is": true, "are": true, "was": true,
	"what": true, "how": true, "why": true, "where": true, "when": true,
	"which": true, "who": true, "does": true, "do": true, "my": true,
	"our": true, "their": true, "this": true, "that": true,
}

var termSplitPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// Classify assigns the query to one intent, rule by rule in priority order.
func Classify(query string) Classification {
	trimmed := strings.TrimSpace(query)

	result := Classification{
		Intent:         IntentExploratory,
		Confidence:     0.5,
		Terms:          extractTerms(trimmed),
		SuggestedTypes: suggestedTypes(trimmed),
	}
	if trimmed == "" {
		return result
	}

	if conf, ok := entityConfidence(trimmed); ok {
		result.Intent = IntentEntity
		result.Confidence = conf
		return result
	}
	if temporalPattern.MatchString(trimmed) {
		result.Intent = IntentTemporal
		result.Confidence = 0.8
		return result
	}
	if relationshipPattern.MatchString(trimmed) {
		result.Intent = IntentRelationship
		result.Confidence = 0.8
		return result
	}
	if aspectPattern.MatchString(trimmed) {
		result.Intent = IntentAspect
		result.Confidence = 0.7
		return result
	}

	return result
}

// entityConfidence checks the identifier-shaped cues: path separators,
// Pascal/snake case tokens, file extensions, or a short query that isn't a
// question.
func entityConfidence(query string) (float64, bool) {
	if strings.ContainsAny(query, "/\\") {
		return 0.9, true
	}
	if fileExtPattern.MatchString(query) {
		return 0.9, true
	}

	words := strings.Fields(query)
	for _, w := range words {
		if pascalCasePattern.MatchString(w) || snakeCasePattern.MatchString(w) {
			return 0.85, true
		}
	}

	if len(words) <= 2 && !strings.Contains(query, "?") && !questionPattern.MatchString(query) {
		return 0.7, true
	}

	return 0, false
}

// extractTerms normalizes the query into lowercase terms for downstream
// re-use: word split, stopword removal, order-preserving dedupe.
func extractTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)

	for _, t := range termSplitPattern.Split(strings.ToLower(query), -1) {
		if len(t) < 2 || stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// suggestedTypes flags known category labels literally present in the query.
func suggestedTypes(query string) []string {
	lower := strings.ToLower(query)
	var types []string
	for _, label := range memoryTypeLabels {
		if strings.Contains(lower, label) {
			types = append(types, label)
		}
	}
	return types
}
