// Package rules holds the business-rule corpus used by the retrieval engine.
// Rules are append-only: text changes go through Update (which re-embeds),
// and rules are never deleted within a session, so embedding vectors and
// rule records cannot drift apart.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Category classifies a business rule. The set is closed — ParseCategory
// rejects anything outside it.
type Category string

const (
	// CategoryTBA covers To-Be-Announced trading and pricing rules.
	CategoryTBA Category = "tba"
	// CategoryPoolFactor covers pool factor definition and analysis rules.
	CategoryPoolFactor Category = "pool_factor"
	// CategoryAgency covers agency (FNMA/FHLMC/GNMA) rules.
	CategoryAgency Category = "agency"
	// CategoryPrepayment covers CPR/SMM/PSA prepayment rules.
	CategoryPrepayment Category = "prepayment"
	// CategoryPerformance covers yield, duration, and WAC/WAM rules.
	CategoryPerformance Category = "performance"
	// CategoryCustom is for operator-added rules with no better fit.
	CategoryCustom Category = "custom"
)

// categories is the closed set of valid categories.
var categories = map[Category]bool{
	CategoryTBA:         true,
	CategoryPoolFactor:  true,
	CategoryAgency:      true,
	CategoryPrepayment:  true,
	CategoryPerformance: true,
	CategoryCustom:      true,
}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !categories[c] {
		return "", fmt.Errorf("rules: unknown category %q", s)
	}
	return c, nil
}

// BusinessRule is one immutable rule passage in the corpus.
type BusinessRule struct {
	// ID is the unique, versioned rule identifier (e.g. "rule_007").
	ID string `json:"id"`
	// Text is the rule prose that gets embedded and returned to callers.
	Text string `json:"text"`
	// Category is the rule's classification.
	Category Category `json:"category"`
	// Keywords is the normalized token set used for keyword scoring.
	// Sorted for deterministic iteration.
	Keywords []string `json:"keywords"`
}

// Tokenize lowercases s, strips punctuation, and splits it into tokens.
// It is the single normalization used for both rule keywords and questions,
// so keyword intersection is well defined.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeKeywords tokenizes each keyword phrase and returns the deduplicated,
// sorted token set. Multi-word keywords like "pool factor" contribute each of
// their tokens so question-token intersection works.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool)
	for _, kw := range keywords {
		for _, tok := range Tokenize(kw) {
			seen[tok] = true
		}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
