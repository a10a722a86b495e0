// Package index defines the embedding index: the exclusive owner of the
// vector-to-rule-id mapping behind semantic retrieval. Two implementations
// are provided — an in-memory brute-force index (local mode and tests) and a
// Qdrant-backed index (production). Both guarantee deterministic output:
// results are ordered by descending cosine similarity with ties broken by
// ascending rule ID.
package index

import "context"

// Result is one nearest-neighbor hit.
type Result struct {
	// RuleID identifies the matched rule.
	RuleID string
	// Score is the cosine similarity in [-1, 1] (in practice [0, 1] for
	// non-negative embeddings).
	Score float64
}

// Index maps rule text to vector embeddings and supports nearest-neighbor
// search. Implementations must be safe to call from multiple goroutines, and
// must propagate embedding failures (as *embedder.Error) rather than
// swallowing them so the retrieval engine can fall back to keyword-only mode.
type Index interface {
	// Upsert embeds text and stores (or replaces) the vector for ruleID.
	Upsert(ctx context.Context, ruleID, text string) error

	// Query embeds text and returns up to k results ordered by descending
	// score, ties broken by ascending rule ID. An empty index yields an
	// empty result, not an error.
	Query(ctx context.Context, text string, k int) ([]Result, error)

	// Close releases any resources held by the index.
	Close() error
}
