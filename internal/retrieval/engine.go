// Package retrieval ranks business rules against a free-text question by
// blending semantic similarity from the embedding index with keyword-overlap
// scores from each rule's keyword set. Retrieval never hard-fails on an
// embedding outage: it degrades to keyword-only ranking, and past that to a
// category-lexicon fallback, because a reasonable answer beats a refusal.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quantdesk/mbsiq/internal/index"
	"github.com/quantdesk/mbsiq/internal/logging"
	"github.com/quantdesk/mbsiq/internal/rules"
)

// DefaultAlpha is the documented default semantic/keyword blend weight.
// Semantic-dominant: ties lean toward keyword-rich rules.
const DefaultAlpha = 0.7

// DefaultTopK is the result count when the caller passes topK <= 0.
const DefaultTopK = 3

// candidateFactor scales topK into the semantic candidate set size, bounding
// worst-case retrieval cost.
const candidateFactor = 3

// Config holds the retrieval knobs.
type Config struct {
	// Alpha is the semantic/keyword blend weight in [0, 1].
	// Combined score = Alpha*semantic + (1-Alpha)*keyword.
	Alpha float64
	// DefaultTopK is the result count when Retrieve is called with topK <= 0.
	DefaultTopK int
}

// ScoredRule is one ranked retrieval result.
type ScoredRule struct {
	// Rule is the matched business rule.
	Rule rules.BusinessRule `json:"rule"`
	// Score is the combined ranking score.
	Score float64 `json:"score"`
	// Semantic is the cosine-similarity component (0 in degraded mode).
	Semantic float64 `json:"semantic"`
	// Keyword is the keyword-overlap component.
	Keyword float64 `json:"keyword"`
}

// Engine is the retrieval entry point. It is a pure function of the corpus,
// configuration, and question: identical inputs always produce identical
// ranked output.
type Engine struct {
	// store is the rule corpus.
	store *rules.Store
	// idx is the embedding index queried for semantic candidates.
	idx index.Index
	// alpha is the semantic/keyword blend weight.
	alpha float64
	// defaultTopK is the fallback result count.
	defaultTopK int
}

// NewEngine constructs an Engine over the given store and index.
func NewEngine(store *rules.Store, idx index.Index, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("retrieval: index must not be nil")
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return nil, fmt.Errorf("retrieval: alpha %v must be in [0,1]", cfg.Alpha)
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	return &Engine{store: store, idx: idx, alpha: cfg.Alpha, defaultTopK: cfg.DefaultTopK}, nil
}

// Retrieve returns the topK rules ranked by combined score for the question.
// An empty corpus returns an empty result and nil error. Embedding-index
// failures degrade to keyword-only ranking; if the question also has no
// keyword overlap, the most recently added rules of the lexicon-guessed
// category are returned.
func (e *Engine) Retrieve(ctx context.Context, question string, topK int) ([]ScoredRule, error) {
	if topK <= 0 {
		topK = e.defaultTopK
	}

	corpus := e.store.All()
	if len(corpus) == 0 {
		return nil, nil
	}

	questionTokens := tokenSet(rules.Tokenize(question))

	// Semantic candidates. Any index failure — embedder down, Qdrant
	// unreachable — switches to degraded keyword-only ranking.
	semantic := make(map[string]float64)
	degraded := false
	hits, err := e.idx.Query(ctx, question, candidateFactor*topK)
	if err != nil {
		degraded = true
		logging.FromContext(ctx).Warn("retrieval: semantic search unavailable, using keyword-only ranking",
			slog.Any("error", err),
		)
	} else {
		for _, h := range hits {
			semantic[h.RuleID] = h.Score
		}
	}

	scored := make([]ScoredRule, 0, len(corpus))
	keywordHits := false
	for _, r := range corpus {
		kw := keywordScore(questionTokens, r.Keywords)
		if kw > 0 {
			keywordHits = true
		}
		sem := semantic[r.ID]
		combined := e.alpha*sem + (1-e.alpha)*kw
		if degraded {
			combined = kw
		}
		scored = append(scored, ScoredRule{Rule: r, Score: combined, Semantic: sem, Keyword: kw})
	}

	if degraded && !keywordHits {
		return e.categoryFallback(question, topK), nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Rule.ID < scored[j].Rule.ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// categoryFallback is the last-resort degraded path: guess a category from
// the question via the lexicon and return its most recently added rules.
func (e *Engine) categoryFallback(question string, topK int) []ScoredRule {
	cat, ok := GuessCategory(question)
	if !ok {
		cat = rules.CategoryCustom
	}
	recent := e.store.RecentByCategory(cat, topK)
	out := make([]ScoredRule, 0, len(recent))
	for _, r := range recent {
		out = append(out, ScoredRule{Rule: r})
	}
	return out
}

// keywordScore is |question tokens ∩ rule keywords| / |rule keywords|,
// or 0 for a rule with no keywords.
func keywordScore(questionTokens map[string]bool, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if questionTokens[kw] {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// tokenSet converts a token slice into a membership set.
func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
