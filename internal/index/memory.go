package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/quantdesk/mbsiq/internal/embedder"
)

// MemoryIndex is an in-memory Index using brute-force cosine similarity.
// It is the default backend: the rule corpus is small (tens of rules), so a
// linear scan is cheaper than maintaining an ANN structure, and it gives the
// exact, reproducible ordering the retrieval contract requires.
type MemoryIndex struct {
	mu sync.RWMutex
	// emb computes vectors for both upserts and queries.
	emb embedder.Embedder
	// vectors maps rule ID to its embedding.
	vectors map[string][]float32
	// dimensions is fixed by the first upsert; later vectors must match.
	dimensions int
}

// NewMemoryIndex constructs an empty MemoryIndex over the given embedder.
func NewMemoryIndex(emb embedder.Embedder) (*MemoryIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	return &MemoryIndex{emb: emb, vectors: make(map[string][]float32)}, nil
}

// Upsert embeds text and stores the vector for ruleID, replacing any
// previous vector. The first upsert fixes the index dimensionality.
func (m *MemoryIndex) Upsert(ctx context.Context, ruleID, text string) error {
	if ruleID == "" {
		return fmt.Errorf("index: upsert: rule id must not be empty")
	}
	vecs, err := m.emb.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	vec := vecs[0]

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		m.dimensions = len(vec)
	} else if len(vec) != m.dimensions {
		return fmt.Errorf("index: upsert %s: vector dimension %d does not match index dimension %d", ruleID, len(vec), m.dimensions)
	}
	m.vectors[ruleID] = vec
	return nil
}

// Query embeds text and scans all stored vectors, returning up to k results
// by descending cosine similarity, ties broken by ascending rule ID.
func (m *MemoryIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := m.emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	query := vecs[0]

	m.mu.RLock()
	results := make([]Result, 0, len(m.vectors))
	for id, vec := range m.vectors {
		results = append(results, Result{RuleID: id, Score: cosineSimilarity(query, vec)})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RuleID < results[j].RuleID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error { return nil }

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
