package index

import (
	"context"
	"errors"
	"testing"

	"github.com/quantdesk/mbsiq/internal/embedder"
)

// newTestIndex returns a MemoryIndex over the deterministic hash embedder.
func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(embedder.NewHashEmbedder(0))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}

func Test_MemoryIndex_QueryOrdering(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()

	seed := map[string]string{
		"rule_001": "CPR conditional prepayment rate measures annual prepayment",
		"rule_002": "TBA roll transactions maintain forward exposure",
		"rule_003": "SMM single monthly mortality is the monthly prepayment rate",
	}
	for id, text := range seed {
		if err := idx.Upsert(ctx, id, text); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	results, err := idx.Query(ctx, "what is the prepayment rate CPR", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not ordered by descending score: %v", results)
		}
	}
	if results[len(results)-1].RuleID != "rule_002" {
		t.Errorf("want the TBA rule ranked last, got %v", results)
	}
}

func Test_MemoryIndex_KBoundsResults(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()
	for _, id := range []string{"rule_001", "rule_002", "rule_003", "rule_004"} {
		if err := idx.Upsert(ctx, id, "pool factor balance ratio "+id); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	results, err := idx.Query(ctx, "pool factor", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("want 2 results, got %d", len(results))
	}
}

func Test_MemoryIndex_TieBreakByRuleID(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()
	// Identical text gives identical vectors, so scores tie exactly and the
	// ordering must fall back to ascending rule ID.
	for _, id := range []string{"rule_009", "rule_002", "rule_005"} {
		if err := idx.Upsert(ctx, id, "weighted average coupon of the pool"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	results, err := idx.Query(ctx, "weighted average coupon", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"rule_002", "rule_005", "rule_009"}
	for i, w := range want {
		if results[i].RuleID != w {
			t.Fatalf("tie-break order = %v, want %v", results, want)
		}
	}
}

func Test_MemoryIndex_EmptyIndex(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	results, err := idx.Query(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("want no results from an empty index, got %d", len(results))
	}
}

func Test_MemoryIndex_EmptyTextPropagates(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	_, err := idx.Query(context.Background(), "", 5)
	var embErr *embedder.Error
	if !errors.As(err, &embErr) {
		t.Fatalf("want *embedder.Error, got %v", err)
	}
}

func Test_MemoryIndex_UpsertReplaces(t *testing.T) {
	t.Parallel()
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Upsert(ctx, "rule_001", "settlement dates for TBA trades"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "rule_001", "pool factor is the balance ratio"); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	results, err := idx.Query(ctx, "pool factor balance ratio", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].RuleID != "rule_001" {
		t.Fatalf("unexpected results: %v", results)
	}
	if results[0].Score < 0.5 {
		t.Errorf("replaced vector should score high against its own text, got %v", results[0].Score)
	}
}
