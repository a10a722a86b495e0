package retrieval

import (
	"context"
	"testing"

	"github.com/quantdesk/mbsiq/internal/embedder"
	"github.com/quantdesk/mbsiq/internal/index"
	"github.com/quantdesk/mbsiq/internal/rules"
)

// failingIndex simulates an unreachable embedding index.
type failingIndex struct{}

func (failingIndex) Upsert(context.Context, string, string) error { return nil }
func (failingIndex) Query(context.Context, string, int) ([]index.Result, error) {
	return nil, &embedder.Error{Backend: "ollama", Err: context.DeadlineExceeded}
}
func (failingIndex) Close() error { return nil }

// newTestEngine builds a store + memory index + engine over the hash embedder.
func newTestEngine(t *testing.T) (*Engine, *rules.Store) {
	t.Helper()
	idx, err := index.NewMemoryIndex(embedder.NewHashEmbedder(0))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	store, err := rules.NewStore(idx)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	eng, err := NewEngine(store, idx, Config{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng, store
}

func addRule(t *testing.T, store *rules.Store, id, text string, cat rules.Category, keywords ...string) {
	t.Helper()
	err := store.Add(context.Background(), rules.BusinessRule{
		ID: id, Text: text, Category: cat, Keywords: keywords,
	})
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func Test_Retrieve_KeywordMatchOutranksUnrelated(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	addRule(t, store, "rule_001", "CPR and SMM measure prepayment speeds for mortgage pools.", rules.CategoryPrepayment, "cpr", "smm")
	addRule(t, store, "rule_002", "TBA trades settle on agency-specific good-delivery dates.", rules.CategoryTBA, "agency")

	got, err := eng.Retrieve(context.Background(), "What is CPR and SMM conversion?", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rules, got %d", len(got))
	}
	if got[0].Rule.ID != "rule_001" {
		t.Errorf("want rule_001 ranked first, got %s (scores %v)", got[0].Rule.ID, got)
	}
}

func Test_Retrieve_Deterministic(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	addRule(t, store, "rule_001", "Pool factor is the ratio of current to original balance.", rules.CategoryPoolFactor, "pool factor", "ratio")
	addRule(t, store, "rule_002", "WAC is the weighted average coupon of a pool.", rules.CategoryPerformance, "wac", "coupon")
	addRule(t, store, "rule_003", "PSA is the standard prepayment ramp benchmark.", rules.CategoryPrepayment, "psa", "prepayment")

	first, err := eng.Retrieve(context.Background(), "how does the pool factor relate to prepayment", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	second, err := eng.Retrieve(context.Background(), "how does the pool factor relate to prepayment", 3)
	if err != nil {
		t.Fatalf("retrieve again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Rule.ID != second[i].Rule.ID || first[i].Score != second[i].Score {
			t.Errorf("run %d differs: %s/%v vs %s/%v", i, first[i].Rule.ID, first[i].Score, second[i].Rule.ID, second[i].Score)
		}
	}
}

func Test_Retrieve_EmptyCorpus(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)
	got, err := eng.Retrieve(context.Background(), "anything at all", 3)
	if err != nil {
		t.Fatalf("retrieve on empty corpus: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty result, got %d", len(got))
	}
}

func Test_Retrieve_TopKBound(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	for i, id := range []string{"rule_001", "rule_002", "rule_003", "rule_004", "rule_005"} {
		addRule(t, store, id, "mortgage pool rule variant", rules.CategoryPoolFactor, "pool")
		_ = i
	}
	got, err := eng.Retrieve(context.Background(), "mortgage pool", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("want 2 results, got %d", len(got))
	}
}

func Test_Retrieve_DegradedKeywordOnly(t *testing.T) {
	t.Parallel()
	// Store wired to a working index for adds, engine wired to a failing one
	// so only the query path degrades.
	goodIdx, err := index.NewMemoryIndex(embedder.NewHashEmbedder(0))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	store, err := rules.NewStore(goodIdx)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	addRule(t, store, "rule_001", "CPR measures annual prepayment.", rules.CategoryPrepayment, "cpr")
	addRule(t, store, "rule_002", "TBA basics.", rules.CategoryTBA, "tba")

	eng, err := NewEngine(store, failingIndex{}, Config{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	got, err := eng.Retrieve(context.Background(), "what is cpr", 2)
	if err != nil {
		t.Fatalf("degraded retrieve must not fail: %v", err)
	}
	if len(got) == 0 || got[0].Rule.ID != "rule_001" {
		t.Fatalf("want rule_001 first from keyword-only ranking, got %v", got)
	}
	if got[0].Semantic != 0 {
		t.Errorf("degraded mode must not carry semantic scores, got %v", got[0].Semantic)
	}
}

func Test_Retrieve_DegradedCategoryFallback(t *testing.T) {
	t.Parallel()
	goodIdx, err := index.NewMemoryIndex(embedder.NewHashEmbedder(0))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	store, err := rules.NewStore(goodIdx)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	addRule(t, store, "rule_001", "Older TBA rule.", rules.CategoryTBA, "roll")
	addRule(t, store, "rule_002", "Newer TBA rule.", rules.CategoryTBA, "exposure")
	addRule(t, store, "rule_003", "Prepayment rule.", rules.CategoryPrepayment, "cpr")

	eng, err := NewEngine(store, failingIndex{}, Config{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	// No keyword overlap ("securities" matches nothing), index down, but the
	// question names TBA — fallback must return recent TBA rules.
	got, err := eng.Retrieve(context.Background(), "tell me about tba securities", 2)
	if err != nil {
		t.Fatalf("fallback retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 fallback rules, got %d", len(got))
	}
	if got[0].Rule.ID != "rule_002" || got[1].Rule.ID != "rule_001" {
		t.Errorf("want newest-first TBA rules, got %s then %s", got[0].Rule.ID, got[1].Rule.ID)
	}
}

func Test_GuessCategory(t *testing.T) {
	t.Parallel()
	cases := []struct {
		question string
		want     rules.Category
		ok       bool
	}{
		{"What is a TBA trade?", rules.CategoryTBA, true},
		{"show me the pool factor trend", rules.CategoryPoolFactor, true},
		{"compare CPR across pools", rules.CategoryPrepayment, true},
		{"FNMA vs GNMA spreads", rules.CategoryAgency, true},
		{"what is the yield and duration", rules.CategoryPerformance, true},
		{"hello there", rules.CategoryCustom, false},
	}
	for _, tc := range cases {
		got, ok := GuessCategory(tc.question)
		if got != tc.want || ok != tc.ok {
			t.Errorf("GuessCategory(%q) = %v/%v, want %v/%v", tc.question, got, ok, tc.want, tc.ok)
		}
	}
}
