package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when no rule has the requested ID.
var ErrNotFound = errors.New("rules: rule not found")

// ErrDuplicate is returned by Add when a rule ID is reused.
var ErrDuplicate = errors.New("rules: duplicate rule id")

// Upserter is the slice of the embedding index the store needs: every rule
// added to the store is synchronously upserted so the two never diverge.
// *index.MemoryIndex and *index.QdrantIndex satisfy it.
type Upserter interface {
	// Upsert computes and stores the embedding for the rule's text.
	Upsert(ctx context.Context, ruleID, text string) error
}

// Store is the in-memory, append-only rule corpus. All methods are safe for
// concurrent use; writes are serialized so the store/index pairing invariant
// holds even under concurrent Add calls.
type Store struct {
	mu sync.RWMutex
	// byID maps rule ID to its position in order.
	byID map[string]int
	// order holds rules in insertion order (oldest first).
	order []BusinessRule
	// index receives a synchronous upsert for every add/update.
	index Upserter
	// seq is the counter behind NextID.
	seq int
}

// NewStore constructs an empty Store wired to the given embedding index.
func NewStore(index Upserter) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("rules: index must not be nil")
	}
	return &Store{byID: make(map[string]int), index: index}, nil
}

// NextID returns the next versioned rule ID in the "rule_NNN" sequence.
func (s *Store) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

// nextIDLocked advances the ID sequence. Caller holds mu.
func (s *Store) nextIDLocked() string {
	s.seq++
	return fmt.Sprintf("rule_%03d", s.seq)
}

// Add inserts a rule and synchronously upserts its embedding. If the index
// upsert fails the rule is not added, so the store and index stay paired.
// Returns ErrDuplicate if the ID is already present.
func (s *Store) Add(ctx context.Context, rule BusinessRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rules: add: id must not be empty")
	}
	if rule.Text == "" {
		return fmt.Errorf("rules: add: text must not be empty")
	}
	if !categories[rule.Category] {
		return fmt.Errorf("rules: add: unknown category %q", rule.Category)
	}
	rule.Keywords = NormalizeKeywords(rule.Keywords)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(ctx, rule)
}

// insertLocked performs the duplicate check, index upsert, and append.
// Caller holds mu.
func (s *Store) insertLocked(ctx context.Context, rule BusinessRule) error {
	if _, ok := s.byID[rule.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, rule.ID)
	}
	// Index first: an indexed-but-unstored rule is unreachable and harmless
	// on retry, whereas a stored-but-unindexed rule breaks retrieval.
	if err := s.index.Upsert(ctx, rule.ID, rule.Text); err != nil {
		return fmt.Errorf("rules: add %s: index upsert: %w", rule.ID, err)
	}
	s.byID[rule.ID] = len(s.order)
	s.order = append(s.order, rule)
	return nil
}

// AddNew validates the inputs, assigns the next free versioned ID, and adds
// the rule. This is the path behind the add-rule API operation. ID assignment
// and insertion happen under one lock, so a concurrent explicit Add can never
// claim the assigned ID in between and AddNew never reports ErrDuplicate.
func (s *Store) AddNew(ctx context.Context, text string, category Category, keywords []string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("rules: add: text must not be empty")
	}
	if !categories[category] {
		return "", fmt.Errorf("rules: add: unknown category %q", category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Skip over IDs already claimed by explicitly-added rules.
	id := s.nextIDLocked()
	for _, taken := s.byID[id]; taken; _, taken = s.byID[id] {
		id = s.nextIDLocked()
	}
	rule := BusinessRule{ID: id, Text: text, Category: category, Keywords: NormalizeKeywords(keywords)}
	if err := s.insertLocked(ctx, rule); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces the text of an existing rule and re-upserts its embedding,
// keeping vector and text consistent. Category and keywords are unchanged.
func (s *Store) Update(ctx context.Context, id, text string) error {
	if text == "" {
		return fmt.Errorf("rules: update %s: text must not be empty", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.index.Upsert(ctx, id, text); err != nil {
		return fmt.Errorf("rules: update %s: index upsert: %w", id, err)
	}
	s.order[pos].Text = text
	return nil
}

// Get returns the rule with the given ID, or ErrNotFound.
func (s *Store) Get(id string) (BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.byID[id]
	if !ok {
		return BusinessRule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.order[pos], nil
}

// ListByCategory returns all rules in the category, oldest first.
func (s *Store) ListByCategory(c Category) []BusinessRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []BusinessRule
	for _, r := range s.order {
		if r.Category == c {
			out = append(out, r)
		}
	}
	return out
}

// RecentByCategory returns up to n rules in the category, newest first.
// Used by the retrieval engine's degraded-mode fallback.
func (s *Store) RecentByCategory(c Category, n int) []BusinessRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []BusinessRule
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		if s.order[i].Category == c {
			out = append(out, s.order[i])
		}
	}
	return out
}

// All returns a snapshot of every rule in insertion order.
func (s *Store) All() []BusinessRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BusinessRule, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of rules in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
