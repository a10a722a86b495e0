package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the local hashing embedder.
// Small enough to keep brute-force cosine search cheap over a corpus of a
// few hundred rules.
const DefaultHashDimensions = 256

// HashEmbedder is a deterministic local embedder using signed feature
// hashing: each token is hashed into a fixed-size vector with a ±1 sign, and
// the result is L2-normalized. No vocabulary or external model is needed, so
// identical text always produces identical vectors — the property the
// retrieval determinism tests depend on.
type HashEmbedder struct {
	// dimensions is the output vector length.
	dimensions int
}

// NewHashEmbedder constructs a HashEmbedder. dimensions <= 0 selects
// DefaultHashDimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Dimensions returns the output vector length.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// Embed converts each text into a hashed, L2-normalized vector. An empty
// text yields an *Error wrapping ErrEmptyText.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, wrapErr("hash", ErrEmptyText)
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

// embedOne hashes unigrams and adjacent-token bigrams into the vector.
// Bigrams let short phrases like "pool factor" carry shared signal beyond
// their individual tokens.
func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimensions)
	tokens := hashTokenize(text)
	for i, tok := range tokens {
		addFeature(vec, tok)
		if i+1 < len(tokens) {
			addFeature(vec, tok+" "+tokens[i+1])
		}
	}
	l2Normalize(vec)
	return vec
}

// addFeature accumulates a single hashed feature into vec with a ±1 sign.
func addFeature(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(len(vec))
	if (sum>>32)&1 == 1 {
		vec[bucket]++
	} else {
		vec[bucket]--
	}
}

// hashTokenize lowercases and splits on anything that is not a letter or
// digit. Kept local so the embedder has no dependency on the rule corpus.
func hashTokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// l2Normalize scales vec to unit length. A zero vector is left unchanged.
func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
