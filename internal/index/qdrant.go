package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/quantdesk/mbsiq/internal/embedder"
)

// QdrantConfig holds connection parameters for a Qdrant-backed index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the Qdrant collection name to use.
	Collection string
	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a Qdrant instance. Rule IDs are
// mapped to stable numeric point IDs (FNV-1a of the rule ID) and carried in
// the payload, so upserting the same rule replaces its vector.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
	// emb computes vectors for both upserts and queries.
	emb embedder.Embedder
	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection
// exists (creating it with cosine distance if necessary).
func NewQdrantIndex(ctx context.Context, emb embedder.Embedder, cfg *QdrantConfig) (*QdrantIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, emb: emb, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Client exposes the underlying Qdrant client for readiness probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("index: qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// Upsert embeds text and stores the vector under a point ID derived from the
// rule ID, replacing any existing point for that rule.
func (q *QdrantIndex) Upsert(ctx context.Context, ruleID, text string) error {
	if ruleID == "" {
		return fmt.Errorf("index: qdrant: upsert: rule id must not be empty")
	}
	vecs, err := q.emb.Embed(ctx, []string{text})
	if err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(pointID(ruleID)),
		Vectors: qdrant.NewVectors(vecs[0]...),
		Payload: qdrant.NewValueMap(map[string]any{"rule_id": ruleID}),
	}
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("index: qdrant: upsert %s: %w", ruleID, err)
	}
	return nil
}

// Query embeds text, runs a Qdrant similarity query, and re-sorts the hits
// locally so the deterministic tie-break (ascending rule ID) holds no matter
// how the server orders equal scores.
func (q *QdrantIndex) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := q.emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant: query failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Payload == nil {
			continue
		}
		v, ok := h.Payload["rule_id"]
		if !ok {
			continue
		}
		results = append(results, Result{RuleID: v.GetStringValue(), Score: float64(h.Score)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RuleID < results[j].RuleID
	})
	return results, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID derives a stable numeric Qdrant point ID from a rule ID.
func pointID(ruleID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ruleID))
	return h.Sum64()
}
