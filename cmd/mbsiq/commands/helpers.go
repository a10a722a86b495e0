package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/quantdesk/mbsiq/internal/analytics"
	"github.com/quantdesk/mbsiq/internal/embedder"
	"github.com/quantdesk/mbsiq/internal/index"
	"github.com/quantdesk/mbsiq/internal/retrieval"
	"github.com/quantdesk/mbsiq/internal/rules"
	"github.com/quantdesk/mbsiq/internal/server"
	"github.com/quantdesk/mbsiq/internal/store"
)

// defaultQdrantCollection is the collection name used when QDRANT_COLLECTION
// is unset.
const defaultQdrantCollection = "mbs-rules"

// buildIndex constructs the embedding index: Qdrant when QDRANT_HOST is set,
// the in-process memory index otherwise. The returned close function releases
// index resources and must be called on shutdown.
func buildIndex(ctx context.Context, emb embedder.Embedder, log *slog.Logger) (index.Index, func(), error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		log.Info("index: using in-process memory index", slog.String("reason", "QDRANT_HOST not set"))
		idx, err := index.NewMemoryIndex(emb)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { _ = idx.Close() }, nil
	}

	backend := embedder.Backend()
	qdx, err := index.NewQdrantIndex(ctx, emb, &index.QdrantConfig{
		Host:       host,
		Port:       envInt("QDRANT_PORT", 6334),
		Collection: envOrDefault("QDRANT_COLLECTION", defaultQdrantCollection),
		VectorSize: uint64(embedder.DefaultDimensions(backend)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant index: %w", err)
	}
	log.Info("index: using qdrant",
		slog.String("host", host),
		slog.String("collection", envOrDefault("QDRANT_COLLECTION", defaultQdrantCollection)),
	)
	return qdx, func() { _ = qdx.Close() }, nil
}

// buildCorpus constructs the rule store over idx and loads the seed corpus so
// every session starts with the baseline MBS rules.
func buildCorpus(ctx context.Context, idx index.Index) (*rules.Store, error) {
	ruleStore, err := rules.NewStore(idx)
	if err != nil {
		return nil, err
	}
	if err := rules.Seed(ctx, ruleStore); err != nil {
		return nil, fmt.Errorf("seed rule corpus: %w", err)
	}
	return ruleStore, nil
}

// retrievalConfig resolves the hybrid ranking knobs from the environment.
func retrievalConfig() retrieval.Config {
	return retrieval.Config{
		Alpha:       envFloat("RETRIEVAL_ALPHA", 0),
		DefaultTopK: envInt("RETRIEVAL_TOP_K", 0),
	}
}

// analyticsEngine constructs the portfolio analytics engine from the
// environment.
func analyticsEngine() *analytics.Engine {
	return analytics.NewEngine(analytics.Config{
		AnomalyTolerance: envFloat("ANALYTICS_ANOMALY_TOLERANCE", 0),
	})
}

// openMarketStore opens the SQLite market-data store. MBSIQ_MARKET_DB
// overrides the default path (~/.mbsiq/market.db); "disabled" returns nil so
// the caller runs rules-only.
func openMarketStore(log *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := os.Getenv("MBSIQ_MARKET_DB")
	if dbPath == "disabled" {
		log.Info("market data: disabled via MBSIQ_MARKET_DB=disabled")
		return nil, nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open market store %s: %w", dbPath, err)
	}
	log.Info("market data: store opened", slog.String("path", dbPath))
	return s, nil
}

// buildPingers assembles the readiness probes for the wired dependencies.
// The memory index carries no external dependency, so only remote backends
// contribute probes.
func buildPingers(idx index.Index, emb embedder.Embedder) []server.Pinger {
	var pingers []server.Pinger
	if qdx, ok := idx.(*index.QdrantIndex); ok {
		pingers = append(pingers, server.NewQdrantPinger(qdx.Client()))
	}
	if backend := embedder.Backend(); backend != "local" && backend != "hash" {
		pingers = append(pingers, server.NewEmbedderPinger(emb, backend))
	}
	return pingers
}

// envOrDefault returns the named env var or fallback when unset.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the named env var parsed as an int, or fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envFloat returns the named env var parsed as a float64, or fallback.
func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
