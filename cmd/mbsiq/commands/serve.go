package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quantdesk/mbsiq/internal/embedder"
	"github.com/quantdesk/mbsiq/internal/logging"
	"github.com/quantdesk/mbsiq/internal/retrieval"
	"github.com/quantdesk/mbsiq/internal/server"
)

// NewServeCmd constructs the `mbsiq serve` command, which starts the HTTP
// server exposing retrieval and analytics over REST.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MBS-IQ HTTP server",
		Long: `Start the MBS-IQ HTTP server on localhost.

The server exposes the question endpoint (POST /api/ask), rule management
(POST /api/rules), and the portfolio and TBA analytics reports, plus
Prometheus metrics on /metrics.

Examples:
  mbsiq serve
  mbsiq serve --port 9090
  EMBEDDING_PROVIDER=ollama mbsiq serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("embedding_provider", embedder.Backend()))

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			idx, closeIndex, err := buildIndex(ctx, emb, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeIndex()

			ruleStore, err := buildCorpus(ctx, idx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("rule corpus loaded", slog.Int("rules", ruleStore.Len()))

			engine, err := retrieval.NewEngine(ruleStore, idx, retrievalConfig())
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			market, err := openMarketStore(log)
			if err != nil {
				log.Warn("market data unavailable, running rules-only", slog.Any("error", err))
			}

			var marketData server.MarketData
			if market != nil {
				defer func() { _ = market.Close() }()
				marketData = market
			}

			srv, err := server.New(engine, ruleStore, analyticsEngine(), marketData, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(idx, emb),
				RateLimit: envFloat("MBSIQ_RATE_LIMIT_RPS", 0),
				RateBurst: envInt("MBSIQ_RATE_LIMIT_BURST", 0),
				APIKey:    os.Getenv("MBSIQ_API_KEY"),
			}, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8085, "TCP port to listen on")

	return cmd
}
