package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantdesk/mbsiq/internal/logging"
	"github.com/quantdesk/mbsiq/internal/store"
)

// NewSeedCmd constructs the `mbsiq seed` command, which loads the sample
// market data set into the local store.
func NewSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample market data into the local store",
		Long: `Load the sample market data set — agency pools with two years of factor
history plus current TBA quotes — into the local SQLite store.

Seeding is idempotent: rerunning restates the same pools and securities.

Examples:
  mbsiq seed
  MBSIQ_MARKET_DB=/tmp/market.db mbsiq seed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			market, err := openMarketStore(log)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if market == nil {
				return fmt.Errorf("seed: market data is disabled (MBSIQ_MARKET_DB=disabled)")
			}
			defer func() { _ = market.Close() }()

			if err := store.Seed(ctx, market, time.Now().UTC()); err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			pools, err := market.Pools(ctx)
			if err != nil {
				return fmt.Errorf("seed: verify pools: %w", err)
			}
			secs, err := market.TBASecurities(ctx)
			if err != nil {
				return fmt.Errorf("seed: verify tba: %w", err)
			}

			fmt.Printf("Seeded %d pools and %d TBA securities.\n", len(pools), len(secs))
			return nil
		},
	}
}
