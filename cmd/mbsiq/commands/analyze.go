package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantdesk/mbsiq/internal/analytics"
	"github.com/quantdesk/mbsiq/internal/logging"
)

// NewAnalyzeCmd constructs the `mbsiq analyze` command, which runs the
// portfolio analytics against the local market store and prints the report.
func NewAnalyzeCmd() *cobra.Command {
	var asJSON bool
	var withSpeeds bool
	var withTBA bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the pool portfolio in the local market store",
		Long: `Analyze the pools in the local market store and print the portfolio
report: weighted WAC and WAM, per-pool health scores, coupon concentration,
and flagged prepayment anomalies.

Run 'mbsiq seed' first to load sample market data.

Examples:
  mbsiq analyze
  mbsiq analyze --speeds
  mbsiq analyze --tba --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			market, err := openMarketStore(log)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			if market == nil {
				return fmt.Errorf("analyze: market data is disabled (MBSIQ_MARKET_DB=disabled)")
			}
			defer func() { _ = market.Close() }()

			pools, err := market.Pools(ctx)
			if err != nil {
				return fmt.Errorf("analyze: load pools: %w", err)
			}
			report, err := analyticsEngine().AnalyzePortfolio(pools)
			if err != nil {
				if errors.Is(err, analytics.ErrEmptyPortfolio) {
					return fmt.Errorf("analyze: no pool data loaded — run 'mbsiq seed' first")
				}
				return fmt.Errorf("analyze: %w", err)
			}

			out := analyzeOutput{Portfolio: report}

			if withSpeeds {
				for _, p := range pools {
					speed, err := analytics.SpeedFromHistory(p.PoolID, p.History)
					if err != nil {
						continue
					}
					out.Speeds = append(out.Speeds, *speed)
				}
				sort.Slice(out.Speeds, func(i, j int) bool {
					return out.Speeds[i].PoolID < out.Speeds[j].PoolID
				})
			}

			if withTBA {
				secs, err := market.TBASecurities(ctx)
				if err != nil {
					return fmt.Errorf("analyze: load tba: %w", err)
				}
				summary, err := analytics.SummarizeTBA(secs)
				if err != nil && !errors.Is(err, analytics.ErrEmptyPortfolio) {
					return fmt.Errorf("analyze: %w", err)
				}
				out.TBA = summary
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printAnalysis(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	cmd.Flags().BoolVar(&withSpeeds, "speeds", false, "Include per-pool prepayment speeds")
	cmd.Flags().BoolVar(&withTBA, "tba", false, "Include the TBA market summary")

	return cmd
}

// analyzeOutput is the analyze command's output payload.
type analyzeOutput struct {
	Portfolio *analytics.PortfolioReport  `json:"portfolio"`
	Speeds    []analytics.PrepaymentSpeed `json:"speeds,omitempty"`
	TBA       *analytics.TBASummary       `json:"tba,omitempty"`
}

// printAnalysis renders the report as readable text.
func printAnalysis(out analyzeOutput) {
	p := out.Portfolio
	fmt.Println("Portfolio report")
	fmt.Printf("  pools:            %d\n", len(p.HealthScores))
	fmt.Printf("  current balance:  %.2f\n", p.TotalCurrentBalance)
	fmt.Printf("  avg pool factor:  %.4f\n", p.AveragePoolFactor)
	fmt.Printf("  weighted WAC:     %.3f\n", p.WeightedWAC)
	fmt.Printf("  weighted WAM:     %.1f\n", p.WeightedWAM)
	fmt.Printf("  concentration:    %.3f\n", p.ConcentrationRisk)

	ids := make([]string, 0, len(p.HealthScores))
	for id := range p.HealthScores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Println("\nHealth scores")
	for _, id := range ids {
		fmt.Printf("  %-14s %5.1f\n", id, p.HealthScores[id])
	}

	if len(p.FlaggedAnomalies) > 0 {
		fmt.Printf("\nAnomalies: %s\n", strings.Join(p.FlaggedAnomalies, ", "))
	}
	for _, ve := range p.Invalid {
		fmt.Printf("  skipped %s: %s\n", ve.PoolID, ve.Reason)
	}

	if len(out.Speeds) > 0 {
		fmt.Println("\nPrepayment speeds")
		for _, s := range out.Speeds {
			fmt.Printf("  %-14s CPR %.2f%%  PSA %.0f%%  trend %s\n",
				s.PoolID, s.AverageCPR*100, s.PSAMultiple*100, s.Trend)
		}
	}

	if out.TBA != nil {
		t := out.TBA
		fmt.Println("\nTBA market")
		fmt.Printf("  securities:        %d\n", t.Count)
		fmt.Printf("  weighted yield:    %.3f\n", t.WeightedYield)
		fmt.Printf("  weighted duration: %.2f\n", t.WeightedDuration)
		pairs := make([]string, 0, len(t.YieldSpreads))
		for pair := range t.YieldSpreads {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		for _, pair := range pairs {
			fmt.Printf("  spread %-16s %.2f bps\n", pair, t.YieldSpreads[pair])
		}
	}
}
