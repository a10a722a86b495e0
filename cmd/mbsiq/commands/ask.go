package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantdesk/mbsiq/internal/analytics"
	"github.com/quantdesk/mbsiq/internal/embedder"
	"github.com/quantdesk/mbsiq/internal/logging"
	"github.com/quantdesk/mbsiq/internal/retrieval"
	"github.com/quantdesk/mbsiq/internal/rules"
)

// NewAskCmd constructs the `mbsiq ask` command, which answers a single
// natural-language question on stdout.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about mortgage-backed securities",
		Long: `Ask MBS-IQ a natural-language question.

The answer lists the most relevant business rules from the corpus with their
ranking scores. Questions about pool factors, performance, or TBA trading are
additionally enriched with the matching market-data summary when market data
has been seeded (see 'mbsiq seed').

Examples:
  mbsiq ask "what is a pool factor?"
  mbsiq ask --top-k 5 "how do I convert CPR to SMM?"
  mbsiq ask --json "compare FNMA and GNMA yields"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			idx, closeIndex, err := buildIndex(ctx, emb, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeIndex()

			ruleStore, err := buildCorpus(ctx, idx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			engine, err := retrieval.NewEngine(ruleStore, idx, retrievalConfig())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			question := strings.Join(args, " ")
			scored, err := engine.Retrieve(ctx, question, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans := answer{Question: question, Rules: make([]answerRule, 0, len(scored))}
			for _, sr := range scored {
				ans.Rules = append(ans.Rules, answerRule{
					ID:       sr.Rule.ID,
					Text:     sr.Rule.Text,
					Category: sr.Rule.Category,
					Score:    sr.Score,
				})
			}
			if category, ok := retrieval.GuessCategory(question); ok {
				ans.Category = category
				attachMarketView(ctx, &ans, category, log)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}
			printAnswer(ans)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of rules to return (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the answer as JSON")

	return cmd
}

// answer is the CLI answer payload, shared by the text and JSON renderings.
type answer struct {
	Question  string                     `json:"question"`
	Category  rules.Category             `json:"category,omitempty"`
	Rules     []answerRule               `json:"rules"`
	Portfolio *analytics.PortfolioReport `json:"portfolio,omitempty"`
	TBA       *analytics.TBASummary      `json:"tba,omitempty"`
}

type answerRule struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Category rules.Category `json:"category"`
	Score    float64        `json:"score"`
}

// attachMarketView enriches the answer with the market-data summary matching
// the question's category. Store failures degrade to a rules-only answer.
func attachMarketView(ctx context.Context, ans *answer, category rules.Category, log *slog.Logger) {
	market, err := openMarketStore(log)
	if err != nil {
		log.Warn("ask: market data unavailable", slog.Any("error", err))
		return
	}
	if market == nil {
		return
	}
	defer func() { _ = market.Close() }()

	switch category {
	case rules.CategoryPoolFactor, rules.CategoryPerformance:
		pools, err := market.Pools(ctx)
		if err != nil {
			log.Warn("ask: pool data unavailable", slog.Any("error", err))
			return
		}
		report, err := analyticsEngine().AnalyzePortfolio(pools)
		if err != nil {
			if !errors.Is(err, analytics.ErrEmptyPortfolio) {
				log.Warn("ask: portfolio analysis failed", slog.Any("error", err))
			}
			return
		}
		ans.Portfolio = report
	case rules.CategoryTBA:
		secs, err := market.TBASecurities(ctx)
		if err != nil {
			log.Warn("ask: tba data unavailable", slog.Any("error", err))
			return
		}
		summary, err := analytics.SummarizeTBA(secs)
		if err != nil {
			if !errors.Is(err, analytics.ErrEmptyPortfolio) {
				log.Warn("ask: tba summary failed", slog.Any("error", err))
			}
			return
		}
		ans.TBA = summary
	}
}

// printAnswer renders the answer as readable text.
func printAnswer(ans answer) {
	fmt.Printf("Q: %s\n", ans.Question)
	if ans.Category != "" {
		fmt.Printf("Category: %s\n", ans.Category)
	}
	fmt.Println()
	if len(ans.Rules) == 0 {
		fmt.Println("No matching rules found.")
	}
	for i, r := range ans.Rules {
		fmt.Printf("%d. [%s, score %.3f] %s\n", i+1, r.Category, r.Score, r.Text)
	}
	if ans.Portfolio != nil {
		p := ans.Portfolio
		fmt.Println("\nPortfolio:")
		fmt.Printf("  pools: %d  current balance: %.0f  avg factor: %.4f\n",
			len(p.HealthScores), p.TotalCurrentBalance, p.AveragePoolFactor)
		fmt.Printf("  weighted WAC: %.3f  weighted WAM: %.1f  concentration: %.3f\n",
			p.WeightedWAC, p.WeightedWAM, p.ConcentrationRisk)
		if len(p.FlaggedAnomalies) > 0 {
			fmt.Printf("  anomalies: %s\n", strings.Join(p.FlaggedAnomalies, ", "))
		}
	}
	if ans.TBA != nil {
		t := ans.TBA
		fmt.Println("\nTBA market:")
		fmt.Printf("  securities: %d  weighted yield: %.3f  weighted duration: %.2f\n",
			t.Count, t.WeightedYield, t.WeightedDuration)
		for pair, bps := range t.YieldSpreads {
			fmt.Printf("  spread %s: %.2f bps\n", pair, bps)
		}
	}
}
