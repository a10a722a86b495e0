package rules

import "context"

// seedCorpus is the curated MBS business-rule corpus loaded at startup.
// IDs are assigned by Seed so operator-added rules continue the sequence.
var seedCorpus = []struct {
	text     string
	category Category
	keywords []string
}{
	{
		text:     "TBA (To Be Announced) securities are mortgage-backed securities with specified characteristics but not yet assigned to specific mortgage pools.",
		category: CategoryTBA,
		keywords: []string{"TBA", "to be announced", "mortgage-backed securities", "MBS"},
	},
	{
		text:     "Pool factor represents the ratio of the current principal balance to the original principal balance of a mortgage pool.",
		category: CategoryPoolFactor,
		keywords: []string{"pool factor", "principal balance", "mortgage pool", "ratio"},
	},
	{
		text:     "Agency MBS include Ginnie Mae, Fannie Mae, and Freddie Mac securities with government guarantee.",
		category: CategoryAgency,
		keywords: []string{"agency MBS", "Ginnie Mae", "Fannie Mae", "Freddie Mac", "government guarantee"},
	},
	{
		text:     "TBA pricing is based on specified coupon rate, settlement date, and agency type.",
		category: CategoryTBA,
		keywords: []string{"TBA pricing", "coupon rate", "settlement date", "agency type"},
	},
	{
		text:     "Pool factor analysis helps track prepayment rates and expected cash flows from mortgage pools.",
		category: CategoryPoolFactor,
		keywords: []string{"pool factor analysis", "prepayment rates", "cash flows", "mortgage pools"},
	},
	{
		text:     "CPR (Conditional Prepayment Rate) measures the percentage of mortgage principal prepaid in a given year.",
		category: CategoryPrepayment,
		keywords: []string{"CPR", "conditional prepayment rate", "prepayment percentage", "mortgage principal"},
	},
	{
		text:     "SMM (Single Monthly Mortality) is the monthly equivalent of CPR, calculated as 1 - (1 - CPR)^(1/12).",
		category: CategoryPrepayment,
		keywords: []string{"SMM", "single monthly mortality", "monthly prepayment", "CPR conversion"},
	},
	{
		text:     "Weighted Average Coupon (WAC) represents the average interest rate of mortgages in a pool.",
		category: CategoryPerformance,
		keywords: []string{"WAC", "weighted average coupon", "average interest rate", "mortgage pool"},
	},
	{
		text:     "Weighted Average Maturity (WAM) is the average time until mortgage loans in a pool mature or are paid off.",
		category: CategoryPerformance,
		keywords: []string{"WAM", "weighted average maturity", "average maturity", "mortgage pool"},
	},
	{
		text:     "TBA roll transactions involve selling current month TBAs and buying next month TBAs to maintain exposure.",
		category: CategoryTBA,
		keywords: []string{"TBA roll", "roll transactions", "current month", "next month", "maintain exposure"},
	},
}

// Seed loads the curated corpus into the store, embedding each rule as it
// goes. Fails fast on the first error so a half-seeded corpus is visible at
// startup rather than at query time.
func Seed(ctx context.Context, s *Store) error {
	for _, r := range seedCorpus {
		if _, err := s.AddNew(ctx, r.text, r.category, r.keywords); err != nil {
			return err
		}
	}
	return nil
}
