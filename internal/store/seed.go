package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantdesk/mbsiq/internal/analytics"
)

// seedMonths is the length of each seeded pool's factor history.
const seedMonths = 24

// seedPool describes one deterministic sample pool: a starting balance and a
// constant monthly decline rate (SMM) from which the factor series is derived.
type seedPool struct {
	poolID          string
	originalBalance float64
	wac             float64
	wam             int
	smm             float64
	// anomalyMonth, if > 0, injects a small factor rise at that month so the
	// anomaly detector has something to find in demos.
	anomalyMonth int
}

var seedPools = []seedPool{
	{poolID: "FN-2023-001", originalBalance: 250_000_000, wac: 5.50, wam: 330, smm: 0.008},
	{poolID: "FN-2023-014", originalBalance: 180_000_000, wac: 6.00, wam: 342, smm: 0.012},
	{poolID: "FH-2022-207", originalBalance: 320_000_000, wac: 4.50, wam: 318, smm: 0.006},
	{poolID: "GN-2023-033", originalBalance: 95_000_000, wac: 5.00, wam: 336, smm: 0.010, anomalyMonth: 14},
	{poolID: "FH-2021-118", originalBalance: 410_000_000, wac: 3.50, wam: 294, smm: 0.004},
}

var seedTBAs = []analytics.TBASecurity{
	{CUSIP: "01F0502A8", Agency: analytics.AgencyFNMA, Coupon: 5.0, Price: 98.875, Yield: 5.22, Duration: 5.4},
	{CUSIP: "01F0552B6", Agency: analytics.AgencyFNMA, Coupon: 5.5, Price: 100.500, Yield: 5.41, Duration: 4.9},
	{CUSIP: "01F0602C4", Agency: analytics.AgencyFNMA, Coupon: 6.0, Price: 101.750, Yield: 5.63, Duration: 4.3},
	{CUSIP: "02R0503D1", Agency: analytics.AgencyFHLMC, Coupon: 5.0, Price: 98.750, Yield: 5.25, Duration: 5.5},
	{CUSIP: "02R0553E9", Agency: analytics.AgencyFHLMC, Coupon: 5.5, Price: 100.375, Yield: 5.44, Duration: 5.0},
	{CUSIP: "02R0603F7", Agency: analytics.AgencyFHLMC, Coupon: 6.0, Price: 101.625, Yield: 5.66, Duration: 4.4},
	{CUSIP: "21H0504G5", Agency: analytics.AgencyGNMA, Coupon: 5.0, Price: 99.250, Yield: 5.08, Duration: 5.2},
	{CUSIP: "21H0554H3", Agency: analytics.AgencyGNMA, Coupon: 5.5, Price: 100.875, Yield: 5.27, Duration: 4.7},
	{CUSIP: "21H0604J9", Agency: analytics.AgencyGNMA, Coupon: 6.0, Price: 102.125, Yield: 5.49, Duration: 4.1},
	{CUSIP: "21H0454K6", Agency: analytics.AgencyGNMA, Coupon: 4.5, Price: 97.500, Yield: 4.92, Duration: 5.8},
}

// Seed loads the deterministic sample data set: five pools with 24 months of
// factor history each and ten TBA snapshots. Seeding is idempotent — rerunning
// it upserts the same rows. asOf anchors the newest observation; histories run
// monthly backward from it.
func Seed(ctx context.Context, s MarketStore, asOf time.Time) error {
	asOf = asOf.UTC().Truncate(24 * time.Hour)
	for _, sp := range seedPools {
		factors := sp.factorSeries()
		current := sp.originalBalance * factors[len(factors)-1]
		pool := analytics.Pool{
			PoolID:          sp.poolID,
			AsOfDate:        asOf,
			CurrentBalance:  current,
			OriginalBalance: sp.originalBalance,
			WAC:             sp.wac,
			WAM:             sp.wam,
		}
		if err := s.UpsertPool(ctx, pool); err != nil {
			return fmt.Errorf("store: seed: %w", err)
		}
		for i, f := range factors {
			obs := analytics.Observation{
				AsOfDate: asOf.AddDate(0, i-(len(factors)-1), 0),
				Factor:   f,
			}
			if err := s.AppendObservation(ctx, sp.poolID, obs); err != nil {
				return fmt.Errorf("store: seed: %w", err)
			}
		}
	}
	settle := nextStandardSettlement(asOf)
	for _, sec := range seedTBAs {
		sec.SettlementDate = settle
		if err := s.UpsertTBA(ctx, sec); err != nil {
			return fmt.Errorf("store: seed: %w", err)
		}
	}
	return nil
}

// factorSeries derives the monthly factor history from the pool's constant
// SMM, with an optional one-month anomaly bump.
func (sp seedPool) factorSeries() []float64 {
	out := make([]float64, seedMonths)
	for i := range out {
		out[i] = math.Pow(1-sp.smm, float64(i))
		if sp.anomalyMonth > 0 && i >= sp.anomalyMonth {
			// A reporting correction: the factor jumps up once and the series
			// continues declining from the higher level.
			out[i] *= 1.02
		}
	}
	return out
}

// nextStandardSettlement approximates standard TBA settlement as the 15th of
// the month after asOf.
func nextStandardSettlement(asOf time.Time) time.Time {
	next := asOf.AddDate(0, 1, 0)
	return time.Date(next.Year(), next.Month(), 15, 0, 0, 0, 0, time.UTC)
}
