package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/quantdesk/mbsiq/internal/prepay"
)

// speedWindowMonths bounds the monthly CPR series returned in a speed report.
const speedWindowMonths = 12

// PrepaymentSpeed summarizes the prepayment behavior implied by a pool's
// factor history. All rates are fractions (0.06 = 6% CPR).
type PrepaymentSpeed struct {
	// PoolID identifies the pool.
	PoolID string `json:"pool_id"`
	// AverageCPR is the mean annualized prepayment rate over the history.
	AverageCPR float64 `json:"average_cpr"`
	// CPRVolatility is the standard deviation of the monthly CPR series.
	CPRVolatility float64 `json:"cpr_volatility"`
	// PSAMultiple expresses AverageCPR against the 100% PSA plateau (0.06).
	PSAMultiple float64 `json:"psa_multiple"`
	// Trend is "accelerating", "decelerating", or "stable", comparing the
	// mean CPR of the second half of the window against the first.
	Trend string `json:"trend"`
	// MonthlyCPR is the annualized rate for each of the most recent months,
	// oldest first, at most twelve entries.
	MonthlyCPR []float64 `json:"monthly_cpr"`
}

// trendBand is the CPR difference below which the trend reads "stable".
const trendBand = 0.005

// SpeedFromHistory derives prepayment speeds from a factor series. Each
// consecutive factor pair yields an implied SMM (the fractional balance
// decline), which is annualized into CPR. Factor rises imply zero
// prepayment for that month rather than a negative rate.
//
// At least two observations are required.
func SpeedFromHistory(poolID string, history []Observation) (*PrepaymentSpeed, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("analytics: speed for pool %s: need at least 2 observations, have %d", poolID, len(history))
	}

	ordered := make([]Observation, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].AsOfDate.Before(ordered[j].AsOfDate)
	})

	var cprs []float64
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1].Factor, ordered[i].Factor
		smm := 0.0
		if prev > 0 && cur < prev {
			smm = (prev - cur) / prev
		}
		if smm >= 1 {
			// A full payoff in one month annualizes to 100% CPR.
			cprs = append(cprs, 1)
			continue
		}
		cpr, err := prepay.SMMToCPR(smm)
		if err != nil {
			return nil, fmt.Errorf("analytics: speed for pool %s: %w", poolID, err)
		}
		cprs = append(cprs, cpr)
	}

	speed := &PrepaymentSpeed{PoolID: poolID}
	var sum float64
	for _, c := range cprs {
		sum += c
	}
	speed.AverageCPR = sum / float64(len(cprs))
	speed.CPRVolatility = stddev(cprs)
	speed.PSAMultiple = speed.AverageCPR / prepay.BenchmarkCPR
	speed.Trend = classifyTrend(cprs)

	if len(cprs) > speedWindowMonths {
		cprs = cprs[len(cprs)-speedWindowMonths:]
	}
	speed.MonthlyCPR = cprs
	return speed, nil
}

// classifyTrend compares mean CPR across the two halves of the series.
func classifyTrend(cprs []float64) string {
	if len(cprs) < 2 {
		return "stable"
	}
	mid := len(cprs) / 2
	first := mean(cprs[:mid])
	second := mean(cprs[mid:])
	switch {
	case second-first > trendBand:
		return "accelerating"
	case first-second > trendBand:
		return "decelerating"
	default:
		return "stable"
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var variance float64
	for _, x := range xs {
		variance += (x - m) * (x - m)
	}
	return math.Sqrt(variance / float64(len(xs)))
}
