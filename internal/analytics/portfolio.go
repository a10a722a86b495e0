package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEmptyPortfolio is returned when a portfolio has no usable pools to
// aggregate — either no pools at all, or none that pass validation.
var ErrEmptyPortfolio = errors.New("analytics: empty portfolio")

// DefaultAnomalyTolerance is the documented default for how much a factor
// may rise between consecutive observations before it is flagged.
const DefaultAnomalyTolerance = 0.005

// Health score composition. The ingredients are fixed (decline consistency,
// balance size, anomaly penalty); see DESIGN.md for the weight rationale.
const (
	// consistencyWeight is the maximum score from factor-decline consistency.
	consistencyWeight = 50.0
	// consistencyPenaltyScale converts delta standard deviation into points.
	consistencyPenaltyScale = 500.0
	// sizeWeight is the maximum score from log-scaled balance size.
	sizeWeight = 30.0
	// sizeCapLog10 is the log10 balance at which the size score saturates ($100M).
	sizeCapLog10 = 8.0
	// anomalyPenalty is subtracted per flagged factor anomaly.
	anomalyPenalty = 15.0
)

// Config holds the analytics knobs.
type Config struct {
	// AnomalyTolerance is the maximum factor increase between consecutive
	// observations before the pool is flagged. <= 0 selects the default.
	AnomalyTolerance float64
}

// Engine computes portfolio reports. It holds only configuration and is safe
// for concurrent use.
type Engine struct {
	// tolerance is the resolved anomaly tolerance.
	tolerance float64
}

// NewEngine constructs an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.AnomalyTolerance <= 0 {
		cfg.AnomalyTolerance = DefaultAnomalyTolerance
	}
	return &Engine{tolerance: cfg.AnomalyTolerance}
}

// PortfolioReport is the aggregate output of AnalyzePortfolio.
type PortfolioReport struct {
	// WeightedWAC is the current-balance-weighted average coupon, percent.
	WeightedWAC float64 `json:"weighted_wac"`
	// WeightedWAM is the current-balance-weighted average maturity, months.
	WeightedWAM float64 `json:"weighted_wam"`
	// HealthScores maps pool ID to a health score in [0, 100].
	HealthScores map[string]float64 `json:"health_scores"`
	// ConcentrationRisk is the Herfindahl index over coupon-bucket balance
	// shares, in [0, 1]. Higher means more concentrated.
	ConcentrationRisk float64 `json:"concentration_risk"`
	// FlaggedAnomalies lists pool IDs whose factor series rose by more than
	// the configured tolerance between consecutive observations. Sorted.
	FlaggedAnomalies []string `json:"flagged_anomalies"`
	// Invalid collects per-pool validation failures. The rest of the report
	// is computed over the valid pools only.
	Invalid []ValidationError `json:"invalid,omitempty"`
	// TotalCurrentBalance is the summed balance of the valid pools.
	TotalCurrentBalance float64 `json:"total_current_balance"`
	// AveragePoolFactor is the unweighted mean factor of the valid pools.
	AveragePoolFactor float64 `json:"average_pool_factor"`
}

// AnalyzePortfolio computes the full report over pools. Malformed pools are
// collected in the report's Invalid list rather than failing the call;
// ErrEmptyPortfolio is returned only when no valid pool remains to divide by.
func (e *Engine) AnalyzePortfolio(pools []Pool) (*PortfolioReport, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("%w: no pools", ErrEmptyPortfolio)
	}

	report := &PortfolioReport{HealthScores: make(map[string]float64)}
	var valid []Pool
	for _, p := range pools {
		if errs := validate(p); len(errs) > 0 {
			report.Invalid = append(report.Invalid, errs...)
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid pools (%d rejected)", ErrEmptyPortfolio, len(pools))
	}

	var totalBalance, wacSum, wamSum, factorSum float64
	for _, p := range valid {
		totalBalance += p.CurrentBalance
		wacSum += p.WAC * p.CurrentBalance
		wamSum += float64(p.WAM) * p.CurrentBalance
		factorSum += p.Factor()
	}
	if totalBalance == 0 {
		return nil, fmt.Errorf("%w: zero aggregate balance", ErrEmptyPortfolio)
	}
	report.TotalCurrentBalance = totalBalance
	report.WeightedWAC = wacSum / totalBalance
	report.WeightedWAM = wamSum / totalBalance
	report.AveragePoolFactor = factorSum / float64(len(valid))

	for _, p := range valid {
		n := anomalies(p.History, e.tolerance)
		if n > 0 {
			report.FlaggedAnomalies = append(report.FlaggedAnomalies, p.PoolID)
		}
		report.HealthScores[p.PoolID] = healthScore(p, n)
	}
	sort.Strings(report.FlaggedAnomalies)

	report.ConcentrationRisk = couponConcentration(valid)
	return report, nil
}

// healthScore combines factor-decline consistency, log-scaled balance size,
// and an anomaly penalty into a [0, 100] score. Deterministic given the
// pool's history.
func healthScore(p Pool, anomalyCount int) float64 {
	score := consistencyScore(p.History) + sizeScore(p.CurrentBalance)
	score -= anomalyPenalty * float64(anomalyCount)
	return clamp(score, 0, 100)
}

// consistencyScore rewards a steady month-over-month factor decline: the
// standard deviation of consecutive deltas is converted into a penalty.
// Fewer than two deltas means no evidence of inconsistency — full marks.
func consistencyScore(history []Observation) float64 {
	deltas := make([]float64, 0, len(history))
	for i := 1; i < len(history); i++ {
		deltas = append(deltas, history[i].Factor-history[i-1].Factor)
	}
	if len(deltas) < 2 {
		return consistencyWeight
	}
	var mean float64
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))
	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))
	penalty := math.Sqrt(variance) * consistencyPenaltyScale
	return clamp(consistencyWeight-penalty, 0, consistencyWeight)
}

// sizeScore rewards larger pools on a log scale, saturating at $100M.
func sizeScore(balance float64) float64 {
	if balance <= 0 {
		return 0
	}
	return sizeWeight * clamp(math.Log10(1+balance)/sizeCapLog10, 0, 1)
}

// couponConcentration is the Herfindahl index over coupon-bucket balance
// shares. Buckets are WAC rounded to the nearest 0.5%. A single bucket
// yields 1 (fully concentrated); many equal buckets approach 1/n.
func couponConcentration(pools []Pool) float64 {
	buckets := make(map[float64]float64)
	var total float64
	for _, p := range pools {
		bucket := math.Round(p.WAC*2) / 2
		buckets[bucket] += p.CurrentBalance
		total += p.CurrentBalance
	}
	if total == 0 {
		return 0
	}
	var hhi float64
	for _, balance := range buckets {
		share := balance / total
		hhi += share * share
	}
	return hhi
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
