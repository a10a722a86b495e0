package analytics

import (
	"errors"
	"math"
	"testing"
	"time"
)

func approx(t *testing.T, got, want, eps float64, label string) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}

func monthlyHistory(start time.Time, factors ...float64) []Observation {
	out := make([]Observation, len(factors))
	for i, f := range factors {
		out[i] = Observation{AsOfDate: start.AddDate(0, i, 0), Factor: f}
	}
	return out
}

func Test_AnalyzePortfolio_SinglePool(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	report, err := eng.AnalyzePortfolio([]Pool{{
		PoolID:          "FN-001",
		CurrentBalance:  100,
		OriginalBalance: 200,
		WAC:             5.0,
		WAM:             300,
	}})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	approx(t, report.WeightedWAC, 5.0, 1e-12, "weighted wac")
	approx(t, report.WeightedWAM, 300, 1e-12, "weighted wam")
	approx(t, report.AveragePoolFactor, 0.5, 1e-12, "average factor")
	approx(t, report.TotalCurrentBalance, 100, 1e-12, "total balance")
	// One coupon bucket means fully concentrated.
	approx(t, report.ConcentrationRisk, 1.0, 1e-12, "concentration")
	if len(report.FlaggedAnomalies) != 0 {
		t.Errorf("no history should flag nothing, got %v", report.FlaggedAnomalies)
	}
}

func Test_AnalyzePortfolio_WeightsByBalance(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	report, err := eng.AnalyzePortfolio([]Pool{
		{PoolID: "A", CurrentBalance: 300, OriginalBalance: 400, WAC: 4.0, WAM: 240},
		{PoolID: "B", CurrentBalance: 100, OriginalBalance: 100, WAC: 8.0, WAM: 360},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// 300/400 of the balance at 4%, 100/400 at 8%.
	approx(t, report.WeightedWAC, 5.0, 1e-12, "weighted wac")
	approx(t, report.WeightedWAM, 270, 1e-12, "weighted wam")
	approx(t, report.AveragePoolFactor, (0.75+1.0)/2, 1e-12, "average factor")
}

func Test_AnalyzePortfolio_EmptyPortfolio(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	if _, err := eng.AnalyzePortfolio(nil); !errors.Is(err, ErrEmptyPortfolio) {
		t.Fatalf("want ErrEmptyPortfolio, got %v", err)
	}
	// All pools invalid degrades to the same sentinel.
	_, err := eng.AnalyzePortfolio([]Pool{{PoolID: "", CurrentBalance: 1, OriginalBalance: 1}})
	if !errors.Is(err, ErrEmptyPortfolio) {
		t.Fatalf("want ErrEmptyPortfolio for all-invalid input, got %v", err)
	}
}

func Test_AnalyzePortfolio_CollectsValidationErrors(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	report, err := eng.AnalyzePortfolio([]Pool{
		{PoolID: "GOOD", CurrentBalance: 50, OriginalBalance: 100, WAC: 5.5, WAM: 200},
		{PoolID: "BAD", CurrentBalance: -1, OriginalBalance: 100, WAC: 5.5, WAM: 200},
		{PoolID: "", CurrentBalance: 10, OriginalBalance: 0},
	})
	if err != nil {
		t.Fatalf("one valid pool must still produce a report: %v", err)
	}
	// BAD contributes one reason; the unnamed pool contributes two.
	if len(report.Invalid) != 3 {
		t.Fatalf("invalid = %v, want 3 entries", report.Invalid)
	}
	if report.Invalid[0].PoolID != "BAD" {
		t.Errorf("first invalid = %+v", report.Invalid[0])
	}
	approx(t, report.TotalCurrentBalance, 50, 1e-12, "total balance excludes invalid pools")
}

func Test_AnalyzePortfolio_FlagsFactorAnomalies(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{})
	report, err := eng.AnalyzePortfolio([]Pool{
		{
			PoolID: "STEADY", CurrentBalance: 90, OriginalBalance: 100, WAC: 5.0, WAM: 300,
			History: monthlyHistory(start, 1.0, 0.99, 0.98, 0.97),
		},
		{
			PoolID: "JUMPY", CurrentBalance: 95, OriginalBalance: 100, WAC: 5.0, WAM: 300,
			History: monthlyHistory(start, 1.0, 0.98, 0.99, 0.97), // 0.98 -> 0.99 rise
		},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(report.FlaggedAnomalies) != 1 || report.FlaggedAnomalies[0] != "JUMPY" {
		t.Fatalf("flagged = %v, want [JUMPY]", report.FlaggedAnomalies)
	}
	if report.HealthScores["JUMPY"] >= report.HealthScores["STEADY"] {
		t.Errorf("anomalous pool must score below the steady one: %v vs %v",
			report.HealthScores["JUMPY"], report.HealthScores["STEADY"])
	}
}

func Test_AnalyzePortfolio_AnomalyToleranceConfigurable(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := Pool{
		PoolID: "P", CurrentBalance: 90, OriginalBalance: 100, WAC: 5.0, WAM: 300,
		History: monthlyHistory(start, 0.98, 0.983), // +0.003 rise
	}

	strict, err := NewEngine(Config{AnomalyTolerance: 0.001}).AnalyzePortfolio([]Pool{pool})
	if err != nil {
		t.Fatalf("strict analyze: %v", err)
	}
	if len(strict.FlaggedAnomalies) != 1 {
		t.Errorf("strict tolerance must flag the rise, got %v", strict.FlaggedAnomalies)
	}

	loose, err := NewEngine(Config{}).AnalyzePortfolio([]Pool{pool})
	if err != nil {
		t.Fatalf("default analyze: %v", err)
	}
	if len(loose.FlaggedAnomalies) != 0 {
		t.Errorf("default tolerance (0.005) must not flag +0.003, got %v", loose.FlaggedAnomalies)
	}
}

func Test_AnalyzePortfolio_ConcentrationTwoEqualBuckets(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	report, err := eng.AnalyzePortfolio([]Pool{
		{PoolID: "A", CurrentBalance: 100, OriginalBalance: 100, WAC: 4.0, WAM: 300},
		{PoolID: "B", CurrentBalance: 100, OriginalBalance: 100, WAC: 6.0, WAM: 300},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	approx(t, report.ConcentrationRisk, 0.5, 1e-12, "two equal buckets")
}

func Test_AnalyzePortfolio_CouponBucketsRoundToHalf(t *testing.T) {
	t.Parallel()
	eng := NewEngine(Config{})
	// 4.4 and 4.6 both round to 4.5, so this is a single bucket.
	report, err := eng.AnalyzePortfolio([]Pool{
		{PoolID: "A", CurrentBalance: 100, OriginalBalance: 100, WAC: 4.4, WAM: 300},
		{PoolID: "B", CurrentBalance: 100, OriginalBalance: 100, WAC: 4.6, WAM: 300},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	approx(t, report.ConcentrationRisk, 1.0, 1e-12, "rounded buckets merge")
}

func Test_HealthScore_Bounds(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Wildly erratic history plus many anomalies must still clamp at zero.
	p := Pool{
		PoolID: "E", CurrentBalance: 10, OriginalBalance: 100,
		History: monthlyHistory(start, 1.0, 0.5, 0.9, 0.3, 0.8, 0.2),
	}
	score := healthScore(p, anomalies(p.History, DefaultAnomalyTolerance))
	if score < 0 || score > 100 {
		t.Fatalf("score %v outside [0,100]", score)
	}
	if score != 0 {
		t.Errorf("erratic low-balance pool should bottom out, got %v", score)
	}
}
