package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/quantdesk/mbsiq/internal/analytics"
)

// newTestStore opens an in-memory database for isolated, fast tests.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return s
}

func Test_Store_PoolRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	pool := analytics.Pool{
		PoolID: "FN-001", AsOfDate: asOf,
		CurrentBalance: 90_000_000, OriginalBalance: 100_000_000,
		WAC: 5.5, WAM: 320,
	}
	if err := s.UpsertPool(ctx, pool); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i, f := range []float64{1.0, 0.95, 0.90} {
		obs := analytics.Observation{AsOfDate: asOf.AddDate(0, i-2, 0), Factor: f}
		if err := s.AppendObservation(ctx, "FN-001", obs); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Pool(ctx, "FN-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WAC != 5.5 || got.WAM != 320 || !got.AsOfDate.Equal(asOf) {
		t.Errorf("got %+v", got)
	}
	if len(got.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(got.History))
	}
	// Oldest first regardless of insertion order key.
	if got.History[0].Factor != 1.0 || got.History[2].Factor != 0.90 {
		t.Errorf("history order wrong: %+v", got.History)
	}
}

func Test_Store_PoolMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Pool(context.Background(), "NOPE"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("want sql.ErrNoRows, got %v", err)
	}
}

func Test_Store_UpsertPoolReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := analytics.Pool{PoolID: "FN-001", AsOfDate: asOf, CurrentBalance: 100, OriginalBalance: 100, WAC: 5, WAM: 300}
	if err := s.UpsertPool(ctx, p); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	p.CurrentBalance = 95
	p.AsOfDate = asOf.AddDate(0, 1, 0)
	if err := s.UpsertPool(ctx, p); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	pools, err := s.Pools(ctx)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools) != 1 || pools[0].CurrentBalance != 95 {
		t.Errorf("pools = %+v, want single updated row", pools)
	}
}

func Test_Store_ObservationSameMonthReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p := analytics.Pool{PoolID: "FN-001", AsOfDate: asOf, CurrentBalance: 100, OriginalBalance: 100, WAC: 5, WAM: 300}
	if err := s.UpsertPool(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	obs := analytics.Observation{AsOfDate: asOf, Factor: 0.95}
	if err := s.AppendObservation(ctx, "FN-001", obs); err != nil {
		t.Fatalf("append: %v", err)
	}
	obs.Factor = 0.94 // restated
	if err := s.AppendObservation(ctx, "FN-001", obs); err != nil {
		t.Fatalf("restate: %v", err)
	}

	got, err := s.Pool(ctx, "FN-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.History) != 1 || got.History[0].Factor != 0.94 {
		t.Errorf("history = %+v, want single restated row", got.History)
	}
}

func Test_Store_TBARoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	settle := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

	sec := analytics.TBASecurity{
		CUSIP: "01F0502A8", Agency: analytics.AgencyFNMA, Coupon: 5.0,
		SettlementDate: settle, Price: 98.875, Yield: 5.22, Duration: 5.4,
	}
	if err := s.UpsertTBA(ctx, sec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sec.Price = 99.125 // refreshed quote
	if err := s.UpsertTBA(ctx, sec); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	secs, err := s.TBASecurities(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(secs) != 1 {
		t.Fatalf("len = %d, want 1", len(secs))
	}
	got := secs[0]
	if got.Agency != analytics.AgencyFNMA || got.Price != 99.125 || !got.SettlementDate.Equal(settle) {
		t.Errorf("got %+v", got)
	}
}

func Test_Seed_Deterministic(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	asOf := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := Seed(ctx, s, asOf); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Idempotent: reseeding must not duplicate.
	if err := Seed(ctx, s, asOf); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	pools, err := s.Pools(ctx)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools) != 5 {
		t.Fatalf("seeded %d pools, want 5", len(pools))
	}
	for _, p := range pools {
		if len(p.History) != seedMonths {
			t.Errorf("pool %s history = %d months, want %d", p.PoolID, len(p.History), seedMonths)
		}
		// The newest factor matches the snapshot balances.
		last := p.History[len(p.History)-1].Factor
		if math.Abs(p.CurrentBalance/p.OriginalBalance-last) > 1e-9 {
			t.Errorf("pool %s balance/factor mismatch: %v vs %v", p.PoolID, p.CurrentBalance/p.OriginalBalance, last)
		}
	}

	secs, err := s.TBASecurities(ctx)
	if err != nil {
		t.Fatalf("tba: %v", err)
	}
	if len(secs) != 10 {
		t.Fatalf("seeded %d tba securities, want 10", len(secs))
	}
}

func Test_Seed_AnomalyPoolFlagged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	if err := Seed(ctx, s, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pools, err := s.Pools(ctx)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}

	report, err := analytics.NewEngine(analytics.Config{}).AnalyzePortfolio(pools)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(report.FlaggedAnomalies) != 1 || report.FlaggedAnomalies[0] != "GN-2023-033" {
		t.Errorf("flagged = %v, want the seeded anomaly pool", report.FlaggedAnomalies)
	}
}
