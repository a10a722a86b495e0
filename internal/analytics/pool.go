// Package analytics computes deterministic portfolio metrics over mortgage
// pool records: balance-weighted WAC/WAM, pool health scores, Herfindahl
// concentration risk, factor-anomaly flags, and prepayment speeds derived
// from factor history. Malformed pools never abort a report — they are
// collected as validation errors alongside the best-effort result.
package analytics

import (
	"fmt"
	"time"
)

// Observation is one point in a pool's factor time series.
type Observation struct {
	// AsOfDate is the observation date.
	AsOfDate time.Time `json:"as_of_date"`
	// Factor is the pool factor (current/original balance) on that date.
	Factor float64 `json:"factor"`
}

// Pool is a snapshot of a mortgage pool plus its factor history.
// The history is append-only, ordered oldest-first, and expected to be
// monotonically non-increasing; increases beyond the configured tolerance
// are flagged as anomalies, not rejected, since buy-ups do occur.
type Pool struct {
	// PoolID is the unique pool identifier.
	PoolID string `json:"pool_id"`
	// AsOfDate is the date of the snapshot fields below.
	AsOfDate time.Time `json:"as_of_date"`
	// CurrentBalance is the outstanding principal. Must be >= 0.
	CurrentBalance float64 `json:"current_balance"`
	// OriginalBalance is the principal at issuance. Must be > 0.
	OriginalBalance float64 `json:"original_balance"`
	// WAC is the weighted average coupon, in percent.
	WAC float64 `json:"wac"`
	// WAM is the weighted average maturity, in months. Must be >= 0.
	WAM int `json:"wam"`
	// History is the ordered factor series, oldest first.
	History []Observation `json:"history,omitempty"`
}

// Factor returns current/original balance, the derived pool factor.
func (p Pool) Factor() float64 {
	if p.OriginalBalance <= 0 {
		return 0
	}
	return p.CurrentBalance / p.OriginalBalance
}

// ValidationError describes one malformed pool record. Validation failures
// are collected per pool so one bad record cannot block the whole report.
type ValidationError struct {
	// PoolID identifies the rejected pool.
	PoolID string `json:"pool_id"`
	// Reason is the human-readable rejection cause.
	Reason string `json:"reason"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("analytics: pool %s: %s", v.PoolID, v.Reason)
}

// validate returns the reasons p is malformed, or nil if it is usable.
func validate(p Pool) []ValidationError {
	var errs []ValidationError
	add := func(reason string) {
		errs = append(errs, ValidationError{PoolID: p.PoolID, Reason: reason})
	}
	if p.PoolID == "" {
		add("missing pool id")
	}
	if p.CurrentBalance < 0 {
		add(fmt.Sprintf("negative current balance %v", p.CurrentBalance))
	}
	if p.OriginalBalance <= 0 {
		add(fmt.Sprintf("original balance %v must be positive", p.OriginalBalance))
	}
	if p.WAM < 0 {
		add(fmt.Sprintf("negative wam %d", p.WAM))
	}
	return errs
}

// anomalies returns the indexes of history observations whose factor rose by
// more than tolerance relative to the previous observation.
func anomalies(history []Observation, tolerance float64) int {
	count := 0
	for i := 1; i < len(history); i++ {
		if history[i].Factor-history[i-1].Factor > tolerance {
			count++
		}
	}
	return count
}
