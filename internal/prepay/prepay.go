// Package prepay implements prepayment-speed conversions for mortgage pools.
// All functions are pure: they read no mutable state and are total over their
// documented domains, returning ErrInvalidRate for out-of-domain inputs
// rather than clamping silently.
//
// Conventions:
//
//	SMM — Single Monthly Mortality, the fraction of remaining principal
//	      prepaid in one month.
//	CPR — Conditional Prepayment Rate, the annualized equivalent of SMM.
//	PSA — Public Securities Association benchmark ramp: CPR rises linearly
//	      to 6% over the first 30 months of pool age, then stays flat.
package prepay

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRate is returned when a rate or month argument falls outside the
// documented domain of a conversion function.
var ErrInvalidRate = errors.New("prepay: rate out of domain")

// BenchmarkCPR is the 100% PSA plateau CPR (6% annual).
const BenchmarkCPR = 0.06

// psaRampMonths is the pool age at which the PSA ramp reaches its plateau.
const psaRampMonths = 30

// SMMToCPR converts a monthly prepayment rate to its annualized equivalent:
//
//	cpr = 1 - (1-smm)^12
//
// smm must be in [0, 1).
func SMMToCPR(smm float64) (float64, error) {
	if smm < 0 || smm >= 1 || math.IsNaN(smm) {
		return 0, fmt.Errorf("%w: smm %v not in [0,1)", ErrInvalidRate, smm)
	}
	return 1 - math.Pow(1-smm, 12), nil
}

// CPRToSMM converts an annual prepayment rate to its monthly equivalent:
//
//	smm = 1 - (1-cpr)^(1/12)
//
// cpr must be in [0, 1).
func CPRToSMM(cpr float64) (float64, error) {
	if cpr < 0 || cpr >= 1 || math.IsNaN(cpr) {
		return 0, fmt.Errorf("%w: cpr %v not in [0,1)", ErrInvalidRate, cpr)
	}
	return 1 - math.Pow(1-cpr, 1.0/12.0), nil
}

// PSAToCPR returns the CPR implied by the standard PSA ramp for a pool of the
// given age. month is 1-based pool age in months and must be >= 1.
//
//	month <= 30: cpr = 0.06 * (month/30) * multiple
//	month  > 30: cpr = 0.06 * multiple
//
// multiple is the PSA speed as a fraction (1.0 = 100% PSA) and must be >= 0.
func PSAToCPR(multiple float64, month int) (float64, error) {
	if month < 1 {
		return 0, fmt.Errorf("%w: month %d must be >= 1", ErrInvalidRate, month)
	}
	if multiple < 0 || math.IsNaN(multiple) {
		return 0, fmt.Errorf("%w: psa multiple %v must be >= 0", ErrInvalidRate, multiple)
	}
	if month <= psaRampMonths {
		return BenchmarkCPR * (float64(month) / psaRampMonths) * multiple, nil
	}
	return BenchmarkCPR * multiple, nil
}

// ProjectBalance projects pool balance runoff at a constant SMM as geometric
// decay. The returned slice has length periods; element i is the balance
// after i+1 periods (the starting balance is not included).
//
// smm must be in [0, 1); periods must be >= 0; balance must be >= 0.
func ProjectBalance(balance, smm float64, periods int) ([]float64, error) {
	if smm < 0 || smm >= 1 || math.IsNaN(smm) {
		return nil, fmt.Errorf("%w: smm %v not in [0,1)", ErrInvalidRate, smm)
	}
	if balance < 0 || math.IsNaN(balance) {
		return nil, fmt.Errorf("%w: balance %v must be >= 0", ErrInvalidRate, balance)
	}
	if periods < 0 {
		return nil, fmt.Errorf("%w: periods %d must be >= 0", ErrInvalidRate, periods)
	}

	out := make([]float64, periods)
	for i := range out {
		balance *= 1 - smm
		out[i] = balance
	}
	return out, nil
}
