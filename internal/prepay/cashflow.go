package prepay

import (
	"fmt"
	"math"
)

// CashFlow is one month of a projected pool cash-flow schedule.
type CashFlow struct {
	// Month is the 1-based projection month.
	Month int
	// ScheduledPayment is the level payment due this month before prepayments.
	ScheduledPayment float64
	// ScheduledInterest is the interest portion of the scheduled payment.
	ScheduledInterest float64
	// ScheduledPrincipal is the amortizing principal portion.
	ScheduledPrincipal float64
	// Prepayment is the unscheduled principal returned this month.
	Prepayment float64
	// TotalPayment is scheduled payment plus prepayment.
	TotalPayment float64
	// EndingBalance is the remaining principal after this month.
	EndingBalance float64
}

// CashFlowSummary aggregates a projected schedule.
type CashFlowSummary struct {
	// TotalPayments is the sum of all monthly total payments.
	TotalPayments float64
	// TotalInterest is the sum of scheduled interest.
	TotalInterest float64
	// TotalPrincipal is the sum of scheduled principal and prepayments.
	TotalPrincipal float64
	// WeightedAverageLife is the payment-weighted average time to receipt, in years.
	WeightedAverageLife float64
	// MacaulayDuration is the present-value-weighted average time, in years.
	MacaulayDuration float64
}

// Projection is the full output of ProjectCashFlows.
type Projection struct {
	// CashFlows is the month-by-month schedule, truncated when the balance hits zero.
	CashFlows []CashFlow
	// Summary holds the schedule aggregates.
	Summary CashFlowSummary
}

// ProjectCashFlows projects a level-payment amortization schedule with a
// constant-CPR prepayment overlay. balance is the current principal, wac is
// the gross coupon as an annual percentage (e.g. 5.5), months is the
// remaining term, and cpr is the assumed annual prepayment rate in [0,1).
func ProjectCashFlows(balance, wac float64, months int, cpr float64) (*Projection, error) {
	if balance < 0 || math.IsNaN(balance) {
		return nil, fmt.Errorf("%w: balance %v must be >= 0", ErrInvalidRate, balance)
	}
	if wac <= 0 || math.IsNaN(wac) {
		return nil, fmt.Errorf("%w: wac %v must be > 0", ErrInvalidRate, wac)
	}
	if months < 1 {
		return nil, fmt.Errorf("%w: months %d must be >= 1", ErrInvalidRate, months)
	}
	smm, err := CPRToSMM(cpr)
	if err != nil {
		return nil, err
	}

	monthlyRate := wac / 100 / 12
	// Level payment on the remaining term; the annuity factor is fixed at
	// projection start, matching how a pass-through schedule is quoted.
	annuity := math.Pow(1+monthlyRate, float64(months))
	payment := balance * monthlyRate * annuity / (annuity - 1)

	flows := make([]CashFlow, 0, months)
	for month := 1; month <= months && balance > 0; month++ {
		interest := balance * monthlyRate
		principal := payment - interest
		if principal > balance {
			principal = balance
		}
		prepayment := (balance - principal) * smm
		ending := balance - principal - prepayment
		if ending < 0 {
			ending = 0
		}

		flows = append(flows, CashFlow{
			Month:              month,
			ScheduledPayment:   interest + principal,
			ScheduledInterest:  interest,
			ScheduledPrincipal: principal,
			Prepayment:         prepayment,
			TotalPayment:       interest + principal + prepayment,
			EndingBalance:      ending,
		})
		balance = ending
	}

	p := &Projection{CashFlows: flows}
	for _, cf := range flows {
		p.Summary.TotalPayments += cf.TotalPayment
		p.Summary.TotalInterest += cf.ScheduledInterest
		p.Summary.TotalPrincipal += cf.ScheduledPrincipal + cf.Prepayment
	}
	p.Summary.WeightedAverageLife = weightedAverageLife(flows)
	p.Summary.MacaulayDuration = macaulayDuration(flows, monthlyRate)
	return p, nil
}

// weightedAverageLife returns the payment-weighted average month of receipt,
// converted to years. Zero if there are no flows.
func weightedAverageLife(flows []CashFlow) float64 {
	var weighted, total float64
	for _, cf := range flows {
		weighted += float64(cf.Month) * cf.TotalPayment
		total += cf.TotalPayment
	}
	if total == 0 {
		return 0
	}
	return weighted / total / 12
}

// macaulayDuration returns the present-value-weighted average time of the
// flows, discounted at the monthly coupon rate, in years.
func macaulayDuration(flows []CashFlow, monthlyRate float64) float64 {
	var weightedPV, totalPV float64
	for _, cf := range flows {
		pv := cf.TotalPayment / math.Pow(1+monthlyRate, float64(cf.Month))
		weightedPV += pv * float64(cf.Month)
		totalPV += pv
	}
	if totalPV == 0 {
		return 0
	}
	return weightedPV / totalPV / 12
}
