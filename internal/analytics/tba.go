package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Agency identifies a TBA-eligible issuing agency.
type Agency string

const (
	// AgencyFNMA is Fannie Mae.
	AgencyFNMA Agency = "FNMA"
	// AgencyFHLMC is Freddie Mac.
	AgencyFHLMC Agency = "FHLMC"
	// AgencyGNMA is Ginnie Mae.
	AgencyGNMA Agency = "GNMA"
)

var agencies = map[Agency]bool{
	AgencyFNMA:  true,
	AgencyFHLMC: true,
	AgencyGNMA:  true,
}

// ParseAgency validates an agency string, accepting common aliases.
func ParseAgency(s string) (Agency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FNMA", "FANNIE", "FANNIE MAE":
		return AgencyFNMA, nil
	case "FHLMC", "FREDDIE", "FREDDIE MAC":
		return AgencyFHLMC, nil
	case "GNMA", "GINNIE", "GINNIE MAE":
		return AgencyGNMA, nil
	}
	return "", fmt.Errorf("analytics: unknown agency %q", s)
}

// TBASecurity is one To-Be-Announced market snapshot.
type TBASecurity struct {
	// CUSIP is the security identifier.
	CUSIP string `json:"cusip"`
	// Agency is the issuing agency.
	Agency Agency `json:"agency"`
	// Coupon is the pass-through coupon, in percent.
	Coupon float64 `json:"coupon"`
	// SettlementDate is the TBA settlement date.
	SettlementDate time.Time `json:"settlement_date"`
	// Price is the quoted price per 100 face.
	Price float64 `json:"price"`
	// Yield is the quoted yield, in percent.
	Yield float64 `json:"yield"`
	// Duration is the modified duration, in years.
	Duration float64 `json:"duration"`
}

// Stat is a min/max/mean triple over one quoted field.
type Stat struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// AgencyStats aggregates the securities of one agency.
type AgencyStats struct {
	// Count is the number of securities for the agency.
	Count int `json:"count"`
	// AverageYield is the unweighted mean yield, percent.
	AverageYield float64 `json:"average_yield"`
	// AveragePrice is the unweighted mean price.
	AveragePrice float64 `json:"average_price"`
	// AverageDuration is the unweighted mean duration, years.
	AverageDuration float64 `json:"average_duration"`
}

// TBASummary is the aggregate view over a TBA snapshot set.
type TBASummary struct {
	// Count is the total number of securities summarized.
	Count int `json:"count"`
	// AgencyDistribution maps agency to its share of Count, in [0, 1].
	AgencyDistribution map[Agency]float64 `json:"agency_distribution"`
	// Coupon, Price, and Yield carry min/max/mean over the snapshot.
	Coupon Stat `json:"coupon"`
	Price  Stat `json:"price"`
	Yield  Stat `json:"yield"`
	// WeightedYield is the price-weighted average yield, percent.
	WeightedYield float64 `json:"weighted_yield"`
	// WeightedDuration is the price-weighted average duration, years.
	WeightedDuration float64 `json:"weighted_duration"`
	// YieldSpreads maps "A_vs_B" agency pairs to mean yield differences in
	// basis points, for every pair with securities on both sides.
	YieldSpreads map[string]float64 `json:"yield_spreads"`
	// ByAgency breaks the snapshot down per agency.
	ByAgency map[Agency]AgencyStats `json:"by_agency"`
	// ByCoupon maps the coupon formatted to one decimal ("5.5") to mean price
	// across agencies, which surfaces the coupon stack. String keys because
	// encoding/json cannot marshal float-keyed maps.
	ByCoupon map[string]float64 `json:"by_coupon"`
}

// SummarizeTBA aggregates a TBA snapshot set. Securities with an unknown
// agency or non-positive price are skipped; an empty or fully-skipped input
// returns ErrEmptyPortfolio.
func SummarizeTBA(securities []TBASecurity) (*TBASummary, error) {
	var valid []TBASecurity
	for _, s := range securities {
		if !agencies[s.Agency] || s.Price <= 0 {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid tba securities", ErrEmptyPortfolio)
	}

	summary := &TBASummary{
		Count:              len(valid),
		AgencyDistribution: make(map[Agency]float64),
		YieldSpreads:       make(map[string]float64),
		ByAgency:           make(map[Agency]AgencyStats),
		ByCoupon:           make(map[string]float64),
	}

	var coupons, prices, yields []float64
	var priceSum, weightedYield, weightedDuration float64
	agencyCounts := make(map[Agency]int)
	type accum struct{ yield, price, duration float64 }
	agencySums := make(map[Agency]accum)
	couponPriceSum := make(map[float64]float64)
	couponCount := make(map[float64]int)

	for _, s := range valid {
		coupons = append(coupons, s.Coupon)
		prices = append(prices, s.Price)
		yields = append(yields, s.Yield)
		priceSum += s.Price
		weightedYield += s.Yield * s.Price
		weightedDuration += s.Duration * s.Price
		agencyCounts[s.Agency]++
		a := agencySums[s.Agency]
		a.yield += s.Yield
		a.price += s.Price
		a.duration += s.Duration
		agencySums[s.Agency] = a
		couponPriceSum[s.Coupon] += s.Price
		couponCount[s.Coupon]++
	}

	summary.Coupon = stat(coupons)
	summary.Price = stat(prices)
	summary.Yield = stat(yields)
	summary.WeightedYield = weightedYield / priceSum
	summary.WeightedDuration = weightedDuration / priceSum

	for agency, n := range agencyCounts {
		summary.AgencyDistribution[agency] = float64(n) / float64(len(valid))
		sums := agencySums[agency]
		summary.ByAgency[agency] = AgencyStats{
			Count:           n,
			AverageYield:    sums.yield / float64(n),
			AveragePrice:    sums.price / float64(n),
			AverageDuration: sums.duration / float64(n),
		}
	}
	for coupon, sum := range couponPriceSum {
		summary.ByCoupon[couponKey(coupon)] = sum / float64(couponCount[coupon])
	}

	// Spreads between every agency pair present, in basis points. Pairs are
	// ordered so keys are stable regardless of input order.
	present := make([]Agency, 0, len(agencyCounts))
	for agency := range agencyCounts {
		present = append(present, agency)
	}
	sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			a, b := present[i], present[j]
			key := fmt.Sprintf("%s_vs_%s", a, b)
			diff := summary.ByAgency[a].AverageYield - summary.ByAgency[b].AverageYield
			summary.YieldSpreads[key] = math.Round(diff*100*100) / 100 // bps, 2dp
		}
	}
	return summary, nil
}

// couponKey formats a coupon for the ByCoupon map. TBA coupons are quoted in
// half-point increments, so one decimal is lossless.
func couponKey(coupon float64) string {
	return fmt.Sprintf("%.1f", coupon)
}

// stat computes min/max/mean over a non-empty series.
func stat(xs []float64) Stat {
	s := Stat{Min: xs[0], Max: xs[0]}
	var sum float64
	for _, x := range xs {
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		sum += x
	}
	s.Mean = sum / float64(len(xs))
	return s
}
