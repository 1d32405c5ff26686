package metrics

import (
	"time"

	"github.com/you/dex-arb/internal/types"
)

// Accumulator carries run totals from one cycle to the next. It is a plain value:
// each cycle receives a copy and returns the updated one.
type Accumulator struct {
	TotalChecks       int
	SuccessfulFetches int
	FailedFetches     int
	TotalResponseTime time.Duration

	OpportunitiesFound int

	TradesTotal         int
	TradesSuccessful    int
	TradesFailed        int
	ConsecutiveFailures int
}

// ObserveFetch records one pair evaluation and how long it took.
func (a Accumulator) ObserveFetch(ok bool, took time.Duration) Accumulator {
	a.TotalChecks++
	if ok {
		a.SuccessfulFetches++
	} else {
		a.FailedFetches++
	}
	a.TotalResponseTime += took
	return a
}

func (a Accumulator) ObserveOpportunity() Accumulator {
	a.OpportunitiesFound++
	return a
}

// ObserveTrade folds an executor result in. Skipped trades only count toward the total.
func (a Accumulator) ObserveTrade(rec types.TradeRecord) Accumulator {
	a.TradesTotal++
	switch rec.Status {
	case types.TradeSuccess:
		a.TradesSuccessful++
		a.ConsecutiveFailures = 0
	case types.TradeFailed:
		a.TradesFailed++
		a.ConsecutiveFailures++
	}
	Trades.WithLabelValues(string(rec.Status)).Inc()
	return a
}

func (a Accumulator) AvgResponseTime() time.Duration {
	if a.TotalChecks == 0 {
		return 0
	}
	return a.TotalResponseTime / time.Duration(a.TotalChecks)
}

// SuccessRate is the share of successful fetches in percent.
func (a Accumulator) SuccessRate() float64 {
	if a.TotalChecks == 0 {
		return 0
	}
	return float64(a.SuccessfulFetches) / float64(a.TotalChecks) * 100
}
