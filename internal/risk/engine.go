// Package risk gates live execution.
package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

var ErrRejected = errors.New("trade rejected")

type Limits struct {
	MaxGas              string // human units of the base token; empty = no cap
	MaxConsecutiveFails int    // 0 = no breaker
}

// Engine is safe for concurrent use.
type Engine struct {
	lim Limits

	mu    sync.Mutex
	fails int
}

func NewEngine(lim Limits) (*Engine, error) {
	if lim.MaxGas != "" {
		if _, err := units.Parse(lim.MaxGas, 18); err != nil {
			return nil, fmt.Errorf("max gas: %w", err)
		}
	}
	return &Engine{lim: lim}, nil
}

// AllowTrade returns nil or an ErrRejected-wrapped reason.
func (e *Engine) AllowTrade(opp types.Opportunity) error {
	if !opp.Profitable || opp.NetProfit == nil {
		return fmt.Errorf("%w: %s", ErrRejected, opp.Reason)
	}
	if opp.Buy == nil || opp.Sell == nil {
		return fmt.Errorf("%w: incomplete quote pair", ErrRejected)
	}
	if e.lim.MaxGas != "" && opp.GasCost != nil {
		limit := units.MustParse(e.lim.MaxGas, opp.Base.Decimals)
		if opp.GasCost.Cmp(limit) > 0 {
			return fmt.Errorf("%w: gas %s above cap %s", ErrRejected,
				units.Format(opp.GasCost, opp.Base.Decimals), e.lim.MaxGas)
		}
	}
	if opp.ExpectedMinProfit != nil && opp.ExpectedMinProfit.Cmp(opp.NetProfit) > 0 {
		return fmt.Errorf("%w: expected min profit above net", ErrRejected)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lim.MaxConsecutiveFails > 0 && e.fails >= e.lim.MaxConsecutiveFails {
		return fmt.Errorf("%w: %d consecutive failures", ErrRejected, e.fails)
	}
	return nil
}

// Record feeds a trade outcome to the failure breaker.
func (e *Engine) Record(status types.TradeStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch status {
	case types.TradeSuccess:
		e.fails = 0
	case types.TradeFailed:
		e.fails++
	}
}
