// Package detector turns two legs of quotes into an arbitrage verdict.
package detector

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/gas"
	"github.com/you/dex-arb/internal/marketdata"
	imetrics "github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/retry"
	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

const (
	ReasonProfitable     = "profitable"
	ReasonBelowThreshold = "below threshold"
	ReasonNotProfitable  = "not profitable"
)

// NoQuotesReason is the reason for a leg with zero valid quotes.
func NoQuotesReason(in, out types.TokenRef) string {
	return fmt.Sprintf("no quotes for leg %s->%s", in.Symbol, out.Symbol)
}

func PairLabel(base, token types.TokenRef) string { return base.Symbol + "/" + token.Symbol }

// Evaluate picks the best buy and sell quotes and nets out gas. It has no side effects:
// the same inputs always give the same Opportunity. Sell quotes must have been priced
// on the best buy output. All amounts are in base units.
func Evaluate(pair string, base, token types.TokenRef, buy, sell []types.Quote, amountIn, gasCost, minProfit *big.Int) types.Opportunity {
	opp := types.Opportunity{
		Pair:      pair,
		Base:      base,
		Token:     token,
		AmountIn:  clone(amountIn),
		GasCost:   clone(gasCost),
		MinProfit: clone(minProfit),
	}

	bestBuy, ok := marketdata.BestOut(buy)
	if !ok {
		opp.Reason = NoQuotesReason(base, token)
		return opp
	}
	opp.Buy = &bestBuy
	opp.Intermediate = clone(bestBuy.AmountOut)

	bestSell, ok := marketdata.BestOut(sell)
	if !ok {
		opp.Reason = NoQuotesReason(token, base)
		return opp
	}
	opp.Sell = &bestSell
	opp.Returned = clone(bestSell.AmountOut)

	net := new(big.Int).Sub(opp.Returned, opp.AmountIn)
	net.Sub(net, opp.GasCost)
	opp.NetProfit = net

	switch {
	case net.Sign() > 0 && net.Cmp(opp.MinProfit) >= 0:
		opp.Profitable = true
		opp.Reason = ReasonProfitable
	case net.Sign() > 0:
		opp.Reason = ReasonBelowThreshold
	default:
		opp.Reason = ReasonNotProfitable
	}
	return opp
}

// ExpectedMinProfit is the floor passed on-chain: max(minProfit, net reduced by safetyBps).
func ExpectedMinProfit(net, minProfit *big.Int, safetyBps int64) *big.Int {
	floor := clone(minProfit)
	if net == nil || net.Sign() <= 0 {
		return floor
	}
	if safetyBps < 0 {
		safetyBps = 0
	}
	if safetyBps > 10_000 {
		safetyBps = 10_000
	}
	v := new(big.Int).Mul(net, big.NewInt(10_000-safetyBps))
	v.Quo(v, big.NewInt(10_000))
	if v.Cmp(floor) > 0 {
		return v
	}
	return floor
}

// Best returns the opportunity with the highest net profit among those with a full
// quote pair. Profits are compared at 18 decimals so different bases rank fairly.
func Best(opps []types.Opportunity) (types.Opportunity, bool) {
	var (
		best      types.Opportunity
		bestScore *big.Int
	)
	for _, o := range opps {
		if o.NetProfit == nil {
			continue
		}
		score := units.Rescale(o.NetProfit, o.Base.Decimals, 18)
		if bestScore == nil || score.Cmp(bestScore) > 0 {
			best, bestScore = o, score
		}
	}
	return best, bestScore != nil
}

func clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

type quoter interface {
	Collect(ctx context.Context, tokenIn, tokenOut types.TokenRef, amountIn *big.Int) []types.Quote
}

type gasEstimator interface {
	Estimate(ctx context.Context, gasUnits uint64, settlement types.TokenRef) gas.Estimate
}

// UnitsFunc returns a live gas-unit estimate for settling token at amountIn, or 0.
type UnitsFunc func(ctx context.Context, token types.TokenRef, amountIn *big.Int) uint64

type Config struct {
	TradeAmount string // human units of the base token
	MinProfit   string // human units of the base token
	SafetyBps   int64
	// UnitsTimeout bounds the live gas-unit lookup; on expiry the static figure is used.
	UnitsTimeout time.Duration
}

type Detector struct {
	q     quoter
	gas   gasEstimator
	units UnitsFunc
	cfg   Config
	log   *zap.Logger
}

func New(q quoter, g gasEstimator, cfg Config, log *zap.Logger) (*Detector, error) {
	if _, err := units.Parse(cfg.TradeAmount, 18); err != nil {
		return nil, fmt.Errorf("trade amount: %w", err)
	}
	if _, err := units.Parse(cfg.MinProfit, 18); err != nil {
		return nil, fmt.Errorf("min profit: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.UnitsTimeout <= 0 {
		cfg.UnitsTimeout = gas.DefaultTimeout
	}
	return &Detector{q: q, gas: g, cfg: cfg, log: log}, nil
}

// WithGasUnits plugs in a live gas-unit estimator for the settlement call.
func (d *Detector) WithGasUnits(f UnitsFunc) *Detector {
	d.units = f
	return d
}

func (d *Detector) liveUnits(ctx context.Context, base types.TokenRef, amountIn *big.Int) uint64 {
	if d.units == nil {
		return 0
	}
	n, err := retry.WithTimeout(ctx, d.cfg.UnitsTimeout, uint64(0), func(ctx context.Context) (uint64, error) {
		return d.units(ctx, base, amountIn), nil
	})
	if err != nil {
		d.log.Warn("gas units lookup timed out, using static", zap.String("token", base.Symbol), zap.Error(err))
		return 0
	}
	return n
}

// AmountIn is the configured trade size in base units of base.
func (d *Detector) AmountIn(base types.TokenRef) *big.Int {
	return units.MustParse(d.cfg.TradeAmount, base.Decimals)
}

// EvaluatePair runs the buy leg, then the sell leg on the best buy output, then prices gas.
func (d *Detector) EvaluatePair(ctx context.Context, base, token types.TokenRef) types.Opportunity {
	amountIn := d.AmountIn(base)
	minProfit := units.MustParse(d.cfg.MinProfit, base.Decimals)
	pair := PairLabel(base, token)

	buy := d.q.Collect(ctx, base, token, amountIn)
	var (
		sell    []types.Quote
		gasCost *big.Int
	)
	if best, ok := marketdata.BestOut(buy); ok {
		sell = d.q.Collect(ctx, token, base, best.AmountOut)
		if len(sell) > 0 {
			gasUnits := d.liveUnits(ctx, base, amountIn)
			gasCost = d.gas.Estimate(ctx, gasUnits, base).Cost
		}
	}

	opp := Evaluate(pair, base, token, buy, sell, amountIn, gasCost, minProfit)
	opp.ID = uuid.NewString()
	opp.Ts = time.Now()
	if opp.Profitable {
		opp.ExpectedMinProfit = ExpectedMinProfit(opp.NetProfit, opp.MinProfit, d.cfg.SafetyBps)
	}

	verdict := "no_quotes"
	switch {
	case opp.Profitable:
		verdict = "profitable"
	case opp.NetProfit != nil:
		verdict = "unprofitable"
	}
	imetrics.Evaluations.WithLabelValues(verdict).Inc()

	fields := []zap.Field{
		zap.String("pair", pair),
		zap.String("reason", opp.Reason),
		zap.Int("buy_quotes", len(buy)),
		zap.Int("sell_quotes", len(sell)),
	}
	if opp.Buy != nil && opp.Sell != nil {
		fields = append(fields,
			zap.String("buy_venue", string(opp.Buy.Venue)),
			zap.Uint32("buy_fee", opp.Buy.FeeTier),
			zap.String("sell_venue", string(opp.Sell.Venue)),
			zap.Uint32("sell_fee", opp.Sell.FeeTier),
			zap.String("net", units.Format(opp.NetProfit, base.Decimals)),
			zap.String("gas", units.Format(opp.GasCost, base.Decimals)),
		)
	}
	if opp.Profitable {
		d.log.Info("opportunity found", fields...)
	} else {
		d.log.Debug("pair evaluated", fields...)
	}
	return opp
}
