// Package gas prices the settlement transaction in settlement-token units.
package gas

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/marketdata"
	imetrics "github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/retry"
	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

const (
	DefaultGasUnits    uint64 = 500_000
	DefaultNativePrice        = "2000"
	DefaultTimeout            = 1500 * time.Millisecond
)

var (
	DefaultGasPrice = big.NewInt(20_000_000_000) // 20 gwei
	defaultTip      = big.NewInt(1_000_000_000)
	weiPerNative    = units.Pow10(18)
)

// Reader is the slice of ethclient the estimator needs.
type Reader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// quoter prices the native token through the venue fan-out.
type quoter interface {
	Collect(ctx context.Context, tokenIn, tokenOut types.TokenRef, amountIn *big.Int) []types.Quote
}

type Config struct {
	Native      types.TokenRef // wrapped native token, 18 decimals
	GasPrice    *big.Int       // static fallback
	GasUnits    uint64         // static fallback
	NativePrice string         // static fallback, human units of the settlement token
	Timeout     time.Duration  // bound on the node gas-price lookup
}

// Estimate is a best-effort gas cost with a note of which inputs were static.
type Estimate struct {
	GasPrice    *big.Int
	GasUnits    uint64
	NativePrice *big.Int // settlement units per 1 native token
	Cost        *big.Int // settlement units

	StaticGasPrice    bool
	StaticGasUnits    bool
	StaticNativePrice bool
}

type Estimator struct {
	r   Reader
	q   quoter
	cfg Config
	log *zap.Logger
}

func New(r Reader, q quoter, cfg Config, log *zap.Logger) *Estimator {
	if cfg.GasPrice == nil || cfg.GasPrice.Sign() <= 0 {
		cfg.GasPrice = DefaultGasPrice
	}
	if cfg.GasUnits == 0 {
		cfg.GasUnits = DefaultGasUnits
	}
	if cfg.NativePrice == "" {
		cfg.NativePrice = DefaultNativePrice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{r: r, q: q, cfg: cfg, log: log}
}

// Estimate never fails. gasUnits of 0 means "no live estimate available".
func (e *Estimator) Estimate(ctx context.Context, gasUnits uint64, settlement types.TokenRef) Estimate {
	est := Estimate{GasUnits: gasUnits}
	if est.GasUnits == 0 {
		est.GasUnits = e.cfg.GasUnits
		est.StaticGasUnits = true
		imetrics.GasFallbacks.WithLabelValues("units").Inc()
	}

	est.GasPrice = e.gasPrice(ctx)
	if est.GasPrice == nil {
		est.GasPrice = new(big.Int).Set(e.cfg.GasPrice)
		est.StaticGasPrice = true
		imetrics.GasFallbacks.WithLabelValues("price").Inc()
	}

	est.NativePrice = e.nativePrice(ctx, settlement)
	if est.NativePrice == nil {
		p, err := units.Parse(e.cfg.NativePrice, settlement.Decimals)
		if err != nil {
			p = units.Rescale(big.NewInt(2000), 0, settlement.Decimals)
		}
		est.NativePrice = p
		est.StaticNativePrice = true
		imetrics.GasFallbacks.WithLabelValues("native_price").Inc()
	}

	wei := new(big.Int).Mul(est.GasPrice, new(big.Int).SetUint64(est.GasUnits))
	est.Cost = wei.Mul(wei, est.NativePrice)
	est.Cost.Quo(est.Cost, weiPerNative)

	imetrics.GasCost.Set(units.Float(est.Cost, settlement.Decimals))
	e.log.Debug("gas estimate",
		zap.String("gas_price", est.GasPrice.String()),
		zap.Uint64("gas_units", est.GasUnits),
		zap.String("native_price", units.Format(est.NativePrice, settlement.Decimals)),
		zap.String("cost", units.Format(est.Cost, settlement.Decimals)),
		zap.String("settlement", settlement.Symbol),
	)
	return est
}

func (e *Estimator) gasPrice(ctx context.Context) *big.Int {
	if e.r == nil {
		return nil
	}
	p, err := retry.WithTimeout(ctx, e.cfg.Timeout, (*big.Int)(nil), e.nodeGasPrice)
	if err != nil || p == nil || p.Sign() <= 0 {
		e.log.Warn("gas price unavailable, using static", zap.Error(err))
		return nil
	}
	return p
}

// nodeGasPrice prefers base fee plus tip and falls back to the legacy gas price.
func (e *Estimator) nodeGasPrice(ctx context.Context) (*big.Int, error) {
	if h, err := e.r.HeaderByNumber(ctx, nil); err == nil && h != nil && h.BaseFee != nil {
		tip, err := e.r.SuggestGasTipCap(ctx)
		if err != nil || tip == nil {
			tip = defaultTip
		}
		return new(big.Int).Add(h.BaseFee, tip), nil
	}
	return e.r.SuggestGasPrice(ctx)
}

func (e *Estimator) nativePrice(ctx context.Context, settlement types.TokenRef) *big.Int {
	if settlement.Address == e.cfg.Native.Address {
		return units.Pow10(settlement.Decimals)
	}
	if e.q == nil || e.cfg.Native.Address == (common.Address{}) {
		return nil
	}
	best, ok := marketdata.BestOut(e.q.Collect(ctx, e.cfg.Native, settlement, new(big.Int).Set(weiPerNative)))
	if !ok {
		e.log.Warn("native price quote unavailable, using static",
			zap.String("pair", e.cfg.Native.Symbol+"->"+settlement.Symbol),
			zap.String("static", e.cfg.NativePrice))
		return nil
	}
	return best.AmountOut
}

// Units asks the node for a gas estimate of msg; 0 means the caller should use the static figure.
func Units(ctx context.Context, g ethereum.GasEstimator, msg ethereum.CallMsg) uint64 {
	if g == nil {
		return 0
	}
	n, err := g.EstimateGas(ctx, msg)
	if err != nil {
		return 0
	}
	return n
}
