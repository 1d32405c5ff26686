// Package execution hands profitable opportunities to the settlement contract.
package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

type settler interface {
	Execute(ctx context.Context, token common.Address, amount, minProfit *big.Int) (*gethtypes.Receipt, common.Hash, error)
}

type Risk interface {
	AllowTrade(opp types.Opportunity) error
	Record(status types.TradeStatus)
}

type Options struct {
	ScanOnly bool
	Network  string
	Timeout  time.Duration // send + confirmation
}

type Executor struct {
	s    settler
	risk Risk
	opts Options
	log  *zap.Logger
}

func NewExecutor(s settler, risk Risk, opts Options, log *zap.Logger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{s: s, risk: risk, opts: opts, log: log}
}

// Execute never retries; failures come back as a failed record.
func (e *Executor) Execute(ctx context.Context, opp types.Opportunity) types.TradeRecord {
	rec := types.TradeRecord{
		OpportunityID: opp.ID,
		Pair:          opp.Pair,
		Network:       e.opts.Network,
		Ts:            time.Now(),
	}
	log := e.log.With(zap.String("pair", opp.Pair), zap.String("opportunity", opp.ID))

	if e.opts.ScanOnly || e.s == nil {
		rec.Status = types.TradeSkipped
		rec.Error = "scan-only mode"
		log.Info("scan-only: not executing",
			zap.String("net", units.Format(opp.NetProfit, opp.Base.Decimals)))
		return rec
	}
	if e.risk != nil {
		if err := e.risk.AllowTrade(opp); err != nil {
			rec.Status = types.TradeSkipped
			rec.Error = err.Error()
			log.Info("trade blocked by risk", zap.Error(err))
			return rec
		}
	}

	minProfit := opp.ExpectedMinProfit
	if minProfit == nil {
		minProfit = opp.MinProfit
	}
	if minProfit == nil {
		minProfit = new(big.Int)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	rcpt, hash, err := e.s.Execute(ctx, opp.Base.Address, opp.AmountIn, minProfit)
	if hash != (common.Hash{}) {
		rec.TxHash = hash.Hex()
	}
	switch {
	case err != nil:
		rec.Status = types.TradeFailed
		rec.Error = err.Error()
		log.Error("settlement failed", zap.Error(err))
	case rcpt.Status != gethtypes.ReceiptStatusSuccessful:
		rec.Status = types.TradeFailed
		rec.Error = "transaction reverted"
		fillReceipt(&rec, rcpt)
		log.Error("settlement reverted", zap.String("tx", rec.TxHash), zap.Uint64("block", rec.BlockNumber))
	default:
		rec.Status = types.TradeSuccess
		// the contract reports no amount, so the evaluated net stands in
		if opp.NetProfit != nil {
			rec.RealizedProfit = new(big.Int).Set(opp.NetProfit)
		}
		fillReceipt(&rec, rcpt)
		log.Info("settlement confirmed",
			zap.String("tx", rec.TxHash),
			zap.Uint64("gas_used", rec.GasUsed),
			zap.String("profit", units.Format(rec.RealizedProfit, opp.Base.Decimals)))
	}
	if e.risk != nil {
		e.risk.Record(rec.Status)
	}
	return rec
}

func fillReceipt(rec *types.TradeRecord, r *gethtypes.Receipt) {
	rec.GasUsed = r.GasUsed
	rec.GasPrice = r.EffectiveGasPrice
	if r.BlockNumber != nil {
		rec.BlockNumber = r.BlockNumber.Uint64()
	}
}
