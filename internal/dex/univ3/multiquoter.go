package univ3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/you/dex-arb/internal/multicall"
	"go.uber.org/zap"
)

// MultiQuoter quotes every fee tier of a pair in a single multicall round trip.
type MultiQuoter struct {
	log    *zap.Logger
	mc     multicall.IClient
	q2abi  abi.ABI
	quoter common.Address
}

// TierQuote is the per-tier outcome, index-aligned with the requested tiers.
type TierQuote struct {
	Fee       uint32
	AmountOut *big.Int
	Err       error
}

func NewMultiQuoter(mc multicall.IClient, quoter common.Address, log *zap.Logger) (*MultiQuoter, error) {
	q2abi, err := parseQuoterABI()
	if err != nil {
		return nil, err
	}
	if quoter == (common.Address{}) {
		return nil, fmt.Errorf("quoter v2 address is not configured")
	}
	return &MultiQuoter{log: log, mc: mc, q2abi: q2abi, quoter: quoter}, nil
}

func (mq *MultiQuoter) QuoteTiers(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, tiers []uint32) ([]TierQuote, error) {
	out := make([]TierQuote, len(tiers))
	calls := make([]multicall.Call, 0, len(tiers))
	idx := make([]int, 0, len(tiers))

	for i, fee := range tiers {
		out[i].Fee = fee
		callData, err := mq.q2abi.Pack("quoteExactInputSingle", buildExactInputParams(tokenIn, tokenOut, amountIn, fee))
		if err != nil {
			mq.log.Warn("failed to pack quote data", zap.Error(err), zap.Uint32("fee", fee))
			out[i].Err = fmt.Errorf("pack quoteExactInputSingle: %w", err)
			continue
		}
		calls = append(calls, multicall.Call{Target: mq.quoter, CallData: callData})
		idx = append(idx, i)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("no valid calls could be constructed")
	}

	results, err := mq.mc.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("multicall aggregate failed: %w", err)
	}

	for j, res := range results {
		i := idx[j]
		if !res.Success {
			out[i].Err = fmt.Errorf("fee %d: quote reverted", tiers[i])
			continue
		}
		amount, err := decodeAmountOut(mq.q2abi, "quoteExactInputSingle", res.ReturnData)
		if err != nil {
			out[i].Err = err
			continue
		}
		out[i].AmountOut = amount
	}
	return out, nil
}
