package univ3

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/multicall"
	"github.com/you/dex-arb/internal/types"
	"go.uber.org/zap"
)

var DefaultFeeTiers = []uint32{500, 3000, 10000}

// SingleHop quotes one pool per fee tier through QuoterV2.
type SingleHop struct {
	id     types.VenueID
	kind   types.VenueKind
	log    *zap.Logger
	c      ethereum.ContractCaller
	q2abi  abi.ABI
	quoter common.Address
	tiers  []uint32

	pools *PoolChecker // nil: no factory pre-check
	batch *MultiQuoter // nil: one eth_call per tier
}

func NewSingleHop(vc types.VenueConfig, deps core.Deps) (*SingleHop, error) {
	q2abi, err := parseQuoterABI()
	if err != nil {
		return nil, err
	}
	if vc.Address == (common.Address{}) {
		return nil, fmt.Errorf("quoter v2 address is not configured")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &SingleHop{
		id:     vc.ID,
		kind:   vc.Kind,
		log:    log.With(zap.String("venue", string(vc.ID))),
		c:      deps.Caller,
		q2abi:  q2abi,
		quoter: vc.Address,
		tiers:  sortedTiers(vc.FeeTiers),
	}
	if vc.Factory != (common.Address{}) {
		if s.pools, err = NewPoolChecker(deps.Caller, vc.Factory); err != nil {
			return nil, err
		}
	}
	if vc.Multicall != (common.Address{}) {
		mc, err := multicall.New(deps.Caller, vc.Multicall)
		if err != nil {
			return nil, err
		}
		if s.batch, err = NewMultiQuoter(mc, vc.Address, s.log); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func sortedTiers(in []uint32) []uint32 {
	if len(in) == 0 {
		in = DefaultFeeTiers
	}
	out := append([]uint32(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Quote walks fee tiers in ascending order and returns the first non-zero output.
func (s *SingleHop) Quote(ctx context.Context, req core.Request) (types.Quote, error) {
	amount, fee, err := s.bestTier(ctx, req.TokenIn.Address, req.TokenOut.Address, req.AmountIn)
	if err != nil {
		return types.Quote{}, err
	}
	return types.Quote{Venue: s.id, Kind: s.kind, FeeTier: fee, AmountOut: amount}, nil
}

func (s *SingleHop) bestTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, uint32, error) {
	tiers := s.tiers
	if s.pools != nil {
		tiers = s.tiersWithPool(ctx, tokenIn, tokenOut)
		if len(tiers) == 0 {
			return nil, 0, fmt.Errorf("%s→%s: %w", tokenIn.Hex(), tokenOut.Hex(), core.ErrNoPool)
		}
	}

	if s.batch != nil {
		tq, err := s.batch.QuoteTiers(ctx, tokenIn, tokenOut, amountIn, tiers)
		if err != nil {
			return nil, 0, err
		}
		for _, q := range tq {
			if q.Err == nil && q.AmountOut != nil && q.AmountOut.Sign() > 0 {
				return q.AmountOut, q.Fee, nil
			}
		}
		return nil, 0, fmt.Errorf("no successful quote for any fee tier: %w", core.ErrNoQuote)
	}

	var transportErr error
	for _, fee := range tiers {
		amount, err := s.quoteTier(ctx, tokenIn, tokenOut, amountIn, fee)
		switch {
		case err == nil && amount.Sign() > 0:
			return amount, fee, nil
		case err == nil, core.IsRevert(err):
			s.log.Debug("fee tier has no liquidity", zap.Uint32("fee", fee), zap.Error(err))
		default:
			s.log.Debug("fee tier quote failed", zap.Uint32("fee", fee), zap.Error(err))
			transportErr = err
		}
	}
	if transportErr != nil {
		return nil, 0, transportErr
	}
	return nil, 0, fmt.Errorf("no successful quote for any fee tier: %w", core.ErrNoQuote)
}

// tiersWithPool drops tiers whose factory lookup says "no pool". Lookup errors keep the tier.
func (s *SingleHop) tiersWithPool(ctx context.Context, a, b common.Address) []uint32 {
	out := make([]uint32, 0, len(s.tiers))
	for _, fee := range s.tiers {
		pool, err := s.pools.Pool(ctx, a, b, fee)
		if err == nil && pool == (common.Address{}) {
			continue
		}
		out = append(out, fee)
	}
	return out
}

func (s *SingleHop) quoteTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (*big.Int, error) {
	data, err := s.q2abi.Pack("quoteExactInputSingle", buildExactInputParams(tokenIn, tokenOut, amountIn, fee))
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInputSingle: %w", err)
	}
	res, err := s.c.CallContract(ctx, ethereum.CallMsg{To: &s.quoter, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("fee %d: %w", fee, err)
	}
	return decodeAmountOut(s.q2abi, "quoteExactInputSingle", res)
}
