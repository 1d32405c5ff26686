package v2

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/types"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

// Router quotes UniswapV2-style routers (Sushi, BaseSwap, Camelot v2) via getAmountsOut.
type Router struct {
	id     types.VenueID
	kind   types.VenueKind
	log    *zap.Logger
	c      ethereum.ContractCaller
	abi    abi.ABI
	router common.Address
	bridge types.TokenRef
}

func New(vc types.VenueConfig, deps core.Deps) (*Router, error) {
	rABI, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, err
	}
	if vc.Address == (common.Address{}) {
		return nil, fmt.Errorf("router address is not configured")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		id:     vc.ID,
		kind:   vc.Kind,
		log:    log.With(zap.String("venue", string(vc.ID))),
		c:      deps.Caller,
		abi:    rABI,
		router: vc.Address,
		bridge: deps.Bridge,
	}, nil
}

// Quote сначала пробует [in,out], затем [in,bridge,out].
func (r *Router) Quote(ctx context.Context, req core.Request) (types.Quote, error) {
	in, out := req.TokenIn.Address, req.TokenOut.Address

	amount, directErr := r.AmountsOut(ctx, req.AmountIn, []common.Address{in, out})
	if directErr == nil && amount.Sign() > 0 {
		return types.Quote{Venue: r.id, Kind: r.kind, AmountOut: amount}, nil
	}
	if r.bridge.Address == (common.Address{}) || in == r.bridge.Address || out == r.bridge.Address {
		return types.Quote{}, classify(directErr)
	}
	r.log.Debug("direct path failed, trying bridge", zap.String("bridge", r.bridge.Symbol), zap.Error(directErr))

	amount, err := r.AmountsOut(ctx, req.AmountIn, []common.Address{in, r.bridge.Address, out})
	if err != nil || amount.Sign() == 0 {
		return types.Quote{}, classify(err)
	}
	return types.Quote{Venue: r.id, Kind: r.kind, AmountOut: amount, Path: []common.Address{r.bridge.Address}}, nil
}

// AmountsOut возвращает последний элемент getAmountsOut по path.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := r.c.CallContract(ctx, ethereum.CallMsg{To: &r.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	outs, err := r.abi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("%w: decode getAmountsOut: %v", core.ErrBadResponse, err)
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("%w: bad amounts length", core.ErrBadResponse)
	}
	return amounts[len(amounts)-1], nil
}

// classify: revert (нет пары / нет ликвидности) и нулевой выход — это отсутствие котировки.
func classify(err error) error {
	switch {
	case err == nil:
		return core.ErrNoQuote
	case core.IsRevert(err):
		return fmt.Errorf("%w: %v", core.ErrNoPool, err)
	default:
		return err
	}
}
