// Package stableswap quotes routers that pick between stable and volatile pools on their own.
package stableswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/types"
)

const (
	VariantSolidly = "solidly"
	VariantCurve   = "curve"
)

// hopPricer is one router flavour's single-hop price call.
type hopPricer interface {
	amountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

type Router struct {
	id     types.VenueID
	kind   types.VenueKind
	log    *zap.Logger
	bridge types.TokenRef
	p      hopPricer
}

// New picks the flavour from vc.Variant; empty means solidly.
func New(vc types.VenueConfig, deps core.Deps) (*Router, error) {
	if vc.Address == (common.Address{}) {
		return nil, fmt.Errorf("router address is not configured")
	}
	var (
		p   hopPricer
		err error
	)
	switch vc.Variant {
	case "", VariantSolidly:
		p, err = newSolidly(deps.Caller, vc.Address)
	case VariantCurve:
		p, err = newCurve(deps.Caller, vc.Address)
	default:
		return nil, fmt.Errorf("unknown stable-swap variant %q", vc.Variant)
	}
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		id:     vc.ID,
		kind:   vc.Kind,
		log:    log.With(zap.String("venue", string(vc.ID))),
		bridge: deps.Bridge,
		p:      p,
	}, nil
}

func (r *Router) Quote(ctx context.Context, req core.Request) (types.Quote, error) {
	in, out := req.TokenIn.Address, req.TokenOut.Address

	amount, directErr := r.p.amountOut(ctx, in, out, req.AmountIn)
	if directErr == nil && amount.Sign() > 0 {
		return types.Quote{Venue: r.id, Kind: r.kind, AmountOut: amount}, nil
	}
	if r.bridge.Address == (common.Address{}) || in == r.bridge.Address || out == r.bridge.Address {
		return types.Quote{}, classify(directErr)
	}
	r.log.Debug("direct quote failed, trying bridge", zap.String("bridge", r.bridge.Symbol), zap.Error(directErr))

	mid, err := r.p.amountOut(ctx, in, r.bridge.Address, req.AmountIn)
	if err != nil || mid.Sign() == 0 {
		return types.Quote{}, classify(err)
	}
	amount, err = r.p.amountOut(ctx, r.bridge.Address, out, mid)
	if err != nil || amount.Sign() == 0 {
		return types.Quote{}, classify(err)
	}
	return types.Quote{Venue: r.id, Kind: r.kind, AmountOut: amount, Path: []common.Address{r.bridge.Address}}, nil
}

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
