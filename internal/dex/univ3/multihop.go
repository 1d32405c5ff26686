package univ3

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/types"
	"go.uber.org/zap"
)

// MultiHop tries the direct pool first and otherwise routes through the bridge token.
type MultiHop struct {
	*SingleHop
	bridge types.TokenRef
}

func NewMultiHop(vc types.VenueConfig, deps core.Deps) (*MultiHop, error) {
	if deps.Bridge.Address == (common.Address{}) {
		return nil, fmt.Errorf("multi-hop quoter needs a bridge token")
	}
	sh, err := NewSingleHop(vc, deps)
	if err != nil {
		return nil, err
	}
	return &MultiHop{SingleHop: sh, bridge: deps.Bridge}, nil
}

func (m *MultiHop) Quote(ctx context.Context, req core.Request) (types.Quote, error) {
	in, out := req.TokenIn.Address, req.TokenOut.Address

	amount, fee, directErr := m.bestTier(ctx, in, out, req.AmountIn)
	if directErr == nil {
		return types.Quote{Venue: m.id, Kind: m.kind, FeeTier: fee, AmountOut: amount}, nil
	}
	if in == m.bridge.Address || out == m.bridge.Address {
		return types.Quote{}, directErr
	}
	m.log.Debug("direct route failed, trying bridge", zap.String("bridge", m.bridge.Symbol), zap.Error(directErr))

	mid, fee1, err := m.bestTier(ctx, in, m.bridge.Address, req.AmountIn)
	if err != nil {
		return types.Quote{}, bridgeErr(directErr, err)
	}
	amount, _, err = m.bestTier(ctx, m.bridge.Address, out, mid)
	if err != nil {
		return types.Quote{}, bridgeErr(directErr, err)
	}
	return types.Quote{
		Venue:     m.id,
		Kind:      m.kind,
		FeeTier:   fee1,
		AmountOut: amount,
		Path:      []common.Address{m.bridge.Address},
	}, nil
}

// bridgeErr keeps transport failures visible; otherwise the pair is simply absent on this venue.
func bridgeErr(direct, bridged error) error {
	if !core.IsAbsence(bridged) {
		return bridged
	}
	if !core.IsAbsence(direct) {
		return direct
	}
	return fmt.Errorf("direct: %v; via bridge: %w", direct, bridged)
}
