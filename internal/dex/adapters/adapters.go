// Package adapters wires every venue kind to its concrete adapter.
package adapters

import (
	"github.com/you/dex-arb/internal/dex/balancer"
	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/dex/stableswap"
	"github.com/you/dex-arb/internal/dex/univ3"
	v2 "github.com/you/dex-arb/internal/dex/v2"
	"github.com/you/dex-arb/internal/types"
)

// Default returns a registry with all built-in venue kinds.
func Default() core.Registry {
	r := core.Registry{}
	r.Register(types.KindSingleHopQuoter, func(vc types.VenueConfig, d core.Deps) (core.Adapter, error) {
		return univ3.NewSingleHop(vc, d)
	})
	r.Register(types.KindMultiHopQuoter, func(vc types.VenueConfig, d core.Deps) (core.Adapter, error) {
		return univ3.NewMultiHop(vc, d)
	})
	r.Register(types.KindConstantProductRouter, func(vc types.VenueConfig, d core.Deps) (core.Adapter, error) {
		return v2.New(vc, d)
	})
	r.Register(types.KindStableSwapRouter, func(vc types.VenueConfig, d core.Deps) (core.Adapter, error) {
		return stableswap.New(vc, d)
	})
	r.Register(types.KindBatchVaultRouter, func(vc types.VenueConfig, d core.Deps) (core.Adapter, error) {
		return balancer.New(vc, d)
	})
	return r
}
