package adapters

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/dex-arb/internal/dex/balancer"
	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/dex/stableswap"
	"github.com/you/dex-arb/internal/dex/univ3"
	v2 "github.com/you/dex-arb/internal/dex/v2"
	"github.com/you/dex-arb/internal/types"
)

func TestDefault_CoversEveryKind(t *testing.T) {
	cfgs := []types.VenueConfig{
		{ID: "uniswap_v3", Kind: types.KindSingleHopQuoter, Address: common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a")},
		{ID: "uniswap_v3_multi", Kind: types.KindMultiHopQuoter, Address: common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a")},
		{ID: "sushi_v2", Kind: types.KindConstantProductRouter, Address: common.HexToAddress("0x6e086AbE2ECB3f660b15Fb3a3ef0028BE6a4a1e0")},
		{ID: "aerodrome", Kind: types.KindStableSwapRouter, Variant: stableswap.VariantSolidly, Address: common.HexToAddress("0x420DD381b31aEf6683db6B902084cB0FFECe40Da")},
		{ID: "balancer", Kind: types.KindBatchVaultRouter},
	}
	bridge := types.TokenRef{Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18}
	venues, err := Default().Build(cfgs, core.Deps{Bridge: bridge})
	require.NoError(t, err)
	require.Len(t, venues, len(cfgs))

	assert.IsType(t, &univ3.SingleHop{}, venues[0].Adapter)
	assert.IsType(t, &univ3.MultiHop{}, venues[1].Adapter)
	assert.IsType(t, &v2.Router{}, venues[2].Adapter)
	assert.IsType(t, &stableswap.Router{}, venues[3].Adapter)
	assert.IsType(t, &balancer.Adapter{}, venues[4].Adapter)
}

func TestDefault_BadVariantFailsBuild(t *testing.T) {
	_, err := Default().Build([]types.VenueConfig{{ID: "x", Kind: types.KindStableSwapRouter, Variant: "bogus", Address: common.HexToAddress("0x1")}}, core.Deps{})
	assert.Error(t, err)
}
