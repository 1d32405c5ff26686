package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/dex-arb/internal/types"
)

var envKeys = []string{
	"NETWORK", "RPC_URL", "WALLET_KEY", "CONTRACT_ADDRESS", "TRADE_AMOUNT", "MIN_PROFIT",
	"CHECK_INTERVAL", "MAX_RETRIES", "SCAN_ONLY", "MAX_PARALLEL", "QUOTE_TIMEOUT_MS",
	"CURVE_ROUTER", "BALANCER_VAULT", "BALANCER_POOLID_USDC_DAI", "REDIS_ADDR", "POSTGRES_DSN", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_BasePresetDefaults(t *testing.T) {
	clearEnv(t)

	c, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "base", c.Network)
	assert.EqualValues(t, 8453, c.Chain.ChainID)
	assert.Equal(t, "https://mainnet.base.org", c.Chain.RPCHTTP)
	assert.Len(t, c.Tokens, 5)
	assert.Len(t, c.PairList(), 7)
	assert.Len(t, c.VenueConfigs(), 5)
	assert.True(t, c.ScanOnly())
	assert.Equal(t, "10", c.Trade.Amount)
	assert.Equal(t, "0.5", c.Trade.MinProfit)
	assert.EqualValues(t, 500, c.Trade.SafetyBps)
	assert.Equal(t, 5*time.Second, c.CheckInterval())
	assert.Equal(t, 30*time.Second, c.Cooldown())
	assert.Equal(t, 1500*time.Millisecond, c.QuoteTimeout())
	assert.Equal(t, 10, c.Timings.HealthEvery)

	assert.Equal(t, "WETH", c.BridgeToken().Symbol)
	assert.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000006"), c.NativeToken().Address)

	first := c.PairList()[0]
	assert.Equal(t, "USDC/DAI", first.Label())
	assert.EqualValues(t, 6, first.Base.Decimals)
	assert.EqualValues(t, 18, first.Token.Decimals)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETWORK", "arbitrum")
	t.Setenv("TRADE_AMOUNT", "25")
	t.Setenv("MIN_PROFIT", "1.25")
	t.Setenv("CHECK_INTERVAL", "1000")
	t.Setenv("MAX_PARALLEL", "2")
	t.Setenv("QUOTE_TIMEOUT_MS", "800")
	t.Setenv("RPC_URL", "http://localhost:8545")

	c, err := Load("", "")
	require.NoError(t, err)

	assert.EqualValues(t, 42161, c.Chain.ChainID)
	assert.Equal(t, "http://localhost:8545", c.Chain.RPCHTTP)
	assert.Equal(t, "25", c.Trade.Amount)
	assert.Equal(t, "1.25", c.Trade.MinProfit)
	assert.Equal(t, time.Second, c.CheckInterval())
	assert.Equal(t, 2, c.Quote.MaxParallel)
	assert.Equal(t, 800*time.Millisecond, c.QuoteTimeout())
	assert.Len(t, c.PairList(), 10)
}

func TestLoad_LiveModeNeedsWalletAndContract(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCAN_ONLY", "0")

	_, err := Load("", "")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "wallet key")
	assert.Contains(t, err.Error(), "settlement contract")

	t.Setenv("WALLET_KEY", "0x01")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	c, err := Load("", "")
	require.NoError(t, err)
	assert.False(t, c.ScanOnly())
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), c.ContractAddress())
}

func TestLoad_BadNumberEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHECK_INTERVAL", "soon")

	_, err := Load("", "")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_OptionalVenuesFromEnv(t *testing.T) {
	clearEnv(t)
	poolID := "0x" + strings.Repeat("ab", 32)
	t.Setenv("CURVE_ROUTER", "0x2222222222222222222222222222222222222222")
	t.Setenv("BALANCER_VAULT", "0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	t.Setenv("BALANCER_POOLID_USDC_DAI", poolID)

	c, err := Load("", "")
	require.NoError(t, err)

	vcs := c.VenueConfigs()
	require.Len(t, vcs, 7)

	curve := vcs[5]
	assert.Equal(t, types.VenueID("curve"), curve.ID)
	assert.Equal(t, types.KindStableSwapRouter, curve.Kind)
	assert.Equal(t, "curve", curve.Variant)

	bal := vcs[6]
	assert.Equal(t, types.KindBatchVaultRouter, bal.Kind)
	usdc, ok := c.Token("usdc")
	require.True(t, ok)
	dai, ok := c.Token("DAI")
	require.True(t, ok)
	id, ok := bal.PoolID(dai, usdc)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash(poolID), id)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("NETWORK"))
	require.NoError(t, os.Unsetenv("TRADE_AMOUNT"))
	env := writeFile(t, ".env", "NETWORK=arbitrum\nTRADE_AMOUNT=3\n")

	c, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "arbitrum", c.Network)
	assert.Equal(t, "3", c.Trade.Amount)
}

func TestLoad_YAMLCatalogWithBases(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.yaml", `
network: custom
chain:
  rpc_http: http://node:8545
  chain_id: 31337
tokens:
  - {symbol: USDC, address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", decimals: 6}
  - {symbol: DAI, address: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", decimals: 18}
  - {symbol: WETH, address: "0x4200000000000000000000000000000000000006", decimals: 18}
bases: [USDC]
venues:
  - id: uni
    kind: single_hop_quoter
    address: "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a"
    fee_tiers: [500, 3000]
trade:
  amount: "5"
  scan_only: true
timings:
  cooldown_ms: 100
`)

	c, err := Load(path, "")
	require.NoError(t, err)

	pairs := c.PairList()
	require.Len(t, pairs, 2)
	assert.Equal(t, "USDC/DAI", pairs[0].Label())
	assert.Equal(t, "USDC/WETH", pairs[1].Label())
	assert.Equal(t, 100*time.Millisecond, c.Cooldown())
	assert.EqualValues(t, 31337, c.ChainID().Int64())

	vcs := c.VenueConfigs()
	require.Len(t, vcs, 1)
	assert.Equal(t, []uint32{500, 3000}, vcs[0].FeeTiers)
}

func TestValidate_CollectsProblems(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.yaml", `
network: custom
chain: {rpc_http: http://node:8545}
tokens:
  - {symbol: USDC, address: "0x833589FCD6eDb6E08f4c7C32D4f71b54bdA02913", decimals: 6}
  - {symbol: WETH, address: "0x4200000000000000000000000000000000000006", decimals: 18}
pairs: [USDC/USDC, USDC/XYZ]
venues:
  - {id: v2, kind: constant_product_router, address: "0x2222222222222222222222222222222222222222", fee_tiers: [500]}
  - {id: v2, kind: teleport, address: "0x3333333333333333333333333333333333333333"}
trade: {amount: "-1"}
`)

	_, err := Load(path, "")
	require.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{
		"EIP-55",
		"same token",
		"unknown token",
		"fee tiers only apply",
		"duplicate id v2",
		"unknown kind",
		"trade.amount",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_DecimalsUpTo18(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cfg.yaml", `
tokens:
  - {symbol: USDC, address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", decimals: 6}
  - {symbol: ODD, address: "0x4200000000000000000000000000000000000006", decimals: 19}
`)
	_, err := Load(path, "")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "ODD: decimals 19 out of range")

	path = writeFile(t, "ok.yaml", `
tokens:
  - {symbol: USDC, address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", decimals: 6}
  - {symbol: WETH, address: "0x4200000000000000000000000000000000000006", decimals: 18}
bases: [USDC]
`)
	c, err := Load(path, "")
	require.NoError(t, err)
	assert.Len(t, c.PairList(), 1)
}

func TestChecksumAddress(t *testing.T) {
	got, err := ChecksumAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", got)

	_, err = ChecksumAddress("0x1234")
	assert.Error(t, err)
	_, err = ChecksumAddress("0xzz3589fcd6edb6e08f4c7c32d4f71b54bda02913")
	assert.Error(t, err)
}

func TestPresetsAreChecksummed(t *testing.T) {
	for name, p := range presets {
		for _, tok := range p.Tokens {
			assert.NoError(t, checkAddress(tok.Address), "%s %s", name, tok.Symbol)
		}
		for _, v := range p.Venues {
			for _, a := range []string{v.Address, v.Factory, v.Multicall} {
				if a != "" {
					assert.NoError(t, checkAddress(a), "%s %s", name, v.ID)
				}
			}
		}
	}
}
