package config

// Network presets fill whatever the config file leaves empty.
type preset struct {
	ChainID int64
	RPC     string
	Tokens  []Token
	Pairs   []string
	Venues  []Venue
}

const multicall3 = "0xcA11bde05977b3631167028862bE2a173976CA11"

var presets = map[string]preset{
	"base": {
		ChainID: 8453,
		RPC:     "https://mainnet.base.org",
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
			{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
			{Symbol: "cbETH", Address: "0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22", Decimals: 18},
			{Symbol: "AERO", Address: "0x940181a94A5B84e0EEA4528f7342D0F0FA2a72D2", Decimals: 18},
		},
		Pairs: []string{
			"USDC/DAI", "USDC/WETH", "DAI/WETH", "USDC/cbETH", "DAI/cbETH", "WETH/cbETH", "USDC/AERO",
		},
		Venues: []Venue{
			{
				ID: "uniswap_v3", Kind: "single_hop_quoter",
				Address:   "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
				FeeTiers:  []uint32{500, 3000, 10000},
				Factory:   "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
				Multicall: multicall3,
			},
			{
				ID: "uniswap_v3_bridge", Kind: "multi_hop_quoter",
				Address:  "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
				FeeTiers: []uint32{500, 3000, 10000},
				Factory:  "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
			},
			{ID: "baseswap", Kind: "constant_product_router", Address: "0xFDa619b6d20975be80A10332cD39b9a4b0FAa8BB"},
			{ID: "aerodrome", Kind: "stable_swap_router", Variant: "solidly", Address: "0x420DD381b31aEf6683db6B902084cB0FFECe40Da"},
			{ID: "sushi_v2", Kind: "constant_product_router", Address: "0x6e086AbE2ECB3f660b15Fb3a3ef0028BE6a4a1e0"},
		},
	},
	"arbitrum": {
		ChainID: 42161,
		RPC:     "https://arb1.arbitrum.io/rpc",
		Tokens: []Token{
			{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
			{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
			{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
			{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
			{Symbol: "WBTC", Address: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", Decimals: 8},
			{Symbol: "wstETH", Address: "0x5979D7b546E38E414F7E9822514be443A4800529", Decimals: 18},
		},
		Pairs: []string{
			"USDC/DAI", "USDC/WETH", "DAI/WETH", "USDC/USDT", "DAI/USDT",
			"USDC/WBTC", "DAI/WBTC", "USDC/wstETH", "DAI/wstETH", "WETH/wstETH",
		},
		Venues: []Venue{
			{
				ID: "uniswap_v3", Kind: "single_hop_quoter",
				Address:   "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
				FeeTiers:  []uint32{500, 3000, 10000},
				Factory:   "0x1F98431c8aD98523631AE4a59f267346ea31F984",
				Multicall: multicall3,
			},
			{
				ID: "uniswap_v3_bridge", Kind: "multi_hop_quoter",
				Address:  "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
				FeeTiers: []uint32{500, 3000, 10000},
				Factory:  "0x1F98431c8aD98523631AE4a59f267346ea31F984",
			},
			{ID: "sushi_v2", Kind: "constant_product_router", Address: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"},
			{ID: "camelot_v2", Kind: "constant_product_router", Address: "0xc873fEcbd354f5A56E00E710B90EF4201db2448d"},
		},
	},
}

// Networks lists the built-in presets.
func Networks() []string { return []string{"arbitrum", "base"} }
