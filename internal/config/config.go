package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Token struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type Venue struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"`
	Address   string            `yaml:"address"`
	FeeTiers  []uint32          `yaml:"fee_tiers"`
	Factory   string            `yaml:"factory"`
	Multicall string            `yaml:"multicall"`
	Variant   string            `yaml:"variant"`
	PoolIDs   map[string]string `yaml:"pool_ids"`
}

// Pair is a (base, token) evaluation target.
type Pair struct {
	Base  types.TokenRef
	Token types.TokenRef
}

func (p Pair) Label() string { return p.Base.Symbol + "/" + p.Token.Symbol }

type Config struct {
	Network string `yaml:"network"`

	Chain struct {
		RPCHTTP  string  `yaml:"rpc_http"`
		ChainID  int64   `yaml:"chain_id"`
		WalletPK string  `yaml:"wallet_pk"`
		RPS      float64 `yaml:"rps"`
		Burst    int     `yaml:"burst"`
	} `yaml:"chain"`

	Settlement struct {
		Contract string `yaml:"contract"`
	} `yaml:"settlement"`

	Tokens []Token `yaml:"tokens"`
	// Pairs are "BASE/TOKEN" symbol keys. When empty every base is crossed with every token.
	Pairs  []string `yaml:"pairs"`
	Bases  []string `yaml:"bases"`
	Bridge string   `yaml:"bridge"`
	Native string   `yaml:"native"`
	Venues []Venue  `yaml:"venues"`

	Trade struct {
		Amount    string `yaml:"amount"`
		MinProfit string `yaml:"min_profit"`
		SafetyBps int64  `yaml:"safety_bps"`
		ScanOnly  *bool  `yaml:"scan_only"`
	} `yaml:"trade"`

	Risk struct {
		MaxGas              string `yaml:"max_gas"`
		MaxConsecutiveFails int    `yaml:"max_consecutive_fails"`
	} `yaml:"risk"`

	Quote struct {
		TimeoutMs   int `yaml:"timeout_ms"`
		MaxRetries  int `yaml:"max_retries"`
		RetryBaseMs int `yaml:"retry_base_ms"`
		MaxParallel int `yaml:"max_parallel"`
	} `yaml:"quote"`

	Gas struct {
		StaticGwei  string `yaml:"static_gwei"`
		StaticUnits uint64 `yaml:"static_units"`
		NativePrice string `yaml:"native_price"`
	} `yaml:"gas"`

	Timings struct {
		CheckIntervalMs int `yaml:"check_interval_ms"`
		CooldownMs      int `yaml:"cooldown_ms"`
		HealthEvery     int `yaml:"health_every"`
		TradeTimeoutMs  int `yaml:"trade_timeout_ms"`
	} `yaml:"timings"`

	Health struct {
		MinWalletEth string `yaml:"min_wallet_eth"`
	} `yaml:"health"`

	Redis struct {
		Addr        string `yaml:"addr"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		QuoteStream string `yaml:"quote_stream"`
		CycleStream string `yaml:"cycle_stream"`
	} `yaml:"redis"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"postgres"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Load reads an optional .env file and an optional YAML file, applies
// environment overrides, network presets and defaults, then validates.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env %s: %w", envFile, err)
		}
	}

	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyPreset()
	c.applyEnvVenues()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}

	str("NETWORK", &c.Network)
	str("RPC_URL", &c.Chain.RPCHTTP)
	str("WALLET_KEY", &c.Chain.WalletPK)
	str("CONTRACT_ADDRESS", &c.Settlement.Contract)
	str("TRADE_AMOUNT", &c.Trade.Amount)
	str("MIN_PROFIT", &c.Trade.MinProfit)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("METRICS_ADDR", &c.Metrics.Addr)

	for key, dst := range map[string]*int{
		"CHECK_INTERVAL":   &c.Timings.CheckIntervalMs,
		"MAX_RETRIES":      &c.Quote.MaxRetries,
		"MAX_PARALLEL":     &c.Quote.MaxParallel,
		"QUOTE_TIMEOUT_MS": &c.Quote.TimeoutMs,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("SCAN_ONLY"); ok && v != "" {
		b := v == "1" || strings.EqualFold(v, "true")
		c.Trade.ScanOnly = &b
	}
	return nil
}

// applyPreset fills tokens, pairs and venues from the named network when the file left them empty.
func (c *Config) applyPreset() {
	if c.Network == "" {
		c.Network = "base"
	}
	p, ok := presets[strings.ToLower(c.Network)]
	if !ok {
		return
	}
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = p.ChainID
	}
	if c.Chain.RPCHTTP == "" {
		c.Chain.RPCHTTP = p.RPC
	}
	if len(c.Tokens) == 0 {
		c.Tokens = append([]Token(nil), p.Tokens...)
		if len(c.Pairs) == 0 && len(c.Bases) == 0 {
			c.Pairs = append([]string(nil), p.Pairs...)
		}
	}
	if len(c.Venues) == 0 {
		c.Venues = append([]Venue(nil), p.Venues...)
	}
}

// applyEnvVenues appends the optional Curve router and Balancer vault.
func (c *Config) applyEnvVenues() {
	has := func(id string) bool {
		for _, v := range c.Venues {
			if v.ID == id {
				return true
			}
		}
		return false
	}
	if addr := os.Getenv("CURVE_ROUTER"); addr != "" && !has("curve") {
		c.Venues = append(c.Venues, Venue{
			ID: "curve", Kind: string(types.KindStableSwapRouter), Variant: "curve", Address: addr,
		})
	}
	if addr := os.Getenv("BALANCER_VAULT"); addr != "" && !has("balancer") {
		v := Venue{ID: "balancer", Kind: string(types.KindBatchVaultRouter), Address: addr}
		if id := os.Getenv("BALANCER_POOLID_USDC_DAI"); id != "" {
			v.PoolIDs = map[string]string{"USDC/DAI": id}
		}
		c.Venues = append(c.Venues, v)
	}
}

func (c *Config) applyDefaults() {
	if c.Bridge == "" {
		c.Bridge = "WETH"
	}
	if c.Native == "" {
		c.Native = "WETH"
	}
	if c.Trade.Amount == "" {
		c.Trade.Amount = "10"
	}
	if c.Trade.MinProfit == "" {
		c.Trade.MinProfit = "0.5"
	}
	if c.Trade.SafetyBps == 0 {
		c.Trade.SafetyBps = 500
	}
	if c.Trade.ScanOnly == nil {
		t := true
		c.Trade.ScanOnly = &t
	}
	if c.Risk.MaxConsecutiveFails == 0 {
		c.Risk.MaxConsecutiveFails = 5
	}
	if c.Quote.TimeoutMs == 0 {
		c.Quote.TimeoutMs = 1500
	}
	if c.Quote.MaxRetries == 0 {
		c.Quote.MaxRetries = 3
	}
	if c.Quote.RetryBaseMs == 0 {
		c.Quote.RetryBaseMs = 100
	}
	if c.Quote.MaxParallel == 0 {
		c.Quote.MaxParallel = 5
	}
	if c.Timings.CheckIntervalMs == 0 {
		c.Timings.CheckIntervalMs = 5000
	}
	if c.Timings.CooldownMs == 0 {
		c.Timings.CooldownMs = 30000
	}
	if c.Timings.HealthEvery == 0 {
		c.Timings.HealthEvery = 10
	}
	if c.Timings.TradeTimeoutMs == 0 {
		c.Timings.TradeTimeoutMs = 120000
	}
	if c.Health.MinWalletEth == "" {
		c.Health.MinWalletEth = "0.01"
	}
	if c.Chain.RPS == 0 {
		c.Chain.RPS = 20
	}
	if c.Chain.Burst == 0 {
		c.Chain.Burst = 10
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 4
	}
}

// Validate reports every problem found, joined under ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Chain.RPCHTTP == "" {
		bad("chain.rpc_http is empty")
	}
	if len(c.Tokens) == 0 {
		bad("no tokens for network %q", c.Network)
	}

	seen := map[string]bool{}
	for i, t := range c.Tokens {
		key := strings.ToUpper(t.Symbol)
		switch {
		case t.Symbol == "":
			bad("tokens[%d]: empty symbol", i)
		case seen[key]:
			bad("tokens[%d]: duplicate symbol %s", i, t.Symbol)
		}
		seen[key] = true
		if err := checkAddress(t.Address); err != nil {
			bad("tokens[%d] %s: %v", i, t.Symbol, err)
		}
		if t.Decimals > 18 {
			bad("tokens[%d] %s: decimals %d out of range", i, t.Symbol, t.Decimals)
		}
	}

	for _, sym := range []string{c.Bridge, c.Native} {
		if !seen[strings.ToUpper(sym)] {
			bad("token %q is not in the catalog", sym)
		}
	}
	for _, b := range c.Bases {
		if !seen[strings.ToUpper(b)] {
			bad("base %q is not in the catalog", b)
		}
	}
	for _, p := range c.Pairs {
		a, b, ok := strings.Cut(p, "/")
		switch {
		case !ok:
			bad("pair %q: want BASE/TOKEN", p)
		case !seen[strings.ToUpper(a)] || !seen[strings.ToUpper(b)]:
			bad("pair %q: unknown token", p)
		case strings.EqualFold(a, b):
			bad("pair %q: same token on both sides", p)
		}
	}

	ids := map[string]bool{}
	for i, v := range c.Venues {
		if v.ID == "" {
			bad("venues[%d]: empty id", i)
		} else if ids[v.ID] {
			bad("venues[%d]: duplicate id %s", i, v.ID)
		}
		ids[v.ID] = true

		kind := types.VenueKind(v.Kind)
		if !kind.Valid() {
			bad("venue %s: unknown kind %q", v.ID, v.Kind)
		}
		if v.Address == "" && kind != types.KindBatchVaultRouter {
			bad("venue %s: address is empty", v.ID)
		}
		for name, a := range map[string]string{"address": v.Address, "factory": v.Factory, "multicall": v.Multicall} {
			if a == "" {
				continue
			}
			if err := checkAddress(a); err != nil {
				bad("venue %s %s: %v", v.ID, name, err)
			}
		}
		if len(v.FeeTiers) > 0 && kind != types.KindSingleHopQuoter && kind != types.KindMultiHopQuoter {
			bad("venue %s: fee tiers only apply to quoter kinds", v.ID)
		}
		for k, id := range v.PoolIDs {
			b := common.FromHex(id)
			if len(b) != common.HashLength {
				bad("venue %s pool %s: want 32-byte hex id", v.ID, k)
			}
		}
	}
	if len(c.Venues) == 0 {
		bad("no venues configured")
	}

	for name, s := range map[string]string{"trade.amount": c.Trade.Amount, "trade.min_profit": c.Trade.MinProfit} {
		if _, err := units.Parse(s, 18); err != nil {
			bad("%s: %v", name, err)
		}
	}
	if amt, err := units.Parse(c.Trade.Amount, 18); err == nil && amt.Sign() <= 0 {
		bad("trade.amount must be positive")
	}
	if c.Trade.SafetyBps < 0 || c.Trade.SafetyBps >= 10000 {
		bad("trade.safety_bps %d out of range", c.Trade.SafetyBps)
	}
	if c.Quote.TimeoutMs < 0 || c.Quote.MaxRetries < 0 || c.Quote.MaxParallel < 0 {
		bad("quote settings must not be negative")
	}

	if c.Settlement.Contract != "" {
		if err := checkAddress(c.Settlement.Contract); err != nil {
			bad("settlement.contract: %v", err)
		}
	}
	if !c.ScanOnly() {
		if c.Chain.WalletPK == "" {
			bad("live mode needs a wallet key")
		}
		if c.Settlement.Contract == "" {
			bad("live mode needs a settlement contract")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c *Config) ScanOnly() bool { return c.Trade.ScanOnly == nil || *c.Trade.ScanOnly }

func (c *Config) token(sym string) (types.TokenRef, bool) {
	for _, t := range c.Tokens {
		if strings.EqualFold(t.Symbol, sym) {
			return types.TokenRef{Symbol: t.Symbol, Address: common.HexToAddress(t.Address), Decimals: t.Decimals}, true
		}
	}
	return types.TokenRef{}, false
}

// Token looks a catalog entry up by symbol, case-insensitively.
func (c *Config) Token(sym string) (types.TokenRef, bool) { return c.token(sym) }

func (c *Config) TokenRefs() []types.TokenRef {
	out := make([]types.TokenRef, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		ref, _ := c.token(t.Symbol)
		out = append(out, ref)
	}
	return out
}

func (c *Config) BridgeToken() types.TokenRef { t, _ := c.token(c.Bridge); return t }
func (c *Config) NativeToken() types.TokenRef { t, _ := c.token(c.Native); return t }

// PairList resolves the evaluation targets in configuration order.
func (c *Config) PairList() []Pair {
	var out []Pair
	if len(c.Pairs) > 0 {
		for _, p := range c.Pairs {
			a, b, _ := strings.Cut(p, "/")
			base, ok1 := c.token(a)
			tok, ok2 := c.token(b)
			if ok1 && ok2 && base.Address != tok.Address {
				out = append(out, Pair{Base: base, Token: tok})
			}
		}
		return out
	}
	bases := c.Bases
	if len(bases) == 0 {
		for _, t := range c.Tokens {
			bases = append(bases, t.Symbol)
		}
	}
	for _, b := range bases {
		base, ok := c.token(b)
		if !ok {
			continue
		}
		for _, tok := range c.TokenRefs() {
			if tok.Address == base.Address {
				continue
			}
			out = append(out, Pair{Base: base, Token: tok})
		}
	}
	return out
}

// VenueConfigs converts the raw venue list; call after Validate.
func (c *Config) VenueConfigs() []types.VenueConfig {
	out := make([]types.VenueConfig, 0, len(c.Venues))
	for _, v := range c.Venues {
		vc := types.VenueConfig{
			ID:        types.VenueID(v.ID),
			Kind:      types.VenueKind(v.Kind),
			Address:   addrOrZero(v.Address),
			FeeTiers:  append([]uint32(nil), v.FeeTiers...),
			Factory:   addrOrZero(v.Factory),
			Multicall: addrOrZero(v.Multicall),
			Variant:   v.Variant,
		}
		if len(v.PoolIDs) > 0 {
			vc.PoolIDs = make(map[string]common.Hash, len(v.PoolIDs))
			for k, id := range v.PoolIDs {
				vc.PoolIDs[strings.ToUpper(k)] = common.HexToHash(id)
			}
		}
		out = append(out, vc)
	}
	return out
}

func addrOrZero(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// ContractAddress is the settlement contract, zero when unset.
func (c *Config) ContractAddress() common.Address { return addrOrZero(c.Settlement.Contract) }

func (c *Config) ChainID() *big.Int { return big.NewInt(c.Chain.ChainID) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c *Config) CheckInterval() time.Duration { return ms(c.Timings.CheckIntervalMs) }
func (c *Config) Cooldown() time.Duration      { return ms(c.Timings.CooldownMs) }
func (c *Config) QuoteTimeout() time.Duration  { return ms(c.Quote.TimeoutMs) }
func (c *Config) RetryBase() time.Duration     { return ms(c.Quote.RetryBaseMs) }
func (c *Config) TradeTimeout() time.Duration  { return ms(c.Timings.TradeTimeoutMs) }
