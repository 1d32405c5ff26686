package types

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRef is an ERC-20 token as declared in the catalog.
type TokenRef struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

func (t TokenRef) String() string { return t.Symbol }

type VenueID string

type VenueKind string

const (
	KindSingleHopQuoter       VenueKind = "single_hop_quoter"
	KindMultiHopQuoter        VenueKind = "multi_hop_quoter"
	KindConstantProductRouter VenueKind = "constant_product_router"
	KindStableSwapRouter      VenueKind = "stable_swap_router"
	KindBatchVaultRouter      VenueKind = "batch_vault_router"
)

func (k VenueKind) Valid() bool {
	switch k {
	case KindSingleHopQuoter, KindMultiHopQuoter, KindConstantProductRouter, KindStableSwapRouter, KindBatchVaultRouter:
		return true
	}
	return false
}

// VenueConfig describes one liquidity source. Loaded once, never mutated.
type VenueConfig struct {
	ID       VenueID
	Kind     VenueKind
	Address  common.Address
	FeeTiers []uint32
	// Factory is the pool factory used for "no pool" detection (single-hop quoters only).
	Factory common.Address
	// Multicall batches fee-tier quotes into one call when set.
	Multicall common.Address
	// Variant picks the stable-swap flavour: "solidly" or "curve".
	Variant string
	// PoolIDs maps "IN/OUT" symbol keys to batch-vault pool ids.
	PoolIDs map[string]common.Hash
}

// PoolID looks up the pool id for a pair in either direction.
func (v VenueConfig) PoolID(a, b TokenRef) (common.Hash, bool) {
	for _, k := range []string{a.Symbol + "/" + b.Symbol, b.Symbol + "/" + a.Symbol} {
		if id, ok := v.PoolIDs[strings.ToUpper(k)]; ok && id != (common.Hash{}) {
			return id, true
		}
	}
	return common.Hash{}, false
}

// Quote is a venue's answer for tokenIn -> tokenOut at a given input amount.
type Quote struct {
	Venue     VenueID          `json:"venue"`
	Kind      VenueKind        `json:"kind"`
	FeeTier   uint32           `json:"feeTier,omitempty"`
	AmountOut *big.Int         `json:"amountOut"`
	Path      []common.Address `json:"path,omitempty"` // intermediate hops; empty for direct routes
}

// Valid reports whether the quote may take part in profit arithmetic.
func (q Quote) Valid() bool {
	return q.AmountOut != nil && q.AmountOut.Sign() > 0
}

func (q Quote) Direct() bool { return len(q.Path) == 0 }

type TradeStatus string

const (
	TradeSuccess TradeStatus = "success"
	TradeFailed  TradeStatus = "failed"
	TradeSkipped TradeStatus = "skipped"
)

// Opportunity is the result of one pair evaluation.
type Opportunity struct {
	ID    string
	Pair  string
	Base  TokenRef
	Token TokenRef

	Buy  *Quote
	Sell *Quote

	AmountIn     *big.Int
	Intermediate *big.Int
	Returned     *big.Int
	GasCost      *big.Int
	NetProfit    *big.Int // nil when no quote pair was available
	MinProfit    *big.Int

	// ExpectedMinProfit is the floor handed to the settlement contract.
	ExpectedMinProfit *big.Int

	Profitable bool
	Reason     string
	Ts         time.Time
}

// TradeRecord is what the executor reports back for an opportunity.
type TradeRecord struct {
	OpportunityID  string
	Pair           string
	TxHash         string
	GasUsed        uint64
	GasPrice       *big.Int
	RealizedProfit *big.Int
	Status         TradeStatus
	Error          string
	BlockNumber    uint64
	Network        string
	Ts             time.Time
}

// QuoteRecord is emitted per successful quote for price history.
type QuoteRecord struct {
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
	Venue     VenueID
	FeeTier   uint32
	Ts        time.Time
}

// CycleRecord is emitted once per polling cycle.
type CycleRecord struct {
	ID               string
	Ts               time.Time
	OpportunityFound bool
	Pair             string
	Profit           *big.Int
	GasCost          *big.Int
}
