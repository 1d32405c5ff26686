// Package balancer quotes a Balancer V2 vault through a read-only batch-swap simulation.
package balancer

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

// Vault is deployed at the same address on every chain Balancer V2 supports.
var Vault = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")

const swapKindGivenIn uint8 = 0

const vaultABI = `[
 {"inputs":[
   {"internalType":"enum IVault.SwapKind","name":"kind","type":"uint8"},
   {"components":[
      {"internalType":"bytes32","name":"poolId","type":"bytes32"},
      {"internalType":"uint256","name":"assetInIndex","type":"uint256"},
      {"internalType":"uint256","name":"assetOutIndex","type":"uint256"},
      {"internalType":"uint256","name":"amount","type":"uint256"},
      {"internalType":"bytes","name":"userData","type":"bytes"}],
    "internalType":"struct IVault.BatchSwapStep[]","name":"swaps","type":"tuple[]"},
   {"internalType":"contract IAsset[]","name":"assets","type":"address[]"},
   {"components":[
      {"internalType":"address","name":"sender","type":"address"},
      {"internalType":"bool","name":"fromInternalBalance","type":"bool"},
      {"internalType":"address payable","name":"recipient","type":"address"},
      {"internalType":"bool","name":"toInternalBalance","type":"bool"}],
    "internalType":"struct IVault.FundManagement","name":"funds","type":"tuple"}],
  "name":"queryBatchSwap",
  "outputs":[{"internalType":"int256[]","name":"assetDeltas","type":"int256[]"}],
  "stateMutability":"nonpayable","type":"function"}
]`

type batchSwapStep struct {
	PoolId        [32]byte
	AssetInIndex  *big.Int
	AssetOutIndex *big.Int
	Amount        *big.Int
	UserData      []byte
}

type fundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

// Adapter is disabled for any pair without a configured pool id.
type Adapter struct {
	id    types.VenueID
	kind  types.VenueKind
	log   *zap.Logger
	c     ethereum.ContractCaller
	abi   abi.ABI
	vault common.Address
	cfg   types.VenueConfig
}

func New(vc types.VenueConfig, deps core.Deps) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	addr := vc.Address
	if addr == (common.Address{}) {
		addr = Vault
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		id:    vc.ID,
		kind:  vc.Kind,
		log:   log.With(zap.String("venue", string(vc.ID))),
		c:     deps.Caller,
		abi:   parsed,
		vault: addr,
		cfg:   vc,
	}, nil
}

func (a *Adapter) Quote(ctx context.Context, req core.Request) (types.Quote, error) {
	poolID, ok := a.cfg.PoolID(req.TokenIn, req.TokenOut)
	if !ok {
		return types.Quote{}, fmt.Errorf("%s/%s: %w", req.TokenIn.Symbol, req.TokenOut.Symbol, core.ErrDisabled)
	}

	swaps := []batchSwapStep{{
		PoolId:        poolID,
		AssetInIndex:  big.NewInt(0),
		AssetOutIndex: big.NewInt(1),
		Amount:        req.AmountIn,
		UserData:      []byte{},
	}}
	assets := []common.Address{req.TokenIn.Address, req.TokenOut.Address}
	funds := fundManagement{}

	data, err := a.abi.Pack("queryBatchSwap", swapKindGivenIn, swaps, assets, funds)
	if err != nil {
		return types.Quote{}, fmt.Errorf("pack queryBatchSwap: %w", err)
	}
	raw, err := a.c.CallContract(ctx, ethereum.CallMsg{To: &a.vault, Data: data}, nil)
	if err != nil {
		if core.IsRevert(err) {
			return types.Quote{}, fmt.Errorf("%w: %v", core.ErrNoQuote, err)
		}
		return types.Quote{}, err
	}
	outs, err := a.abi.Methods["queryBatchSwap"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return types.Quote{}, fmt.Errorf("%w: decode queryBatchSwap: %v", core.ErrBadResponse, err)
	}
	deltas, ok := outs[0].([]*big.Int)
	if !ok || len(deltas) != 2 {
		return types.Quote{}, fmt.Errorf("%w: bad asset deltas", core.ErrBadResponse)
	}
	// the vault pays out a negative delta
	amountOut := new(big.Int).Neg(deltas[1])
	if amountOut.Sign() <= 0 {
		return types.Quote{}, core.ErrNoQuote
	}
	return types.Quote{Venue: a.id, Kind: a.kind, AmountOut: amountOut}, nil
}
