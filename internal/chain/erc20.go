package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

const erc20ABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ERC20 reads token metadata; decimals are cached since they never change.
type ERC20 struct {
	c     ethereum.ContractCaller
	abi   abi.ABI
	cache *lru.Cache
}

func NewERC20(c ethereum.ContractCaller) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	cache, err := lru.New(256)
	if err != nil {
		return nil, fmt.Errorf("decimals cache: %w", err)
	}
	return &ERC20{c: c, abi: parsed, cache: cache}, nil
}

func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if v, ok := e.cache.Get(token); ok {
		return v.(uint8), nil
	}
	input, err := e.abi.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	res, err := e.c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	outs, err := e.abi.Methods["decimals"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty decimals output")
		}
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	var dec uint8
	switch v := outs[0].(type) {
	case uint8:
		dec = v
	case *big.Int:
		dec = uint8(v.Uint64())
	default:
		return 0, fmt.Errorf("unexpected decimals type %T", v)
	}
	e.cache.Add(token, dec)
	return dec, nil
}
