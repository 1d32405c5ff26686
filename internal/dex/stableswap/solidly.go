package stableswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/you/dex-arb/internal/dex/core"
)

// Solidly/Aerodrome router: returns the better of the stable and volatile pool.
const solidlyABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"}],
  "name":"getAmountOut","outputs":[{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"bool","name":"stable","type":"bool"}],
  "stateMutability":"view","type":"function"}
]`

type solidly struct {
	c      ethereum.ContractCaller
	abi    abi.ABI
	router common.Address
}

func newSolidly(c ethereum.ContractCaller, router common.Address) (*solidly, error) {
	parsed, err := abi.JSON(strings.NewReader(solidlyABI))
	if err != nil {
		return nil, fmt.Errorf("parse solidly abi: %w", err)
	}
	return &solidly{c: c, abi: parsed, router: router}, nil
}

func (s *solidly) amountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := s.abi.Pack("getAmountOut", amountIn, tokenIn, tokenOut)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountOut: %w", err)
	}
	raw, err := s.c.CallContract(ctx, ethereum.CallMsg{To: &s.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	outs, err := s.abi.Methods["getAmountOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) != 2 {
		return nil, fmt.Errorf("%w: decode getAmountOut: %v", core.ErrBadResponse, err)
	}
	amount, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected amount type %T", core.ErrBadResponse, outs[0])
	}
	return amount, nil
}
