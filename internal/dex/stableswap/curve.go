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

// Curve registry exchange: get_best_rate scans every registered pool for the pair.
const curveABI = `[
 {"inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],
  "name":"get_best_rate","outputs":[{"name":"","type":"address"},{"name":"","type":"uint256"}],
  "stateMutability":"view","type":"function"}
]`

type curve struct {
	c      ethereum.ContractCaller
	abi    abi.ABI
	router common.Address
}

func newCurve(c ethereum.ContractCaller, router common.Address) (*curve, error) {
	parsed, err := abi.JSON(strings.NewReader(curveABI))
	if err != nil {
		return nil, fmt.Errorf("parse curve abi: %w", err)
	}
	return &curve{c: c, abi: parsed, router: router}, nil
}

func (cv *curve) amountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := cv.abi.Pack("get_best_rate", tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("pack get_best_rate: %w", err)
	}
	raw, err := cv.c.CallContract(ctx, ethereum.CallMsg{To: &cv.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	outs, err := cv.abi.Methods["get_best_rate"].Outputs.Unpack(raw)
	if err != nil || len(outs) != 2 {
		return nil, fmt.Errorf("%w: decode get_best_rate: %v", core.ErrBadResponse, err)
	}
	pool, _ := outs[0].(common.Address)
	amount, ok := outs[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected amount type %T", core.ErrBadResponse, outs[1])
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("get_best_rate: %w", core.ErrNoPool)
	}
	return amount, nil
}
