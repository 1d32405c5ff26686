package univ3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/you/dex-arb/internal/dex/core"
)

// Uniswap v3 Factory, same address on Arbitrum and mainnet.
var UniswapV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")

// QuoterV2 subset: single-pool exact-input quote.
const quoterV2ABI = `[
  {"inputs":[{"components":[
      {"internalType":"address","name":"tokenIn","type":"address"},
      {"internalType":"address","name":"tokenOut","type":"address"},
      {"internalType":"uint256","name":"amountIn","type":"uint256"},
      {"internalType":"uint24","name":"fee","type":"uint24"},
      {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],
    "internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],
   "name":"quoteExactInputSingle",
   "outputs":[
      {"internalType":"uint256","name":"amountOut","type":"uint256"},
      {"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},
      {"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},
      {"internalType":"uint256","name":"gasEstimate","type":"uint256"}],
   "stateMutability":"nonpayable","type":"function"}
]`

// minimal Factory ABI: getPool(tokenA, tokenB, fee) -> address
const v3FactoryABI = `[
  {"inputs":[
    {"internalType":"address","name":"tokenA","type":"address"},
    {"internalType":"address","name":"tokenB","type":"address"},
    {"internalType":"uint24","name":"fee","type":"uint24"}],
   "name":"getPool",
   "outputs":[{"internalType":"address","name":"pool","type":"address"}],
   "stateMutability":"view","type":"function"}
]`

func parseQuoterABI() (abi.ABI, error) {
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	return q2abi, nil
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

func buildExactInputParams(tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) exactInputSingleParams {
	return exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
}

// decodeAmountOut pulls the leading uint256 amountOut from a quoter response.
func decodeAmountOut(q2abi abi.ABI, method string, data []byte) (*big.Int, error) {
	unpacked, err := q2abi.Methods[method].Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", core.ErrBadResponse, method, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%w: empty %s output", core.ErrBadResponse, method)
	}
	amount, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected amountOut type %T", core.ErrBadResponse, unpacked[0])
	}
	return amount, nil
}
