package multicall

import (
	"context"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 is deployed at the same address on Base and Arbitrum.
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// tryAggregate exists on Multicall2 and Multicall3; failed sub-calls do not revert the batch.
const multicallABI = `[
 {"inputs":[
   {"internalType":"bool","name":"requireSuccess","type":"bool"},
   {"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],
    "internalType":"struct Multicall3.Call[]","name":"calls","type":"tuple[]"}],
  "name":"tryAggregate",
  "outputs":[
   {"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],
    "internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],
  "stateMutability":"payable","type":"function"}
]`

// IClient is what quoters depend on; tests substitute a fake.
type IClient interface {
	Aggregate(ctx context.Context, calls []Call) ([]Result, error)
}

type Client struct {
	c    ethereum.ContractCaller
	addr common.Address
	abi  abi.ABI
}

func New(c ethereum.ContractCaller, multicallAddr common.Address) (*Client, error) {
	parsedABI, err := ParseABI()
	if err != nil {
		return nil, err
	}
	if multicallAddr == (common.Address{}) {
		multicallAddr = Multicall3
	}
	return &Client{c: c, addr: multicallAddr, abi: parsedABI}, nil
}

func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("bad abi: %w", err)
	}
	return parsed, nil
}

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate runs all calls in one eth_call. Results are index-aligned with calls.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	payload, err := c.abi.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	res, err := c.c.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	outs, err := c.abi.Unpack("tryAggregate", res)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	results := *abi.ConvertType(outs[0], new([]Result)).(*[]Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("tryAggregate: %d results for %d calls", len(results), len(calls))
	}
	for i := range results {
		if len(results[i].ReturnData) == 0 {
			results[i].Success = false
		}
	}
	return results, nil
}
