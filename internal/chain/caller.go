// Package chain wraps the RPC client pieces shared by adapters: throttled calls and ERC-20 metadata.
package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// LimitedCaller throttles eth_call traffic so a fan-out over many venues stays under the provider quota.
type LimitedCaller struct {
	inner   ethereum.ContractCaller
	limiter *rate.Limiter
}

// NewLimitedCaller wraps c. rps <= 0 disables throttling.
func NewLimitedCaller(c ethereum.ContractCaller, rps float64, burst int) *LimitedCaller {
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &LimitedCaller{inner: c, limiter: lim}
}

func (l *LimitedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return l.inner.CallContract(ctx, msg, block)
}

// Dial connects to the HTTP/WS endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url is empty")
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return ec, nil
}
