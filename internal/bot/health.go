package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/units"
)

// ChainReader is the slice of ethclient the health check reads.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type contractBalance interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// Health probes the node, the wallet and the settlement contract. Failures are
// reported, never fatal.
type Health struct {
	chain     ChainReader
	contract  contractBalance
	wallet    common.Address
	minWallet *big.Int
	timeout   time.Duration
	log       *zap.Logger
}

// NewHealth builds the probe set. A zero wallet skips the balance probe; a nil
// contract skips the contract probe.
func NewHealth(chain ChainReader, contract contractBalance, wallet common.Address, minWallet *big.Int, log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	return &Health{chain: chain, contract: contract, wallet: wallet, minWallet: minWallet, timeout: 10 * time.Second, log: log}
}

func (h *Health) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	probe := func(name string, fn func() (string, error)) {
		g.Go(func() error {
			result, err := fn()
			if err != nil {
				result = "error"
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			metrics.HealthChecks.WithLabelValues(name, result).Inc()
			return nil
		})
	}

	probe("block", func() (string, error) {
		n, err := h.chain.BlockNumber(ctx)
		if err == nil {
			h.log.Info("health: node", zap.Uint64("block", n))
		}
		return "ok", err
	})
	probe("gas_price", func() (string, error) {
		p, err := h.chain.SuggestGasPrice(ctx)
		if err == nil {
			h.log.Info("health: gas price", zap.String("gwei", units.Format(p, 9)))
		}
		return "ok", err
	})
	if h.wallet != (common.Address{}) {
		probe("wallet", func() (string, error) {
			bal, err := h.chain.BalanceAt(ctx, h.wallet, nil)
			if err != nil {
				return "", err
			}
			h.log.Info("health: wallet", zap.String("address", h.wallet.Hex()), zap.String("eth", units.Format(bal, 18)))
			if h.minWallet != nil && bal.Cmp(h.minWallet) < 0 {
				h.log.Warn("health: low wallet balance", zap.String("eth", units.Format(bal, 18)))
				return "low", nil
			}
			return "ok", nil
		})
	}
	if h.contract != nil {
		probe("contract", func() (string, error) {
			bal, err := h.contract.Balance(ctx)
			if err == nil {
				h.log.Info("health: settlement contract", zap.String("balance", bal.String()))
			}
			return "ok", err
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}
