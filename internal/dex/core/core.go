package core

import (
	"context"
	"errors"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/you/dex-arb/internal/types"
	"go.uber.org/zap"
)

// Absence classes. Adapters wrap these so callers can tell "no liquidity" from a broken venue.
var (
	ErrNoPool   = errors.New("no pool")
	ErrNoQuote  = errors.New("no quote")
	ErrDisabled = errors.New("venue disabled for pair")

	ErrBadResponse = errors.New("malformed venue response")
)

// IsAbsence reports whether err means the venue simply has nothing to offer for the pair.
// Absence is deterministic and not worth retrying.
func IsAbsence(err error) bool {
	return errors.Is(err, ErrNoPool) || errors.Is(err, ErrNoQuote) || errors.Is(err, ErrDisabled)
}

// IsRevert reports whether an eth_call failed inside the contract rather than in transport.
func IsRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

type Request struct {
	TokenIn  types.TokenRef
	TokenOut types.TokenRef
	AmountIn *big.Int
}

// Adapter converts a quote request into a normalized Quote for one venue interface shape.
type Adapter interface {
	Quote(ctx context.Context, req Request) (types.Quote, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, req Request) (types.Quote, error)

func (f AdapterFunc) Quote(ctx context.Context, req Request) (types.Quote, error) { return f(ctx, req) }

type Venue struct {
	Config  types.VenueConfig
	Adapter Adapter
}

func (v Venue) ID() types.VenueID { return v.Config.ID }

// Deps are the shared collaborators a venue factory may need.
type Deps struct {
	Caller ethereum.ContractCaller
	Bridge types.TokenRef
	Log    *zap.Logger
}
