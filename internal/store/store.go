// Package store persists trade records.
package store

import (
	"context"
	"errors"

	"github.com/you/dex-arb/internal/types"
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// TradeStore is keyed by opportunity id.
type TradeStore interface {
	Insert(ctx context.Context, rec types.TradeRecord) error
	Get(ctx context.Context, opportunityID string) (types.TradeRecord, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]types.TradeRecord, error)
	Close()
}
