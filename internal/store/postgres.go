package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/you/dex-arb/internal/types"
)

//go:embed schema.sql
var schemaSQL string

const pgErrUniqueViolation = "23505"

// Postgres stores trade records in a trade_records table. Amounts are NUMERIC.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ TradeStore = (*Postgres)(nil)

// OpenPostgres connects and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Insert(ctx context.Context, rec types.TradeRecord) error {
	if rec.OpportunityID == "" {
		return ErrInvalidInput
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trade_records (
			opportunity_id, pair, tx_hash, gas_used, gas_price, realized_profit,
			status, error, block_number, network, ts
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)`,
		rec.OpportunityID, rec.Pair, rec.TxHash, int64(rec.GasUsed),
		numeric(rec.GasPrice), numeric(rec.RealizedProfit),
		string(rec.Status), rec.Error, int64(rec.BlockNumber), rec.Network, rec.Ts,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

const selectTrade = `
	SELECT opportunity_id, pair, tx_hash, gas_used, gas_price::text, realized_profit::text,
	       status, error, block_number, network, ts
	FROM trade_records`

func (p *Postgres) Get(ctx context.Context, id string) (types.TradeRecord, error) {
	rec, err := scanTrade(p.pool.QueryRow(ctx, selectTrade+` WHERE opportunity_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TradeRecord{}, ErrNotFound
		}
		return types.TradeRecord{}, fmt.Errorf("get trade record %s: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, selectTrade+` ORDER BY ts DESC, opportunity_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trade records: %w", err)
	}
	defer rows.Close()

	var out []types.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() { p.pool.Close() }

func scanTrade(row pgx.Row) (types.TradeRecord, error) {
	var (
		rec              types.TradeRecord
		gasUsed, block   int64
		gasPrice, profit *string
		status           string
	)
	err := row.Scan(&rec.OpportunityID, &rec.Pair, &rec.TxHash, &gasUsed, &gasPrice, &profit,
		&status, &rec.Error, &block, &rec.Network, &rec.Ts)
	if err != nil {
		return types.TradeRecord{}, err
	}
	rec.GasUsed = uint64(gasUsed)
	rec.BlockNumber = uint64(block)
	rec.Status = types.TradeStatus(status)
	rec.GasPrice = parseNumeric(gasPrice)
	rec.RealizedProfit = parseNumeric(profit)
	return rec, nil
}

func numeric(x *big.Int) *string {
	if x == nil {
		return nil
	}
	s := x.String()
	return &s
}

func parseNumeric(s *string) *big.Int {
	if s == nil {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}
