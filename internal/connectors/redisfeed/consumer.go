package redisfeed

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you/dex-arb/internal/types"
)

// Consumer читает то, что записал Publisher.
type Consumer struct {
	rdb  *redis.Client
	opts Options
}

func NewConsumer(rdb *redis.Client, opts Options) *Consumer {
	return &Consumer{rdb: rdb, opts: opts.withDefaults()}
}

// RecentQuotes — до n последних котировок, свежие первыми.
func (c *Consumer) RecentQuotes(ctx context.Context, n int64) ([]types.QuoteRecord, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, c.opts.QuoteStream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.QuoteRecord, 0, len(msgs))
	for _, m := range msgs {
		fee, _ := strconv.ParseUint(str(m.Values, "fee_tier"), 10, 32)
		out = append(out, types.QuoteRecord{
			TokenIn:   str(m.Values, "token_in"),
			TokenOut:  str(m.Values, "token_out"),
			AmountIn:  parseBig(str(m.Values, "amount_in")),
			AmountOut: parseBig(str(m.Values, "amount_out")),
			Venue:     types.VenueID(str(m.Values, "venue")),
			FeeTier:   uint32(fee),
			Ts:        msTime(str(m.Values, "ts_ms")),
		})
	}
	return out, nil
}

// RecentCycles — до n последних циклов, свежие первыми.
func (c *Consumer) RecentCycles(ctx context.Context, n int64) ([]types.CycleRecord, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, c.opts.CycleStream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.CycleRecord, 0, len(msgs))
	for _, m := range msgs {
		found, _ := strconv.ParseBool(str(m.Values, "opportunity_found"))
		out = append(out, types.CycleRecord{
			ID:               str(m.Values, "id"),
			OpportunityFound: found,
			Pair:             str(m.Values, "pair"),
			Profit:           parseBig(str(m.Values, "profit")),
			GasCost:          parseBig(str(m.Values, "gas_cost")),
			Ts:               msTime(str(m.Values, "ts_ms")),
		})
	}
	return out, nil
}

// Latest — последний выход по каждой площадке для tokenIn -> tokenOut.
func (c *Consumer) Latest(ctx context.Context, tokenIn, tokenOut string) (map[types.VenueID]*big.Int, error) {
	m, err := c.rdb.HGetAll(ctx, c.opts.LatestNS+tokenIn+"/"+tokenOut).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, redis.Nil
	}
	out := make(map[types.VenueID]*big.Int, len(m))
	for venue, v := range m {
		amount, _, _ := strings.Cut(v, "@")
		if x := parseBig(amount); x != nil {
			out[types.VenueID(venue)] = x
		}
	}
	return out, nil
}

func str(m map[string]interface{}, k string) string {
	v, _ := m[k].(string)
	return v
}

func bigStr(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.String()
}

func parseBig(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

func msTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
