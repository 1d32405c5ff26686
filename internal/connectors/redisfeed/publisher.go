// Package redisfeed records price history and cycle results in Redis streams.
package redisfeed

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	imetrics "github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/types"
)

type Options struct {
	Addr     string
	DB       int
	Username string
	Password string

	QuoteStream string // default "quotes:stream"
	CycleStream string // default "cycles:stream"
	LatestNS    string // default "quote:latest:"
	MaxLen      int64  // примерный лимит стрима, по умолчанию 100000
	Buffer      int    // размер очереди, по умолчанию 1024
}

func (o Options) withDefaults() Options {
	if o.QuoteStream == "" {
		o.QuoteStream = "quotes:stream"
	}
	if o.CycleStream == "" {
		o.CycleStream = "cycles:stream"
	}
	if o.LatestNS == "" {
		o.LatestNS = "quote:latest:"
	}
	if o.MaxLen <= 0 {
		o.MaxLen = 100_000
	}
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	return o
}

func NewClient(o Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		DB:       o.DB,
		Username: o.Username,
		Password: o.Password,
	})
}

type record struct {
	quote *types.QuoteRecord
	cycle *types.CycleRecord
}

// Publisher — неблокирующий marketdata.Sink. Записи идут в очередь и пишутся в Run;
// при переполнении очереди запись выбрасывается и считается в метрике.
type Publisher struct {
	rdb  *redis.Client
	opts Options
	ch   chan record
	log  *zap.Logger
}

func NewPublisher(rdb *redis.Client, opts Options, log *zap.Logger) *Publisher {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{rdb: rdb, opts: opts, ch: make(chan record, opts.Buffer), log: log}
}

func (p *Publisher) RecordQuote(q types.QuoteRecord) { p.enqueue(record{quote: &q}) }
func (p *Publisher) RecordCycle(c types.CycleRecord) { p.enqueue(record{cycle: &c}) }

func (p *Publisher) enqueue(r record) {
	select {
	case p.ch <- r:
	default:
		imetrics.SinkDropped.Inc()
	}
}

// Run пишет записи из очереди до отмены ctx, потом дописывает остаток.
func (p *Publisher) Run(ctx context.Context) {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.drain(wctx)
			return
		case r := <-p.ch:
			p.write(wctx, r)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case r := <-p.ch:
			p.write(ctx, r)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, r record) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var err error
	switch {
	case r.quote != nil:
		err = p.writeQuote(ctx, *r.quote)
	case r.cycle != nil:
		err = p.writeCycle(ctx, *r.cycle)
	}
	if err != nil {
		p.log.Debug("redis sink write failed", zap.Error(err))
	}
}

func (p *Publisher) writeQuote(ctx context.Context, q types.QuoteRecord) error {
	ts := q.Ts.UnixMilli()
	pipe := p.rdb.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.opts.QuoteStream,
		MaxLen: p.opts.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"token_in":   q.TokenIn,
			"token_out":  q.TokenOut,
			"amount_in":  bigStr(q.AmountIn),
			"amount_out": bigStr(q.AmountOut),
			"venue":      string(q.Venue),
			"fee_tier":   q.FeeTier,
			"ts_ms":      ts,
		},
	})
	pipe.HSet(ctx, p.opts.LatestNS+q.TokenIn+"/"+q.TokenOut, string(q.Venue), bigStr(q.AmountOut)+"@"+strconv.FormatInt(ts, 10))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) writeCycle(ctx context.Context, c types.CycleRecord) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.opts.CycleStream,
		MaxLen: p.opts.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":                c.ID,
			"opportunity_found": strconv.FormatBool(c.OpportunityFound),
			"pair":              c.Pair,
			"profit":            bigStr(c.Profit),
			"gas_cost":          bigStr(c.GasCost),
			"ts_ms":             c.Ts.UnixMilli(),
		},
	}).Err()
}
