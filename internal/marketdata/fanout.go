// Package marketdata fans a quote request out to every configured venue.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/dex-arb/internal/dex/core"
	imetrics "github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/retry"
	"github.com/you/dex-arb/internal/types"
)

type Config struct {
	MaxParallel int           // 0 = без ограничения
	Timeout     time.Duration // на весь fan-out, с ретраями и ожиданием слота
	Attempts    int
	BaseDelay   time.Duration
}

// Result — итог одной площадки по запросу.
type Result struct {
	Venue types.VenueID
	Quote types.Quote
	Err   error
	Took  time.Duration
}

// OK reports whether the venue produced a usable quote.
func (r Result) OK() bool { return r.Err == nil && r.Quote.Valid() }

type Fanout struct {
	venues []core.Venue
	cfg    Config
	sink   Sink
	log    *zap.Logger
}

func New(venues []core.Venue, cfg Config, sink Sink, log *zap.Logger) *Fanout {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	return &Fanout{venues: venues, cfg: cfg, sink: sink, log: log}
}

func (f *Fanout) Venues() []core.Venue { return f.venues }

// Collect возвращает валидные котировки в порядке конфигурации площадок.
func (f *Fanout) Collect(ctx context.Context, tokenIn, tokenOut types.TokenRef, amountIn *big.Int) []types.Quote {
	res := f.Results(ctx, tokenIn, tokenOut, amountIn)
	out := make([]types.Quote, 0, len(res))
	for _, r := range res {
		if r.OK() {
			out = append(out, r.Quote)
		}
	}
	return out
}

// Results опрашивает все площадки: по одной записи на площадку, в порядке конфигурации.
func (f *Fanout) Results(ctx context.Context, tokenIn, tokenOut types.TokenRef, amountIn *big.Int) []Result {
	req := core.Request{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn}
	res := make([]Result, len(f.venues))

	// площадки в очереди за MaxParallel живут по общему дедлайну
	deadline := time.Now().Add(f.cfg.Timeout)
	var g errgroup.Group
	if f.cfg.MaxParallel > 0 {
		g.SetLimit(f.cfg.MaxParallel)
	}
	for i, v := range f.venues {
		g.Go(func() error {
			res[i] = f.query(ctx, v, req, time.Until(deadline))
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range res {
		if !r.OK() {
			continue
		}
		f.sink.RecordQuote(types.QuoteRecord{
			TokenIn:   tokenIn.Symbol,
			TokenOut:  tokenOut.Symbol,
			AmountIn:  new(big.Int).Set(amountIn),
			AmountOut: new(big.Int).Set(r.Quote.AmountOut),
			Venue:     r.Venue,
			FeeTier:   r.Quote.FeeTier,
			Ts:        time.Now(),
		})
	}
	return res
}

func (f *Fanout) query(ctx context.Context, v core.Venue, req core.Request, budget time.Duration) Result {
	start := time.Now()
	q, err := retry.WithTimeout(ctx, budget, types.Quote{}, func(ctx context.Context) (types.Quote, error) {
		return retry.Do(ctx, f.cfg.Attempts, f.cfg.BaseDelay, func(ctx context.Context) (types.Quote, error) {
			q, err := safeQuote(ctx, v.Adapter, req)
			if core.IsAbsence(err) {
				return q, retry.Permanent(err)
			}
			return q, err
		})
	})
	took := time.Since(start)
	if err == nil && !q.Valid() {
		err = core.ErrNoQuote
	}
	if err == nil && q.Venue == "" {
		q.Venue = v.ID()
	}

	id := string(v.ID())
	log := f.log.With(
		zap.String("venue", id),
		zap.String("pair", req.TokenIn.Symbol+"->"+req.TokenOut.Symbol),
	)
	imetrics.QuoteLatency.WithLabelValues(id).Observe(took.Seconds())
	switch {
	case err == nil:
		imetrics.QuoteRequests.WithLabelValues(id, imetrics.OutcomeOK).Inc()
	case errors.Is(err, retry.ErrTimeout):
		imetrics.QuoteRequests.WithLabelValues(id, imetrics.OutcomeTimeout).Inc()
		log.Warn("quote timed out", zap.Duration("timeout", f.cfg.Timeout))
	case core.IsAbsence(err):
		imetrics.QuoteRequests.WithLabelValues(id, imetrics.OutcomeNoPool).Inc()
		log.Debug("no quote", zap.Error(err))
	default:
		imetrics.QuoteRequests.WithLabelValues(id, imetrics.OutcomeError).Inc()
		log.Warn("quote failed", zap.Error(err))
	}
	return Result{Venue: v.ID(), Quote: q, Err: err, Took: took}
}

func safeQuote(ctx context.Context, a core.Adapter, req core.Request) (q types.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return a.Quote(ctx, req)
}

// BestOut выбирает котировку с максимальным выходом; при равенстве остаётся первая.
func BestOut(quotes []types.Quote) (types.Quote, bool) {
	var (
		best  types.Quote
		found bool
	)
	for _, q := range quotes {
		if !q.Valid() {
			continue
		}
		if !found || q.AmountOut.Cmp(best.AmountOut) > 0 {
			best, found = q, true
		}
	}
	return best, found
}
