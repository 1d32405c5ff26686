package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/dex-arb/internal/config"
	"github.com/you/dex-arb/internal/dash"
	"github.com/you/dex-arb/internal/detector"
	"github.com/you/dex-arb/internal/marketdata"
	"github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/store"
	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

type evaluator interface {
	EvaluatePair(ctx context.Context, base, token types.TokenRef) types.Opportunity
}

type executor interface {
	Execute(ctx context.Context, opp types.Opportunity) types.TradeRecord
}

// Deps — компоненты, которыми управляет Bot. Exec, Store, Dash и Health могут быть nil.
type Deps struct {
	Pairs  []config.Pair
	Eval   evaluator
	Exec   executor
	Store  store.TradeStore
	Sink   marketdata.Sink
	Dash   *dash.Store
	Health *Health
}

type Options struct {
	Interval    time.Duration
	Cooldown    time.Duration
	HealthEvery int
}

// Bot гоняет последовательные циклы опрос → оценка по фиксированному списку пар.
type Bot struct {
	d    Deps
	opts Options
	log  *zap.Logger
}

func New(d Deps, opts Options, log *zap.Logger) *Bot {
	if d.Sink == nil {
		d.Sink = marketdata.NopSink{}
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{d: d, opts: opts, log: log}
}

// Run крутит цикл до отмены ctx или SIGINT/SIGTERM.
// После упавшего цикла ждём cooldown вместо обычного интервала.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			b.log.Warn("received signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	b.log.Info("bot started",
		zap.Int("pairs", len(b.d.Pairs)),
		zap.Duration("interval", b.opts.Interval),
		zap.Bool("execution", b.d.Exec != nil),
	)

	var acc metrics.Accumulator
	for i := 0; ; i++ {
		if b.d.Health != nil && b.opts.HealthEvery > 0 && i%b.opts.HealthEvery == 0 {
			if err := b.d.Health.Check(ctx); err != nil {
				b.log.Warn("health check failed", zap.Error(err))
			}
		}

		next, err := b.safeCycle(ctx, acc)
		acc = next
		if ctx.Err() != nil {
			break
		}

		wait := b.opts.Interval
		if err != nil {
			metrics.Cycles.WithLabelValues("error").Inc()
			b.log.Error("cycle failed, cooling down", zap.Error(err), zap.Duration("cooldown", b.opts.Cooldown))
			wait = b.opts.Cooldown
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	b.logSummary(acc)
	return nil
}

func (b *Bot) safeCycle(ctx context.Context, acc metrics.Accumulator) (out metrics.Accumulator, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = acc, fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return b.Cycle(ctx, acc)
}

// Cycle один раз оценивает каждую пару, публикует запись цикла и отдаёт
// лучшую прибыльную возможность исполнителю.
func (b *Bot) Cycle(ctx context.Context, acc metrics.Accumulator) (metrics.Accumulator, error) {
	start := time.Now()
	opps := make([]types.Opportunity, 0, len(b.d.Pairs))

	for _, p := range b.d.Pairs {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		t0 := time.Now()
		opp := b.d.Eval.EvaluatePair(ctx, p.Base, p.Token)
		acc = acc.ObserveFetch(opp.NetProfit != nil, time.Since(t0))
		if opp.Profitable {
			acc = acc.ObserveOpportunity()
		}
		if b.d.Dash != nil {
			b.d.Dash.Update(opp)
		}
		opps = append(opps, opp)
	}

	rec := types.CycleRecord{ID: uuid.NewString(), Ts: time.Now()}
	best, ok := detector.Best(opps)
	if ok {
		rec.Pair = best.Pair
		rec.Profit = best.NetProfit
		rec.GasCost = best.GasCost
		rec.OpportunityFound = best.Profitable
		metrics.BestNetProfit.Set(units.Float(best.NetProfit, best.Base.Decimals))
	}
	b.d.Sink.RecordCycle(rec)

	if ok && best.Profitable && b.d.Exec != nil {
		trade := b.d.Exec.Execute(ctx, best)
		acc = acc.ObserveTrade(trade)
		if b.d.Store != nil {
			if err := b.d.Store.Insert(ctx, trade); err != nil {
				b.log.Warn("store trade", zap.String("opportunity", trade.OpportunityID), zap.Error(err))
			}
		}
	}

	metrics.Cycles.WithLabelValues("ok").Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("cycle", rec.ID),
		zap.Int("pairs", len(opps)),
		zap.Bool("opportunity", rec.OpportunityFound),
		zap.Duration("took", time.Since(start)),
	}
	if ok {
		fields = append(fields,
			zap.String("best_pair", best.Pair),
			zap.String("best_net", units.Format(best.NetProfit, best.Base.Decimals)),
		)
	}
	b.log.Info("cycle done", fields...)
	return acc, nil
}

func (b *Bot) logSummary(acc metrics.Accumulator) {
	b.log.Info("bot stopped",
		zap.Int("checks", acc.TotalChecks),
		zap.Float64("success_rate_pct", acc.SuccessRate()),
		zap.Duration("avg_response", acc.AvgResponseTime()),
		zap.Int("opportunities", acc.OpportunitiesFound),
		zap.Int("trades", acc.TradesTotal),
		zap.Int("trades_ok", acc.TradesSuccessful),
		zap.Int("trades_failed", acc.TradesFailed),
	)
}

// NewLogger — продовый JSON-логгер; debug понижает уровень.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
