package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/bot"
	"github.com/you/dex-arb/internal/chain"
	"github.com/you/dex-arb/internal/config"
	"github.com/you/dex-arb/internal/connectors/redisfeed"
	"github.com/you/dex-arb/internal/dash"
	"github.com/you/dex-arb/internal/detector"
	"github.com/you/dex-arb/internal/dex/adapters"
	"github.com/you/dex-arb/internal/dex/core"
	"github.com/you/dex-arb/internal/execution"
	"github.com/you/dex-arb/internal/gas"
	"github.com/you/dex-arb/internal/marketdata"
	"github.com/you/dex-arb/internal/metrics"
	"github.com/you/dex-arb/internal/risk"
	"github.com/you/dex-arb/internal/store"
	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

// app holds the wired components for one process.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	client *ethclient.Client

	fanout *marketdata.Fanout
	det    *detector.Detector
	settle *execution.Settlement // nil without a contract address
	dash   *dash.Store

	rdb *redis.Client
	pub *redisfeed.Publisher
	wg  sync.WaitGroup

	caller *chain.LimitedCaller
	trades store.TradeStore
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	client, err := chain.Dial(ctx, cfg.Chain.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Chain.RPCHTTP, err)
	}
	a := &app{cfg: cfg, log: log, client: client, dash: dash.NewStore()}

	var sink marketdata.Sink = marketdata.NopSink{}
	if cfg.Redis.Addr != "" {
		opts := a.redisOptions()
		a.rdb = redisfeed.NewClient(opts)
		a.pub = redisfeed.NewPublisher(a.rdb, opts, log)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.pub.Run(ctx)
		}()
		sink = a.pub
		log.Info("price history enabled", zap.String("redis", cfg.Redis.Addr))
	}

	caller := chain.NewLimitedCaller(client, cfg.Chain.RPS, cfg.Chain.Burst)
	a.caller = caller
	venues, err := adapters.Default().Build(cfg.VenueConfigs(), core.Deps{
		Caller: caller,
		Bridge: cfg.BridgeToken(),
		Log:    log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build venues: %w", err)
	}
	a.fanout = marketdata.New(venues, marketdata.Config{
		MaxParallel: cfg.Quote.MaxParallel,
		Timeout:     cfg.QuoteTimeout(),
		Attempts:    cfg.Quote.MaxRetries,
		BaseDelay:   cfg.RetryBase(),
	}, sink, log)

	gasCfg := gas.Config{
		Native:      cfg.NativeToken(),
		GasUnits:    cfg.Gas.StaticUnits,
		NativePrice: cfg.Gas.NativePrice,
		Timeout:     cfg.QuoteTimeout(),
	}
	if cfg.Gas.StaticGwei != "" {
		p, err := units.Parse(cfg.Gas.StaticGwei, 9)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("gas.static_gwei: %w", err)
		}
		gasCfg.GasPrice = p
	}
	est := gas.New(client, a.fanout, gasCfg, log)

	a.det, err = detector.New(a.fanout, est, detector.Config{
		TradeAmount:  cfg.Trade.Amount,
		MinProfit:    cfg.Trade.MinProfit,
		SafetyBps:    cfg.Trade.SafetyBps,
		UnitsTimeout: cfg.QuoteTimeout(),
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if addr := cfg.ContractAddress(); addr != (common.Address{}) {
		a.settle, err = execution.NewSettlement(client, addr, cfg.ChainID(), cfg.Chain.WalletPK, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		settle := a.settle
		log.Info("settlement contract", zap.String("address", settle.Address().Hex()),
			zap.String("wallet", settle.From().Hex()))
		a.det.WithGasUnits(func(ctx context.Context, base types.TokenRef, amountIn *big.Int) uint64 {
			return settle.EstimateUnits(ctx, base.Address, amountIn, new(big.Int))
		})
	}
	return a, nil
}

// verifyCatalog compares declared token decimals with the chain and logs mismatches.
func (a *app) verifyCatalog(ctx context.Context) {
	erc, err := chain.NewERC20(a.caller)
	if err != nil {
		a.log.Warn("catalog check skipped", zap.Error(err))
		return
	}
	for _, t := range a.cfg.TokenRefs() {
		got, err := erc.Decimals(ctx, t.Address)
		switch {
		case err != nil:
			a.log.Warn("catalog: decimals unavailable", zap.String("token", t.Symbol), zap.Error(err))
		case got != t.Decimals:
			a.log.Error("catalog: decimals mismatch",
				zap.String("token", t.Symbol), zap.Uint8("declared", t.Decimals), zap.Uint8("onchain", got))
		}
	}
}

func (a *app) redisOptions() redisfeed.Options {
	return redisfeed.Options{
		Addr:        a.cfg.Redis.Addr,
		DB:          a.cfg.Redis.DB,
		Username:    a.cfg.Redis.Username,
		Password:    a.cfg.Redis.Password,
		QuoteStream: a.cfg.Redis.QuoteStream,
		CycleStream: a.cfg.Redis.CycleStream,
	}
}

// bot wires the executor, trade store and health probes around the detector.
func (a *app) bot() (*bot.Bot, error) {
	cfg := a.cfg

	riskEng, err := risk.NewEngine(risk.Limits{
		MaxGas:              cfg.Risk.MaxGas,
		MaxConsecutiveFails: cfg.Risk.MaxConsecutiveFails,
	})
	if err != nil {
		return nil, err
	}
	opts := execution.Options{ScanOnly: cfg.ScanOnly(), Network: cfg.Network, Timeout: cfg.TradeTimeout()}
	var exec *execution.Executor
	if a.settle != nil {
		exec = execution.NewExecutor(a.settle, riskEng, opts, a.log)
	} else {
		exec = execution.NewExecutor(nil, riskEng, opts, a.log)
	}

	if cfg.Postgres.DSN != "" {
		pg, err := store.OpenPostgres(context.Background(), cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.trades = pg
	} else {
		a.trades = store.NewMemory()
	}

	minWallet, err := units.Parse(cfg.Health.MinWalletEth, 18)
	if err != nil {
		return nil, fmt.Errorf("health.min_wallet_eth: %w", err)
	}
	var health *bot.Health
	if a.settle != nil {
		health = bot.NewHealth(a.client, a.settle, a.settle.From(), minWallet, a.log)
	} else {
		health = bot.NewHealth(a.client, nil, common.Address{}, minWallet, a.log)
	}

	return bot.New(bot.Deps{
		Pairs:  cfg.PairList(),
		Eval:   a.det,
		Exec:   exec,
		Store:  a.trades,
		Sink:   a.sink(),
		Dash:   a.dash,
		Health: health,
	}, bot.Options{
		Interval:    cfg.CheckInterval(),
		Cooldown:    cfg.Cooldown(),
		HealthEvery: cfg.Timings.HealthEvery,
	}, a.log), nil
}

func (a *app) sink() marketdata.Sink {
	if a.pub != nil {
		return a.pub
	}
	return marketdata.NopSink{}
}

func (a *app) serveMetrics(ctx context.Context) {
	metrics.Serve(ctx, a.cfg.Metrics.Addr, nil, a.log,
		metrics.Route{Pattern: "/opportunities", Handler: a.dash.Handler()})
}

// wait blocks until the publisher has drained; call after ctx is cancelled.
func (a *app) wait() { a.wg.Wait() }

func (a *app) Close() {
	if a.trades != nil {
		a.trades.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.client.Close()
}
