package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/you/dex-arb/internal/config"
	"github.com/you/dex-arb/internal/connectors/redisfeed"
	"github.com/you/dex-arb/internal/dex/univ3"
	"github.com/you/dex-arb/internal/marketdata"
	"github.com/you/dex-arb/internal/store"
	"github.com/you/dex-arb/internal/types"
	"github.com/you/dex-arb/internal/units"
)

var defaultTiers = []uint32{100, 500, 3000, 10000}

func newQuoteCmd(f *rootFlags) *cobra.Command {
	var in, out, amount string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Ask every venue once for IN -> OUT and print the table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(f)
			if err != nil {
				return err
			}
			tin, tout, err := resolvePair(cfg, in, out)
			if err != nil {
				return err
			}
			if amount == "" {
				amount = cfg.Trade.Amount
			}
			amt, err := units.Parse(amount, tin.Decimals)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.fanout.Results(cmd.Context(), tin, tout, amt)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printResults(w, results, tout)
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&in, "in", "USDC", "input token symbol")
	cmd.Flags().StringVar(&out, "out", "DAI", "output token symbol")
	cmd.Flags().StringVar(&amount, "amount", "", "input amount in human units (default trade.amount)")
	return cmd
}

func printResults(w io.Writer, results []marketdata.Result, tout types.TokenRef) {
	fmt.Fprintf(w, "VENUE\tFEE\tROUTE\tOUT (%s)\tTOOK\tERROR\n", tout.Symbol)
	for _, r := range results {
		outStr, route, errStr := "-", "-", ""
		if r.OK() {
			outStr = units.Format(r.Quote.AmountOut, tout.Decimals)
			route = "direct"
			if !r.Quote.Direct() {
				route = fmt.Sprintf("%d hop", len(r.Quote.Path)+1)
			}
		}
		if r.Err != nil {
			errStr = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Venue, fee(r.Quote.FeeTier), route, outStr, r.Took.Round(time.Millisecond), errStr)
	}
}

func fee(t uint32) string {
	if t == 0 {
		return "-"
	}
	return strconv.FormatUint(uint64(t), 10)
}

func resolvePair(cfg *config.Config, in, out string) (types.TokenRef, types.TokenRef, error) {
	tin, ok := cfg.Token(in)
	if !ok {
		return types.TokenRef{}, types.TokenRef{}, fmt.Errorf("unknown token %q", in)
	}
	tout, ok := cfg.Token(out)
	if !ok {
		return types.TokenRef{}, types.TokenRef{}, fmt.Errorf("unknown token %q", out)
	}
	if tin.Address == tout.Address {
		return types.TokenRef{}, types.TokenRef{}, fmt.Errorf("same token on both sides: %s", in)
	}
	return tin, tout, nil
}

func newFeeTiersCmd(f *rootFlags) *cobra.Command {
	var tiersStr string
	cmd := &cobra.Command{
		Use:   "check-fee-tiers",
		Short: "List which Uniswap V3 fee tiers have a pool for every configured pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(f)
			if err != nil {
				return err
			}
			factory := quoterFactory(cfg)
			if factory == (common.Address{}) {
				return fmt.Errorf("no single_hop_quoter venue with a factory configured")
			}
			tiers := parseTiers(tiersStr)
			return checkFeeTiers(cmd.Context(), cmd.OutOrStdout(), cfg, factory, tiers)
		},
	}
	cmd.Flags().StringVar(&tiersStr, "tiers", "100,500,3000,10000", "fee tiers to test, comma-separated")
	return cmd
}

func quoterFactory(cfg *config.Config) common.Address {
	for _, v := range cfg.VenueConfigs() {
		if v.Kind == types.KindSingleHopQuoter && v.Factory != (common.Address{}) {
			return v.Factory
		}
	}
	return common.Address{}
}

func checkFeeTiers(ctx context.Context, w io.Writer, cfg *config.Config, factory common.Address, tiers []uint32) error {
	fmt.Fprintf(w, "RPC: %s\nFactory: %s\nTesting tiers: %v\n\n", cfg.Chain.RPCHTTP, factory.Hex(), tiers)
	for _, p := range cfg.PairList() {
		present, pools, err := univ3.CheckAvailableFeeTiers(ctx, cfg.Chain.RPCHTTP, factory, p.Base.Address, p.Token.Address, tiers)
		if err != nil {
			fmt.Fprintf(w, "%-14s error: %v\n", p.Label(), err)
			continue
		}
		if len(present) == 0 {
			fmt.Fprintf(w, "%-14s no pools on given tiers\n", p.Label())
			continue
		}
		fmt.Fprintf(w, "%-14s tiers: %v", p.Label(), present)
		for _, t := range present {
			fmt.Fprintf(w, "  [fee=%d] %s", t, pools[t].Hex())
		}
		fmt.Fprintln(w)
	}
	return nil
}

func parseTiers(s string) []uint32 {
	var out []uint32
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err == nil && v > 0 {
			out = append(out, uint32(v))
		}
	}
	if len(out) == 0 {
		out = append(out, defaultTiers...)
	}
	return out
}

func newHistoryCmd(f *rootFlags) *cobra.Command {
	var n int64
	var cycles, trades bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent quotes or cycles from Redis, or trades from Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(f)
			if err != nil {
				return err
			}
			if trades {
				if cfg.Postgres.DSN == "" {
					return fmt.Errorf("postgres is not configured (POSTGRES_DSN)")
				}
				pg, err := store.OpenPostgres(cmd.Context(), cfg.Postgres.DSN, cfg.Postgres.MaxConns)
				if err != nil {
					return err
				}
				defer pg.Close()
				return printTrades(cmd.Context(), cmd.OutOrStdout(), pg, int(n))
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis is not configured (REDIS_ADDR)")
			}
			a := &app{cfg: cfg}
			opts := a.redisOptions()
			rdb := redisfeed.NewClient(opts)
			defer rdb.Close()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), redisfeed.NewConsumer(rdb, opts), cfg, n, cycles)
		},
	}
	cmd.Flags().Int64VarP(&n, "count", "n", 20, "number of records")
	cmd.Flags().BoolVar(&cycles, "cycles", false, "show cycle results instead of quotes")
	cmd.Flags().BoolVar(&trades, "trades", false, "show stored trade records")
	return cmd
}

func printTrades(ctx context.Context, out io.Writer, ts store.TradeStore, n int) error {
	recs, err := ts.Recent(ctx, n)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPAIR\tSTATUS\tTX\tGAS USED\tERROR")
	for _, r := range recs {
		tx := r.TxHash
		if tx == "" {
			tx = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Ts.Format(time.RFC3339), r.Pair, r.Status, tx, r.GasUsed, r.Error)
	}
	return w.Flush()
}

func printHistory(ctx context.Context, out io.Writer, c *redisfeed.Consumer, cfg *config.Config, n int64, cycles bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if cycles {
		recs, err := c.RecentCycles(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "TIME\tPAIR\tFOUND\tPROFIT\tGAS")
		for _, r := range recs {
			dec := pairDecimals(cfg, r.Pair)
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", r.Ts.Format(time.RFC3339), r.Pair, r.OpportunityFound,
				units.Format(r.Profit, dec), units.Format(r.GasCost, dec))
		}
		return w.Flush()
	}

	recs, err := c.RecentQuotes(ctx, n)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "TIME\tVENUE\tFEE\tIN\tOUT")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s %s\n", r.Ts.Format(time.RFC3339), r.Venue, fee(r.FeeTier),
			formatSym(cfg, r.AmountIn, r.TokenIn), r.TokenIn, formatSym(cfg, r.AmountOut, r.TokenOut), r.TokenOut)
	}
	return w.Flush()
}

// pairDecimals — decimals базового токена для метки "BASE/TOKEN".
func pairDecimals(cfg *config.Config, pair string) uint8 {
	base, _, _ := strings.Cut(pair, "/")
	if t, ok := cfg.Token(base); ok {
		return t.Decimals
	}
	return 18
}

func formatSym(cfg *config.Config, amt *big.Int, sym string) string {
	if t, ok := cfg.Token(sym); ok {
		return units.Format(amt, t.Decimals)
	}
	return units.Format(amt, 0)
}
