package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/you/dex-arb/internal/bot"
	"github.com/you/dex-arb/internal/config"
)

type rootFlags struct {
	config string
	env    string
	debug  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "arb-bot",
		Short:         "Multi-venue DEX quote aggregation and arbitrage evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.config, "config", "", "path to config.yaml (optional)")
	root.PersistentFlags().StringVar(&f.env, "env", ".env", "path to .env file")
	root.PersistentFlags().BoolVar(&f.debug, "debug", false, "debug logging")

	root.AddCommand(
		newRunCmd(f),
		newQuoteCmd(f),
		newFeeTiersCmd(f),
		newHistoryCmd(f),
	)
	return root
}

// setup loads config and builds the logger shared by every subcommand.
func setup(f *rootFlags) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(f.config, f.env)
	if err != nil {
		return nil, nil, err
	}
	log, err := bot.NewLogger(f.debug)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll every configured pair and evaluate round trips",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(f)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runBot(cmd.Context(), cfg, log)
		},
	}
}

func runBot(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.bot()
	if err != nil {
		cancel()
		a.wait()
		return err
	}
	a.serveMetrics(ctx)
	a.verifyCatalog(ctx)

	log.Info("starting",
		zap.String("network", cfg.Network),
		zap.Bool("scan_only", cfg.ScanOnly()),
		zap.Int("venues", len(a.fanout.Venues())),
		zap.Int("pairs", len(cfg.PairList())),
	)
	err = b.Run(ctx)
	cancel()
	a.wait()
	return err
}
