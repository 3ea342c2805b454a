package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/store"
)

func newTradesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store.LoadConfig(configPath)
			if err != nil {
				return err
			}
			rec, err := ledger.New(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			trades, err := rec.All()
			if err != nil {
				return err
			}
			if limit > 0 && len(trades) > limit {
				trades = trades[len(trades)-limit:]
			}

			for _, t := range trades {
				fmt.Printf("%s  %-10s %-5s size=%.4f entry=%.4f exit=%.4f pnl=%+.4f  %s\n",
					t.ExitTime.UTC().Format("2006-01-02 15:04"),
					t.Symbol, t.Side, t.Size, t.EntryPrice, t.ExitPrice, t.PnL, t.ExitReason)
			}
			fmt.Printf("%d trades\n", len(trades))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum trades to list (0 = all)")
	return cmd
}
