package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/store"
)

func newReportCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print realized performance from the trade ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := store.LoadConfig(configPath)
			if err != nil {
				return err
			}
			rec, err := ledger.New(cfg.Ledger.Dir)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			trades, err := rec.Between(now.AddDate(0, 0, -days), now)
			if err != nil {
				return err
			}

			stats := ledger.Compute(trades)
			fmt.Printf("Period:        last %d days\n", days)
			fmt.Printf("Trades:        %d (%d wins / %d losses)\n", stats.Trades, stats.Wins, stats.Losses)
			fmt.Printf("Win rate:      %.1f%%\n", stats.WinRate*100)
			fmt.Printf("Total PnL:     %.4f\n", stats.TotalPnL)
			fmt.Printf("Avg PnL:       %.4f\n", stats.AvgPnL)
			if math.IsInf(stats.ProfitFactor, 1) {
				fmt.Printf("Profit factor: inf\n")
			} else {
				fmt.Printf("Profit factor: %.2f\n", stats.ProfitFactor)
			}
			fmt.Printf("Max drawdown:  %.4f\n", stats.MaxDrawdown)

			if err := rec.WriteDailySummary(); err != nil {
				return err
			}
			fmt.Println("\nDaily summary refreshed.")
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "reporting window in days")
	return cmd
}
