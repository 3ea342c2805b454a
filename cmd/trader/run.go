package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"crypto-quant-trader/internal/advisor"
	"crypto-quant-trader/internal/engine"
	"crypto-quant-trader/internal/exchange"
	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/social"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/trace"
	"crypto-quant-trader/internal/tradelog"
)

func newRunCmd() *cobra.Command {
	var closeOnExit bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrader(closeOnExit)
		},
	}
	cmd.Flags().BoolVar(&closeOnExit, "close-on-exit", false, "flatten all positions on shutdown")
	return cmd
}

func runTrader(closeOnExit bool) error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return err
	}

	compressOldLogs(ctx)

	exch, err := exchange.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	records, err := ledger.New(cfg.Ledger.Dir)
	if err != nil {
		return err
	}

	var feed interfaces.Feed
	if len(cfg.Social.Accounts) > 0 {
		feed = social.NewScraper(os.Getenv("SOCIAL_MIRROR_URL"), 20*time.Second)
	} else {
		logger.Warn(ctx, "No social accounts configured - sentiment scores neutral")
		feed = &social.StaticFeed{}
	}
	sentiment := social.NewService(cfg, feed)

	adv := advisor.New(cfg)

	eng := engine.New(cfg, exch, adv, sentiment, records)
	runner := engine.NewRunner(cfg, eng)
	runner.Start(ctx)

	summaryTick := time.NewTicker(1 * time.Hour)
	defer summaryTick.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-summaryTick.C:
			if err := records.WriteDailySummary(); err != nil {
				logger.Warn(ctx, "Failed to write daily summary", "error", err)
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			if closeOnExit {
				closed := runner.CloseAll()
				logger.Info(ctx, "Positions flattened on exit", "closed", len(closed))
			} else {
				runner.Stop()
			}
			if err := records.WriteDailySummary(); err != nil {
				logger.Warn(ctx, "Failed to write daily summary", "error", err)
			}
			_ = logger.Shutdown(context.Background())
			_ = trace.Shutdown(context.Background())
			return nil
		}
	}
}

func compressOldLogs(ctx context.Context) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := parseRetentionDays(v)
	if err != nil {
		logger.Warn(ctx, "Invalid TRADER_LOG_RETENTION_DAYS", "value", v, "error", err)
		return
	}
	if err := tradelog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

func parseRetentionDays(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("retention days must not be negative, got %d", n)
	}
	return n, nil
}
