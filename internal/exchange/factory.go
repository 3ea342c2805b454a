package exchange

import (
	"fmt"
	"os"
	"strings"

	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

// NewFromConfig builds the exchange client for the configured venue.
// DRY_RUN always wraps the venue in the paper broker: market data stays
// real, fills are simulated. LIVE order endpoints require credentials
// from the environment.
func NewFromConfig(cfg *store.Config) (interfaces.Exchange, error) {
	venue := strings.ToUpper(cfg.Exchange)

	var base interfaces.Exchange
	switch venue {
	case "BINANCE", "PAPER", "":
		base = NewBinance(cfg, os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"))
	case "OKX":
		base = NewOKX(cfg, os.Getenv("OKX_API_KEY"), os.Getenv("OKX_SECRET_KEY"), os.Getenv("OKX_PASSPHRASE"))
	default:
		return nil, fmt.Errorf("%w: unknown exchange %q", types.ErrInvalidConfiguration, cfg.Exchange)
	}

	if cfg.Mode == "DRY_RUN" || venue == "PAPER" {
		return NewPaper(base), nil
	}

	switch venue {
	case "BINANCE":
		if os.Getenv("BINANCE_API_KEY") == "" || os.Getenv("BINANCE_SECRET_KEY") == "" {
			return nil, fmt.Errorf("%w: LIVE binance requires BINANCE_API_KEY and BINANCE_SECRET_KEY", types.ErrInvalidConfiguration)
		}
	case "OKX":
		if os.Getenv("OKX_API_KEY") == "" || os.Getenv("OKX_SECRET_KEY") == "" || os.Getenv("OKX_PASSPHRASE") == "" {
			return nil, fmt.Errorf("%w: LIVE okx requires OKX_API_KEY, OKX_SECRET_KEY and OKX_PASSPHRASE", types.ErrInvalidConfiguration)
		}
	case "PAPER":
		return nil, fmt.Errorf("%w: PAPER exchange cannot run in LIVE mode", types.ErrInvalidConfiguration)
	}
	return base, nil
}
