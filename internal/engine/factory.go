package engine

import (
	"crypto-quant-trader/internal/engine/engineobs"
	"crypto-quant-trader/internal/interfaces"
	"crypto-quant-trader/internal/ledger"
	"crypto-quant-trader/internal/store"
)

// SentimentSource feeds the cached social score into each cycle.
type SentimentSource = sentimentSource

func New(cfg *store.Config, exch interfaces.Exchange, adv interfaces.Advisor, sent SentimentSource, rec *ledger.Ledger) interfaces.Engine {
	return engineobs.Wrap(newEngine(cfg, exch, adv, sent, rec))
}
