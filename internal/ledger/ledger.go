package ledger

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/oklog/ulid/v2"

	"crypto-quant-trader/internal/types"
)

const (
	tradesFile  = "trades.csv"
	summaryFile = "summary.csv"
)

// Ledger is the append-only record of closed trades. Every position
// close appends exactly one row; rows are never rewritten. All writes
// are serialized by the mutex so concurrent symbol workers cannot
// interleave partial rows.
type Ledger struct {
	mu      sync.Mutex
	dir     string
	entropy *ulid.MonotonicEntropy
}

func New(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger dir %s: %w", dir, err)
	}
	return &Ledger{
		dir:     dir,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Append writes one closed trade. A missing ID is assigned a ULID so
// rows sort lexically in close order.
func (l *Ledger) Append(rec types.TradeRecord) (types.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
	}

	path := filepath.Join(l.dir, tradesFile)
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return rec, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	rows := []types.TradeRecord{rec}
	if newFile {
		err = gocsv.MarshalFile(&rows, f)
	} else {
		err = gocsv.MarshalWithoutHeaders(&rows, f)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to append trade record: %w", err)
	}
	return rec, nil
}

// All returns every recorded trade, oldest first.
func (l *Ledger) All() ([]types.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAll()
}

func (l *Ledger) readAll() ([]types.TradeRecord, error) {
	path := filepath.Join(l.dir, tradesFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var rows []types.TradeRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExitTime.Before(rows[j].ExitTime) })
	return rows, nil
}

// Between returns the trades whose exit time falls in [from, to).
func (l *Ledger) Between(from, to time.Time) ([]types.TradeRecord, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []types.TradeRecord
	for _, r := range all {
		if !r.ExitTime.Before(from) && r.ExitTime.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Stats aggregates realized performance over a trade set.
type Stats struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	TotalPnL     float64
	AvgPnL       float64
	ProfitFactor float64
	MaxDrawdown  float64
}

// Compute derives the aggregate stats for the given trades. Drawdown is
// measured on the running cumulative PnL curve.
func Compute(trades []types.TradeRecord) Stats {
	s := Stats{Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	var grossProfit, grossLoss, running, peak float64
	for _, t := range trades {
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			s.Losses++
			grossLoss += -t.PnL
		}

		running += t.PnL
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}

	s.WinRate = float64(s.Wins) / float64(len(trades))
	s.AvgPnL = s.TotalPnL / float64(len(trades))
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		s.ProfitFactor = math.Inf(1)
	}
	return s
}

type summaryRow struct {
	Date     string  `csv:"date"`
	Trades   int     `csv:"trades"`
	Wins     int     `csv:"wins"`
	Losses   int     `csv:"losses"`
	WinRate  float64 `csv:"win_rate"`
	TotalPnL float64 `csv:"total_pnl"`
	AvgPnL   float64 `csv:"avg_pnl"`
}

// WriteDailySummary recomputes the per-day rollup from the full trade
// history and rewrites summary.csv. The trades file stays append-only;
// only this derived view is regenerated.
func (l *Ledger) WriteDailySummary() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	trades, err := l.readAll()
	if err != nil {
		return err
	}

	byDay := make(map[string][]types.TradeRecord)
	for _, t := range trades {
		day := t.ExitTime.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], t)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	rows := make([]summaryRow, 0, len(days))
	for _, d := range days {
		st := Compute(byDay[d])
		rows = append(rows, summaryRow{
			Date:     d,
			Trades:   st.Trades,
			Wins:     st.Wins,
			Losses:   st.Losses,
			WinRate:  st.WinRate,
			TotalPnL: st.TotalPnL,
			AvgPnL:   st.AvgPnL,
		})
	}

	f, err := os.Create(filepath.Join(l.dir, summaryFile))
	if err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
