package engine

import (
	"sync"
	"time"

	"crypto-quant-trader/internal/types"
)

// positionManager owns all position state. Every mutation for a symbol
// happens under that symbol's lock, so concurrent workers and a
// close-all sweep can never race a transition: at most one OPEN
// position exists per symbol at any instant.
type positionManager struct {
	mu       sync.Mutex
	open     map[string]*types.Position
	lastExit map[string]time.Time
	locks    map[string]*sync.Mutex
}

func newPositionManager() *positionManager {
	return &positionManager{
		open:     make(map[string]*types.Position),
		lastExit: make(map[string]time.Time),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock returns the per-symbol mutex, creating it on first use. Callers
// hold it across the full read-decide-execute-mutate sequence.
func (pm *positionManager) lock(symbol string) *sync.Mutex {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	l, ok := pm.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		pm.locks[symbol] = l
	}
	return l
}

// get returns a copy of the open position, if any. Callers never hold a
// pointer into the manager's state.
func (pm *positionManager) get(symbol string) (types.Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.open[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

func (pm *positionManager) has(symbol string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.open[symbol] != nil
}

// openSymbols returns the symbols that currently hold an open position.
func (pm *positionManager) openSymbols() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]string, 0, len(pm.open))
	for s := range pm.open {
		out = append(out, s)
	}
	return out
}

// add registers a freshly opened position. It fails closed: a second
// open for the same symbol is a programming error upstream and is
// ignored in favor of the existing position.
func (pm *positionManager) add(p types.Position) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.open[p.Symbol] != nil {
		return false
	}
	p.Status = types.StatusOpen
	pm.open[p.Symbol] = &p
	return true
}

// update replaces the stored position state (stop ratchet, watermark).
func (pm *positionManager) update(p types.Position) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if cur := pm.open[p.Symbol]; cur != nil {
		*cur = p
	}
}

// close removes the open position and starts the re-entry cooldown.
// Returns the final position state; ok is false when there was nothing
// to close, which makes a concurrent double-close harmless.
func (pm *positionManager) close(symbol string, now time.Time) (types.Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	p, ok := pm.open[symbol]
	if !ok {
		return types.Position{}, false
	}
	delete(pm.open, symbol)
	pm.lastExit[symbol] = now
	final := *p
	final.Status = types.StatusClosed
	return final, true
}

// inCooldown reports whether the symbol is still inside the post-exit
// cooldown window.
func (pm *positionManager) inCooldown(symbol string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return false
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	exit, ok := pm.lastExit[symbol]
	return ok && now.Sub(exit) < cooldown
}
