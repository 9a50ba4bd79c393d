package session

import (
	"sync"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/signal"
)

// Ledger is the append-only record of fills booked during one session. It lives and dies with the
// session; nothing is written to disk.
type Ledger struct {
	mu       sync.Mutex
	fills    []signal.Fill
	turnover decimal.Decimal
}

// NewLedger creates an empty ledger with room for capacity fills.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]signal.Fill, 0, capacity), turnover: decimal.Zero}
}

// Record appends a booked fill.
func (l *Ledger) Record(fill signal.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.turnover = l.turnover.Add(fill.Notional())
	l.mu.Unlock()
}

// Len reports how many fills were booked.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fills)
}

// Turnover is the total premium exchanged, buys and sells alike.
func (l *Ledger) Turnover() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.turnover
}

// Snapshot returns a copy of the booked fills in booking order.
func (l *Ledger) Snapshot() []signal.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]signal.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Contract returns the fills booked in one contract, in booking order.
func (l *Ledger) Contract(key pricing.ContractKey) []signal.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []signal.Fill
	for _, f := range l.fills {
		if f.Contract.Key() == key {
			out = append(out, f)
		}
	}
	return out
}
