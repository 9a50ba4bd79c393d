package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

// Snapshot is a read-only view of the portfolio at one point in the fill/mark sequence. It is safe
// to share between goroutines. The zero value is an empty portfolio with no capital.
type Snapshot struct {
	book  *book
	model ReturnModel
}

func (s Snapshot) b() *book {
	if s.book == nil {
		return newBook(decimal.Zero)
	}
	return s.book
}

// Capital is the starting capital of the session.
func (s Snapshot) Capital() decimal.Decimal { return s.b().capital }

// Cash is capital plus premium received minus premium paid.
func (s Snapshot) Cash() decimal.Decimal { return s.b().cash }

// Equity is cash plus marked position value.
func (s Snapshot) Equity() decimal.Decimal { return s.b().equity }

// HighWaterMark is the highest equity observed.
func (s Snapshot) HighWaterMark() decimal.Decimal { return s.b().hwm }

// RealizedPnL is closed-trade profit, including positions that have since gone flat.
func (s Snapshot) RealizedPnL() decimal.Decimal { return s.b().realized }

// UnrealizedPnL is open profit across positions.
func (s Snapshot) UnrealizedPnL() decimal.Decimal { return s.b().unrealized() }

// AsOf is the latest valuation time among applied marks.
func (s Snapshot) AsOf() time.Time { return s.b().asOf }

// Drawdown in [0,1).
func (s Snapshot) Drawdown() float64 { return s.b().drawdown() }

// Exposure is the gross underlying notional: sum of |lots| x multiplier x spot. Positions in an
// underlying that has never been marked use their strike as spot.
func (s Snapshot) Exposure() decimal.Decimal { return s.b().exposure() }

// SymbolLots is the net signed lot count across all contracts on an underlying.
func (s Snapshot) SymbolLots(underlying string) int64 { return s.b().symbolLots(underlying) }

// Spot returns the last marked spot of an underlying.
func (s Snapshot) Spot(underlying string) (float64, bool) {
	v, ok := s.b().spots[underlying]
	return v, ok
}

// Position looks up a single position.
func (s Snapshot) Position(key pricing.ContractKey) (Position, bool) {
	p, ok := s.b().positions[key]
	return p, ok
}

// Positions lists open positions ordered by contract key.
func (s Snapshot) Positions() []Position { return s.b().sortedPositions() }

// Model is the return model used by ValueAtRisk.
func (s Snapshot) Model() ReturnModel { return s.model }

// WithModel returns the same portfolio evaluated under a different return model.
func (s Snapshot) WithModel(m ReturnModel) Snapshot {
	return Snapshot{book: s.book, model: m.withDefaults()}
}

// ValueAtRisk is the VaR of this snapshot under its return model.
func (s Snapshot) ValueAtRisk(confidence, horizonDays float64) (decimal.Decimal, error) {
	return valueAtRisk(s.b(), s.model.withDefaults(), confidence, horizonDays)
}

// WithFill returns a hypothetical snapshot with the fill applied. The receiver is unchanged.
func (s Snapshot) WithFill(c pricing.OptionContract, signedLots int64, price decimal.Decimal) (Snapshot, error) {
	next := s.b().clone()
	if err := next.applyFill(c, signedLots, price); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{book: next, model: s.model}, nil
}

// WithMarks returns a hypothetical snapshot revalued with marks.
func (s Snapshot) WithMarks(marks map[pricing.ContractKey]Mark) (Snapshot, error) {
	next := s.b().clone()
	if err := next.applyMarks(marks); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{book: next, model: s.model}, nil
}

// InsufficientHistory reports that the historical method has fewer than MinHistorySamples aligned
// days for the marked positions, so its VaR carries no market component.
func (s Snapshot) InsufficientHistory() bool {
	m := s.model.withDefaults()
	if m.Method != Historical {
		return false
	}
	buckets, _ := exposureBuckets(s.b())
	return len(buckets) > 0 && historySamples(buckets, m) < MinHistorySamples
}
