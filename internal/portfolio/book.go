package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

// book is the full portfolio state. A book is never modified once published: every update works
// on a clone and replaces the published pointer only when it succeeds.
type book struct {
	capital   decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	equity    decimal.Decimal
	hwm       decimal.Decimal
	asOf      time.Time
	positions map[pricing.ContractKey]Position
	spots     map[string]float64 // last marked spot per underlying
}

func newBook(capital decimal.Decimal) *book {
	return &book{
		capital:   capital,
		cash:      capital,
		realized:  decimal.Zero,
		equity:    capital,
		hwm:       capital,
		positions: make(map[pricing.ContractKey]Position),
		spots:     make(map[string]float64),
	}
}

func (b *book) clone() *book {
	out := *b
	out.positions = make(map[pricing.ContractKey]Position, len(b.positions))
	for k, p := range b.positions {
		out.positions[k] = p
	}
	out.spots = make(map[string]float64, len(b.spots))
	for k, s := range b.spots {
		out.spots[k] = s
	}
	return &out
}

func (b *book) applyFill(c pricing.OptionContract, lots int64, price decimal.Decimal) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if lots == 0 {
		return fmt.Errorf("%w: fill quantity must be non-zero", pricing.ErrInvalidInput)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: fill price must be non-negative, got %s", pricing.ErrInvalidInput, price)
	}

	key := c.Key()
	pos, ok := b.positions[key]
	if !ok {
		pos = Position{Contract: c, AvgPrice: decimal.Zero, RealizedPnL: decimal.Zero, Mark: decimal.Zero}
	}
	realized := pos.applyFill(lots, price)

	units := decimal.NewFromInt(lots * c.Multiplier)
	b.cash = b.cash.Sub(units.Mul(price))
	b.realized = b.realized.Add(realized)
	if pos.Quantity == 0 {
		delete(b.positions, key)
	} else {
		b.positions[key] = pos
	}
	b.revalue()
	return nil
}

func (b *book) applyMarks(marks map[pricing.ContractKey]Mark) error {
	keys := make([]pricing.ContractKey, 0, len(marks))
	for k := range marks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		pos, ok := b.positions[key]
		if !ok {
			continue
		}
		m := marks[key]
		g, err := pricing.PriceAndGreeks(pos.Contract, m.Market, m.Volatility)
		if err != nil {
			return fmt.Errorf("mark %s: %w", pos.Contract, err)
		}
		pos.Mark = decimal.NewFromFloat(g.Price)
		pos.Spot = m.Market.Spot
		pos.Volatility = m.Volatility
		pos.Greeks = g
		pos.Marked = true
		pos.MarkedAt = m.Market.AsOf
		b.positions[key] = pos
		b.spots[pos.Contract.Underlying] = m.Market.Spot
		if m.Market.AsOf.After(b.asOf) {
			b.asOf = m.Market.AsOf
		}
	}
	b.revalue()
	return nil
}

// revalue recomputes equity and lifts the high-water mark.
func (b *book) revalue() {
	equity := b.cash
	for _, p := range b.positions {
		equity = equity.Add(p.MarketValue())
	}
	b.equity = equity
	if equity.GreaterThan(b.hwm) {
		b.hwm = equity
	}
}

func (b *book) unrealized() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

// drawdown is (hwm - equity) / hwm kept inside [0,1).
func (b *book) drawdown() float64 {
	if !b.hwm.IsPositive() {
		return 0
	}
	dd, _ := b.hwm.Sub(b.equity).Div(b.hwm).Float64()
	switch {
	case dd <= 0:
		return 0
	case dd >= 1:
		return math.Nextafter(1, 0)
	}
	return dd
}

// spot returns the last marked spot for an underlying, falling back to the strike.
func (b *book) spot(p Position) float64 {
	if s, ok := b.spots[p.Contract.Underlying]; ok {
		return s
	}
	return p.Contract.Strike
}

func (b *book) exposure() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.positions {
		total = total.Add(p.Notional(b.spot(p)))
	}
	return total
}

func (b *book) symbolLots(underlying string) int64 {
	var lots int64
	for _, p := range b.positions {
		if p.Contract.Underlying == underlying {
			lots += p.Quantity
		}
	}
	return lots
}

func (b *book) sortedPositions() []Position {
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
