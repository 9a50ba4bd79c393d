// Package portfolio tracks option positions, equity, drawdown and parametric value at risk for one
// trading session.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

// Position is an open holding in one contract. Prices are per unit of underlying.
type Position struct {
	Contract    pricing.OptionContract
	Quantity    int64 // signed lots, negative when short
	AvgPrice    decimal.Decimal
	RealizedPnL decimal.Decimal
	Mark        decimal.Decimal

	// Model state from the last mark; zero until the position has been marked.
	Spot       float64
	Volatility float64
	Greeks     pricing.GreeksResult
	Marked     bool
	MarkedAt   time.Time
}

// Key returns the contract identity the position is stored under.
func (p Position) Key() pricing.ContractKey { return p.Contract.Key() }

// Units is the signed number of underlying units controlled (lots times multiplier).
func (p Position) Units() decimal.Decimal {
	return decimal.NewFromInt(p.Quantity * p.Contract.Multiplier)
}

// MarketValue values the position at its current mark.
func (p Position) MarketValue() decimal.Decimal {
	return p.Units().Mul(p.Mark)
}

// UnrealizedPnL is the open profit against the average entry price.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.Units().Mul(p.Mark.Sub(p.AvgPrice))
}

// Notional is the absolute underlying value controlled at the given spot.
func (p Position) Notional(spot float64) decimal.Decimal {
	return p.Units().Abs().Mul(decimal.NewFromFloat(spot))
}

// applyFill folds a fill into the position and returns the realized P&L it produced.
func (p *Position) applyFill(lots int64, price decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero
	mult := decimal.NewFromInt(p.Contract.Multiplier)
	switch {
	case p.Quantity == 0:
		p.AvgPrice = price
	case sameSign(p.Quantity, lots):
		held := decimal.NewFromInt(abs(p.Quantity))
		added := decimal.NewFromInt(abs(lots))
		p.AvgPrice = p.AvgPrice.Mul(held).Add(price.Mul(added)).Div(held.Add(added))
	default:
		closed := min(abs(lots), abs(p.Quantity))
		direction := decimal.NewFromInt(sign(p.Quantity))
		realized = price.Sub(p.AvgPrice).Mul(decimal.NewFromInt(closed)).Mul(mult).Mul(direction)
		if abs(lots) > abs(p.Quantity) {
			// flipped through flat; the remainder opens at the fill price
			p.AvgPrice = price
		}
	}
	p.Quantity += lots
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.Mark = price
	return realized
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
