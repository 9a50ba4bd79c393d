package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/portfolio"
	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/signal"
)

// Gate evaluates proposals against a portfolio snapshot. It holds no portfolio state and is safe
// for concurrent use.
type Gate struct {
	solver []pricing.SolverOption
}

// Option configures a Gate.
type Option func(*Gate)

// WithSolverOptions tunes the implied volatility solve for quoted proposals.
func WithSolverOptions(opts ...pricing.SolverOption) Option {
	return func(g *Gate) { g.solver = append(g.solver, opts...) }
}

// NewGate builds a gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate runs the checks in order: position size, aggregate exposure, drawdown circuit breaker,
// projected VaR, per-trade risk. A position size breach resizes the proposal and the remaining checks see the
// resized quantity. Errors are reserved for analytics failures; a limit breach is a Decision.
func (g *Gate) Evaluate(p signal.Proposal, snap portfolio.Snapshot, limits Limits) (Decision, error) {
	limits = limits.WithDefaults()
	if err := limits.Validate(); err != nil {
		return Decision{}, err
	}
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	vol, price, err := g.value(p)
	if err != nil {
		return Decision{}, err
	}

	c := p.Contract
	lots := p.SignedLots()
	resized := ""

	// 1. position size on the underlying
	existing := snap.SymbolLots(c.Underlying)
	if limits.MaxPositionSize > 0 {
		post := existing + lots
		if abs(post) > limits.MaxPositionSize && abs(post) > abs(existing) {
			capacity := limits.MaxPositionSize - existing*sign(lots)
			if capacity <= 0 {
				return Rejected(fmt.Sprintf("position size: %s holds %d lots, limit %d", c.Underlying, existing, limits.MaxPositionSize)), nil
			}
			resized = fmt.Sprintf("position size: %s %d%+d lots exceeds %d", c.Underlying, existing, lots, limits.MaxPositionSize)
			lots = sign(lots) * capacity
		}
	}

	projected, err := snap.WithFill(c, lots, price)
	if err != nil {
		return Decision{}, err
	}
	projected, err = projected.WithMarks(map[pricing.ContractKey]portfolio.Mark{
		c.Key(): {Market: p.Market, Volatility: vol},
	})
	if err != nil {
		return Decision{}, err
	}

	// 2. aggregate exposure
	if limits.MaxAggregateExposure.IsPositive() {
		current, post := snap.Exposure(), projected.Exposure()
		if post.GreaterThan(limits.MaxAggregateExposure) && post.GreaterThan(current) {
			return Rejected(fmt.Sprintf("aggregate exposure: %s exceeds %s", post.StringFixed(2), limits.MaxAggregateExposure)), nil
		}
	}

	// 3. drawdown circuit breaker
	if limits.MaxDrawdown > 0 {
		if dd := snap.Drawdown(); dd > limits.MaxDrawdown && increasesRisk(snap, c, lots) {
			return Rejected(fmt.Sprintf("drawdown: %.4f exceeds %.4f", dd, limits.MaxDrawdown)), nil
		}
	}

	// 4. projected VaR
	if limits.MaxVaR.IsPositive() {
		post, err := projected.ValueAtRisk(limits.VaRConfidence, limits.VaRHorizonDays)
		if err != nil {
			return Decision{}, err
		}
		if post.GreaterThan(limits.MaxVaR) {
			current, err := snap.ValueAtRisk(limits.VaRConfidence, limits.VaRHorizonDays)
			if err != nil {
				return Decision{}, err
			}
			if post.GreaterThan(current) {
				return Rejected(fmt.Sprintf("value at risk: %s exceeds %s", post.StringFixed(2), limits.MaxVaR)), nil
			}
		}
	}

	// 5. per-trade risk against equity
	if limits.MaxTradeRiskPercent > 0 {
		loss, err := tradeRisk(snap, c, lots, price, p.Market, vol, limits)
		if err != nil {
			return Decision{}, err
		}
		allowed := snap.Equity().Mul(decimal.NewFromFloat(limits.MaxTradeRiskPercent)).Div(decimal.NewFromInt(100))
		if loss.GreaterThan(allowed) {
			return Rejected(fmt.Sprintf("trade risk: %s exceeds %s (%.2f%% of equity)", loss.StringFixed(2), allowed.StringFixed(2), limits.MaxTradeRiskPercent)), nil
		}
	}

	if resized != "" {
		return Resized(abs(lots), resized), nil
	}
	return Approved(p.Lots), nil
}

// value resolves the volatility and expected fill price of a proposal. A quoted proposal fills at
// its quote and is valued at the implied volatility; otherwise the supplied volatility prices it.
func (g *Gate) value(p signal.Proposal) (float64, decimal.Decimal, error) {
	if p.Market.HasOptionPrice {
		opts := append([]pricing.SolverOption{pricing.WithInitialGuess(p.Volatility)}, g.solver...)
		vol, err := pricing.ImpliedVolatility(p.Contract, p.Market, opts...)
		if err != nil {
			return 0, decimal.Zero, fmt.Errorf("implied volatility for %s: %w", p.Contract, err)
		}
		return vol, decimal.NewFromFloat(p.Market.OptionPrice), nil
	}
	res, err := pricing.PriceAndGreeks(p.Contract, p.Market, p.Volatility)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("price %s: %w", p.Contract, err)
	}
	return p.Volatility, decimal.NewFromFloat(res.Price), nil
}

// tradeRisk is the potential loss of the trade on its own: the premium paid for a purchase, and
// the standalone VaR of the position for a sale.
func tradeRisk(snap portfolio.Snapshot, c pricing.OptionContract, lots int64, price decimal.Decimal, market pricing.MarketSnapshot, vol float64, limits Limits) (decimal.Decimal, error) {
	if lots > 0 {
		return decimal.NewFromInt(lots * c.Multiplier).Mul(price), nil
	}
	alone, err := portfolio.Snapshot{}.WithModel(snap.Model()).WithFill(c, lots, price)
	if err != nil {
		return decimal.Zero, err
	}
	alone, err = alone.WithMarks(map[pricing.ContractKey]portfolio.Mark{c.Key(): {Market: market, Volatility: vol}})
	if err != nil {
		return decimal.Zero, err
	}
	return alone.ValueAtRisk(limits.VaRConfidence, limits.VaRHorizonDays)
}

// increasesRisk reports whether the trade grows the absolute holding in its contract.
func increasesRisk(snap portfolio.Snapshot, c pricing.OptionContract, lots int64) bool {
	held := int64(0)
	if pos, ok := snap.Position(c.Key()); ok {
		held = pos.Quantity
	}
	return abs(held+lots) > abs(held)
}

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
