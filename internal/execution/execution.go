// Package execution turns risk-approved proposals into paper fills.
package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optionsgate-go/internal/metrics"
	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/signal"
)

// ErrNotAllowed is returned when asked to submit a rejected decision.
var ErrNotAllowed = errors.New("decision does not allow submission")

// FillSink receives executions, typically the session that owns the portfolio.
type FillSink interface {
	ApplyFill(ctx context.Context, fill signal.Fill) error
}

// PaperExecutor fills orders immediately at the quote, or at model value when no quote is
// available, adjusted by a fixed slippage against the trader.
type PaperExecutor struct {
	log      zerolog.Logger
	sink     FillSink
	slippage decimal.Decimal // fraction of price
}

// Option configures the executor.
type Option func(*PaperExecutor)

// WithSlippageBps charges bps basis points of the fill price on every execution.
func WithSlippageBps(bps float64) Option {
	return func(e *PaperExecutor) {
		if bps > 0 {
			e.slippage = decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10_000))
		}
	}
}

// NewPaperExecutor wraps a zerolog logger and the sink fills are forwarded to.
func NewPaperExecutor(log zerolog.Logger, sink FillSink, opts ...Option) *PaperExecutor {
	e := &PaperExecutor{log: log, sink: sink, slippage: decimal.Zero}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit honours the decision: rejected proposals are never sent and resized ones are sent with
// the resized quantity. The returned fill has already been applied to the sink.
func (e *PaperExecutor) Submit(ctx context.Context, p signal.Proposal, d risk.Decision) (signal.Fill, error) {
	if !d.Allowed() {
		return signal.Fill{}, fmt.Errorf("%w: %s", ErrNotAllowed, d)
	}
	if d.Quantity() <= 0 {
		return signal.Fill{}, fmt.Errorf("%w: %s has no quantity", ErrNotAllowed, d)
	}

	ref, err := referencePrice(p)
	if err != nil {
		return signal.Fill{}, err
	}
	adj := ref.Mul(e.slippage)
	price := ref.Add(adj)
	if p.Side == signal.Sell {
		price = ref.Sub(adj)
	}

	fill := signal.Fill{
		ID:         uuid.New(),
		ProposalID: p.ID,
		Contract:   p.Contract,
		Side:       p.Side,
		Lots:       d.Quantity(),
		Price:      price.Round(4),
		Ts:         p.Market.AsOf,
	}
	metrics.OrdersTotal.WithLabelValues(p.Contract.Underlying, string(p.Side)).Inc()
	e.log.Info().
		Str("proposal", p.ID.String()).
		Str("contract", p.Contract.String()).
		Str("side", string(p.Side)).
		Int64("lots", fill.Lots).
		Str("px", fill.Price.String()).
		Msg("paper fill")

	if err := e.sink.ApplyFill(ctx, fill); err != nil {
		return signal.Fill{}, fmt.Errorf("apply fill %s: %w", fill.ID, err)
	}
	return fill, nil
}

func referencePrice(p signal.Proposal) (decimal.Decimal, error) {
	if p.Market.HasOptionPrice {
		return decimal.NewFromFloat(p.Market.OptionPrice), nil
	}
	g, err := pricing.PriceAndGreeks(p.Contract, p.Market, p.Volatility)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(g.Price), nil
}
