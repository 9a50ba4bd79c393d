// Package signal standardizes payloads shared between the feed, strategies, the risk gate and the
// executor.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

// Tick models one underlying price update.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   int // +1 buy, -1 sell (aggressor)
	Ts     time.Time
}

// Side enumerates trade directions.
type Side string

const (
	// Buy opens or adds to a long, or covers a short.
	Buy Side = "BUY"
	// Sell opens or adds to a short, or reduces a long.
	Sell Side = "SELL"
)

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Proposal is a candidate trade put to the risk gate.
type Proposal struct {
	ID       uuid.UUID
	Strategy string
	Contract pricing.OptionContract
	Side     Side
	Lots     int64 // positive; direction comes from Side

	// Market is the state the proposal was priced against. When it carries an option quote the
	// gate derives volatility from it and Volatility only seeds the solver.
	Market     pricing.MarketSnapshot
	Volatility float64

	Reason string
	Ts     time.Time
}

// NewProposal stamps a proposal with a fresh id.
func NewProposal(strategy string, c pricing.OptionContract, side Side, lots int64, market pricing.MarketSnapshot, vol float64, reason string) Proposal {
	return Proposal{
		ID:         uuid.New(),
		Strategy:   strategy,
		Contract:   c,
		Side:       side,
		Lots:       lots,
		Market:     market,
		Volatility: vol,
		Reason:     reason,
		Ts:         market.AsOf,
	}
}

// SignedLots returns Lots with the sign of Side.
func (p Proposal) SignedLots() int64 { return p.Side.Sign() * p.Lots }

// Validate checks the fields the gate relies on before any pricing.
func (p Proposal) Validate() error {
	if !p.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", pricing.ErrInvalidInput, p.Side)
	}
	if p.Lots <= 0 {
		return fmt.Errorf("%w: lots must be positive, got %d", pricing.ErrInvalidInput, p.Lots)
	}
	return p.Contract.Validate()
}

// Fill is an execution report for a proposal.
type Fill struct {
	ID         uuid.UUID
	ProposalID uuid.UUID
	Contract   pricing.OptionContract
	Side       Side
	Lots       int64
	Price      decimal.Decimal // premium per unit of underlying
	Ts         time.Time
}

// SignedLots returns Lots with the sign of Side.
func (f Fill) SignedLots() int64 { return f.Side.Sign() * f.Lots }

// Notional is the premium exchanged: lots x multiplier x price.
func (f Fill) Notional() decimal.Decimal {
	return decimal.NewFromInt(f.Lots * f.Contract.Multiplier).Mul(f.Price)
}
