// Package strategy turns underlying ticks into option trade proposals.
package strategy

import (
	"math"
	"strings"
	"time"

	"optionsgate-go/internal/pricing"
	sig "optionsgate-go/internal/signal"
)

// Strategy evaluates one time step and proposes zero or more trades.
type Strategy interface {
	OnTick(t sig.Tick) []sig.Proposal
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	Lots       int64   // lots per leg
	Multiplier int64   // contract lot size
	StrikeStep float64 // strike grid spacing
	ExpiryDays int
	Rate       float64
	Volatility float64 // pricing volatility attached to proposals

	CondorShortOffset float64 // fraction of spot for the sold wings
	CondorLongOffset  float64 // fraction of spot for the bought wings

	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
}

func (p Params) withDefaults() Params {
	if p.Lots <= 0 {
		p.Lots = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 50
	}
	if p.StrikeStep <= 0 {
		p.StrikeStep = 50
	}
	if p.ExpiryDays <= 0 {
		p.ExpiryDays = 30
	}
	if p.Volatility <= 0 {
		p.Volatility = 0.15
	}
	if p.CondorShortOffset <= 0 {
		p.CondorShortOffset = 0.02
	}
	if p.CondorLongOffset <= p.CondorShortOffset {
		p.CondorLongOffset = p.CondorShortOffset + 0.01
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOverbought <= 0 {
		p.RSIOverbought = 70
	}
	if p.RSIOversold <= 0 {
		p.RSIOversold = 30
	}
	return p
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) Strategy {
	params = params.withDefaults()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "iron_condor", "condor", "ironcondor":
		return NewIronCondor(params)
	case "rsi", "rsi_momentum", "momentum":
		return NewRSIMomentum(params)
	default:
		return NewStraddle(params)
	}
}

// leg builds a proposal for one option on the tick's underlying.
func (p Params) leg(name string, t sig.Tick, strike float64, typ pricing.OptionType, side sig.Side, reason string) (sig.Proposal, bool) {
	c, err := pricing.NewOptionContract(t.Symbol, strike, expiryFrom(t.Ts, p.ExpiryDays), typ, p.Multiplier)
	if err != nil {
		return sig.Proposal{}, false
	}
	market := pricing.MarketSnapshot{Spot: t.Price, Rate: p.Rate, AsOf: t.Ts}
	return sig.NewProposal(name, c, side, p.Lots, market, p.Volatility, reason), true
}

// roundStrike snaps a price onto the strike grid.
func roundStrike(price, step float64) float64 {
	return math.Round(price/step) * step
}

func expiryFrom(ts time.Time, days int) time.Time {
	return ts.UTC().AddDate(0, 0, days)
}
