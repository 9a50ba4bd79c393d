package strategy

import (
	"fmt"
	"sync"

	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/signal"
)

// IronCondor sells an out-of-the-money strangle and buys further wings, betting on a range.
type IronCondor struct {
	params  Params
	mu      sync.Mutex
	entered map[string]bool
}

// NewIronCondor builds a short iron condor strategy.
func NewIronCondor(params Params) *IronCondor {
	return &IronCondor{params: params.withDefaults(), entered: make(map[string]bool)}
}

// Name returns the identifier for the strategy implementation.
func (s *IronCondor) Name() string { return "IronCondor" }

// OnTick proposes all four legs on the first tick of an underlying.
func (s *IronCondor) OnTick(t signal.Tick) []signal.Proposal {
	if t.Symbol == "" || t.Price <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entered[t.Symbol] {
		return nil
	}

	step := s.params.StrikeStep
	inner, outer := s.params.CondorShortOffset, s.params.CondorLongOffset
	legs := []struct {
		strike float64
		typ    pricing.OptionType
		side   signal.Side
	}{
		{roundStrike(t.Price*(1-inner), step), pricing.Put, signal.Sell},
		{roundStrike(t.Price*(1-outer), step), pricing.Put, signal.Buy},
		{roundStrike(t.Price*(1+inner), step), pricing.Call, signal.Sell},
		{roundStrike(t.Price*(1+outer), step), pricing.Call, signal.Buy},
	}
	reason := fmt.Sprintf("iron condor %.0f/%.0f/%.0f/%.0f", legs[1].strike, legs[0].strike, legs[2].strike, legs[3].strike)

	out := make([]signal.Proposal, 0, len(legs))
	for _, l := range legs {
		p, ok := s.params.leg(s.Name(), t, l.strike, l.typ, l.side, reason)
		if !ok {
			return nil
		}
		out = append(out, p)
	}
	s.entered[t.Symbol] = true
	return out
}
