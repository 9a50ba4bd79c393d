package strategy

import (
	"fmt"
	"sync"

	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/signal"
)

// Straddle buys an at-the-money call and put the first time it sees an underlying.
type Straddle struct {
	params  Params
	mu      sync.Mutex
	entered map[string]bool
}

// NewStraddle builds a long straddle strategy.
func NewStraddle(params Params) *Straddle {
	return &Straddle{params: params.withDefaults(), entered: make(map[string]bool)}
}

// Name returns the identifier for the strategy implementation.
func (s *Straddle) Name() string { return "Straddle" }

// OnTick enters once per underlying.
func (s *Straddle) OnTick(t signal.Tick) []signal.Proposal {
	if t.Symbol == "" || t.Price <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entered[t.Symbol] {
		return nil
	}

	strike := roundStrike(t.Price, s.params.StrikeStep)
	reason := fmt.Sprintf("atm straddle at %.2f", strike)
	var out []signal.Proposal
	for _, typ := range []pricing.OptionType{pricing.Call, pricing.Put} {
		p, ok := s.params.leg(s.Name(), t, strike, typ, signal.Buy, reason)
		if !ok {
			return nil
		}
		out = append(out, p)
	}
	s.entered[t.Symbol] = true
	return out
}
