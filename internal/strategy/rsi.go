package strategy

import (
	"fmt"
	"sync"

	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/signal"
)

// RSIMomentum buys an at-the-money call when the underlying is oversold and closes it once
// overbought.
type RSIMomentum struct {
	params Params
	mu     sync.Mutex
	series map[string]*rsiSeries
}

type rsiSeries struct {
	last    float64
	seen    int
	avgGain float64
	avgLoss float64
	open    *signal.Proposal // entry of the held call, if any
}

// NewRSIMomentum builds a directional RSI strategy.
func NewRSIMomentum(params Params) *RSIMomentum {
	return &RSIMomentum{params: params.withDefaults(), series: make(map[string]*rsiSeries)}
}

// Name returns the identifier for the strategy implementation.
func (s *RSIMomentum) Name() string { return "RSIMomentum" }

// OnTick updates the indicator and emits at most one proposal.
func (s *RSIMomentum) OnTick(t signal.Tick) []signal.Proposal {
	if t.Symbol == "" || t.Price <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.series[t.Symbol]
	if rs == nil {
		rs = &rsiSeries{}
		s.series[t.Symbol] = rs
	}
	value, ready := rs.update(t.Price, s.params.RSIPeriod)
	if !ready {
		return nil
	}

	switch {
	case rs.open == nil && value < s.params.RSIOversold:
		strike := roundStrike(t.Price, s.params.StrikeStep)
		p, ok := s.params.leg(s.Name(), t, strike, pricing.Call, signal.Buy, fmt.Sprintf("rsi oversold %.2f", value))
		if !ok {
			return nil
		}
		rs.open = &p
		return []signal.Proposal{p}
	case rs.open != nil && value > s.params.RSIOverbought:
		entry := rs.open
		rs.open = nil
		if !entry.Contract.Expiry.After(t.Ts) {
			return nil
		}
		market := pricing.MarketSnapshot{Spot: t.Price, Rate: s.params.Rate, AsOf: t.Ts}
		exit := signal.NewProposal(s.Name(), entry.Contract, signal.Sell, entry.Lots, market, s.params.Volatility,
			fmt.Sprintf("rsi overbought %.2f", value))
		return []signal.Proposal{exit}
	}
	return nil
}

// update applies Wilder smoothing and reports whether the indicator has a full period of history.
func (rs *rsiSeries) update(price float64, period int) (float64, bool) {
	if rs.seen == 0 {
		rs.last = price
		rs.seen = 1
		return 0, false
	}
	change := price - rs.last
	rs.last = price
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(period)
	if rs.seen <= period {
		// seed with a simple average over the first period
		rs.avgGain += gain / n
		rs.avgLoss += loss / n
		rs.seen++
		if rs.seen <= period {
			return 0, false
		}
	} else {
		rs.avgGain = (rs.avgGain*(n-1) + gain) / n
		rs.avgLoss = (rs.avgLoss*(n-1) + loss) / n
	}
	if rs.avgLoss == 0 {
		if rs.avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	return 100 - 100/(1+rs.avgGain/rs.avgLoss), true
}
