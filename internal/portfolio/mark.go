package portfolio

import (
	"optionsgate-go/internal/pricing"
)

// Mark is the market state and volatility used to revalue one contract.
type Mark struct {
	Market     pricing.MarketSnapshot
	Volatility float64
}

// MarkFromQuote derives the mark volatility from the option quote carried by market.
func MarkFromQuote(c pricing.OptionContract, market pricing.MarketSnapshot, opts ...pricing.SolverOption) (Mark, error) {
	vol, err := pricing.ImpliedVolatility(c, market, opts...)
	if err != nil {
		return Mark{}, err
	}
	return Mark{Market: market, Volatility: vol}, nil
}
