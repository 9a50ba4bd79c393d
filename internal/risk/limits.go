// Package risk decides whether proposed trades fit within the session's risk limits.
package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

const (
	defaultVaRConfidence  = 0.99
	defaultVaRHorizonDays = 1.0
)

// Limits is the configuration snapshot for one trading session. A zero limit disables its check.
type Limits struct {
	MaxVaR               decimal.Decimal // currency
	MaxDrawdown          float64         // fraction of high-water mark
	MaxPositionSize      int64           // net lots per underlying
	MaxAggregateExposure decimal.Decimal // gross underlying notional
	MaxTradeRiskPercent  float64         // worst loss of one trade, percent of equity
	VaRConfidence        float64
	VaRHorizonDays       float64
}

// WithDefaults fills in the VaR confidence and horizon when unset.
func (l Limits) WithDefaults() Limits {
	if l.VaRConfidence == 0 {
		l.VaRConfidence = defaultVaRConfidence
	}
	if l.VaRHorizonDays == 0 {
		l.VaRHorizonDays = defaultVaRHorizonDays
	}
	return l
}

// Validate rejects negative or malformed limits.
func (l Limits) Validate() error {
	if l.MaxVaR.IsNegative() {
		return fmt.Errorf("%w: max var must be non-negative", pricing.ErrInvalidInput)
	}
	if !(l.MaxDrawdown >= 0 && l.MaxDrawdown < 1) {
		return fmt.Errorf("%w: max drawdown %v outside [0,1)", pricing.ErrInvalidInput, l.MaxDrawdown)
	}
	if l.MaxPositionSize < 0 {
		return fmt.Errorf("%w: max position size must be non-negative", pricing.ErrInvalidInput)
	}
	if l.MaxAggregateExposure.IsNegative() {
		return fmt.Errorf("%w: max aggregate exposure must be non-negative", pricing.ErrInvalidInput)
	}
	if !(l.MaxTradeRiskPercent >= 0 && l.MaxTradeRiskPercent <= 100) {
		return fmt.Errorf("%w: max trade risk %v%% outside [0,100]", pricing.ErrInvalidInput, l.MaxTradeRiskPercent)
	}
	if !(l.VaRConfidence > 0 && l.VaRConfidence < 1) {
		return fmt.Errorf("%w: var confidence %v outside (0,1)", pricing.ErrInvalidInput, l.VaRConfidence)
	}
	if !(l.VaRHorizonDays > 0) || math.IsInf(l.VaRHorizonDays, 0) {
		return fmt.Errorf("%w: var horizon %v", pricing.ErrInvalidInput, l.VaRHorizonDays)
	}
	return nil
}
