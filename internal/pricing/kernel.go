package pricing

import (
	"fmt"
	"math"
)

// GreeksResult holds the theoretical price and its analytic sensitivities per unit of underlying.
// Delta and Gamma are with respect to spot, Vega per 1.00 of volatility, Theta per year and
// Rho per 1.00 of rate.
type GreeksResult struct {
	Price float64
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// VegaPerPoint is the price change for a one percentage point move in volatility.
func (g GreeksResult) VegaPerPoint() float64 { return g.Vega / 100 }

// ThetaPerDay is the price decay over one calendar day.
func (g GreeksResult) ThetaPerDay() float64 { return g.Theta / DaysPerYear }

// RhoPerPoint is the price change for a one percentage point move in the rate.
func (g GreeksResult) RhoPerPoint() float64 { return g.Rho / 100 }

// PriceAndGreeks values a European option with the Black-Scholes-Merton formula.
func PriceAndGreeks(c OptionContract, s MarketSnapshot, volatility float64) (GreeksResult, error) {
	t, err := validateInputs(c, s)
	if err != nil {
		return GreeksResult{}, err
	}
	if !(volatility >= 0) || math.IsInf(volatility, 0) {
		return GreeksResult{}, fmt.Errorf("%w: volatility must be non-negative, got %v", ErrInvalidInput, volatility)
	}
	return priceAndGreeks(c.Type, c.Strike, s.Spot, s.Rate, t, volatility), nil
}

func validateInputs(c OptionContract, s MarketSnapshot) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if err := s.Validate(); err != nil {
		return 0, err
	}
	t := c.YearsToExpiry(s.AsOf)
	if t < 0 {
		return 0, fmt.Errorf("%w: contract expired %s before valuation", ErrInvalidInput, s.AsOf.Sub(c.Expiry))
	}
	return t, nil
}

func priceAndGreeks(typ OptionType, k, spot, r, t, vol float64) GreeksResult {
	if t == 0 {
		return atExpiry(typ, k, spot)
	}
	sqrtT := math.Sqrt(t)
	volSqrtT := vol * sqrtT
	df := math.Exp(-r * t)
	if volSqrtT == 0 {
		return deterministic(typ, k, spot, r, t, df)
	}

	d1 := (math.Log(spot/k) + (r+0.5*vol*vol)*t) / volSqrtT
	d2 := d1 - volSqrtT
	pdf := NormPDF(d1)

	g := GreeksResult{
		Gamma: pdf / (spot * volSqrtT),
		Vega:  spot * pdf * sqrtT,
	}
	decay := -spot * pdf * vol / (2 * sqrtT)
	if typ == Call {
		nd1, nd2 := NormCDF(d1), NormCDF(d2)
		g.Price = spot*nd1 - k*df*nd2
		g.Delta = nd1
		g.Theta = decay - r*k*df*nd2
		g.Rho = k * t * df * nd2
	} else {
		nmd1, nmd2 := NormCDF(-d1), NormCDF(-d2)
		g.Price = k*df*nmd2 - spot*nmd1
		g.Delta = -nmd1
		g.Theta = decay + r*k*df*nmd2
		g.Rho = -k * t * df * nmd2
	}
	return g
}

// atExpiry returns intrinsic value; delta is 1/-1 in the money and 0 otherwise.
func atExpiry(typ OptionType, k, spot float64) GreeksResult {
	if typ == Call {
		if spot > k {
			return GreeksResult{Price: spot - k, Delta: 1}
		}
		return GreeksResult{}
	}
	if spot < k {
		return GreeksResult{Price: k - spot, Delta: -1}
	}
	return GreeksResult{}
}

// deterministic covers zero volatility before expiry: the underlying grows at the rate, so the
// payoff is known and discounted.
func deterministic(typ OptionType, k, spot, r, t, df float64) GreeksResult {
	pv := k * df
	if typ == Call {
		if spot > pv {
			return GreeksResult{Price: spot - pv, Delta: 1, Theta: -r * pv, Rho: t * pv}
		}
		return GreeksResult{}
	}
	if spot < pv {
		return GreeksResult{Price: pv - spot, Delta: -1, Theta: r * pv, Rho: -t * pv}
	}
	return GreeksResult{}
}
