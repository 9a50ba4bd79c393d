package pricing

import (
	"fmt"
	"math"
)

const (
	defaultTolerance     = 1e-6
	defaultMaxIterations = 100
	defaultMinVol        = 1e-4
	defaultMaxVol        = 5.0
	defaultMinVega       = 1e-8
	fallbackGuess        = 0.2
)

type solverConfig struct {
	guess         float64
	tolerance     float64
	maxIterations int
	minVol        float64
	maxVol        float64
	minVega       float64
}

// SolverOption tunes the implied volatility solver.
type SolverOption func(*solverConfig)

// WithInitialGuess seeds Newton iteration. Guesses outside the volatility bounds are ignored.
func WithInitialGuess(vol float64) SolverOption {
	return func(c *solverConfig) { c.guess = vol }
}

// WithTolerance sets the absolute price error accepted as converged.
func WithTolerance(tol float64) SolverOption {
	return func(c *solverConfig) {
		if tol > 0 {
			c.tolerance = tol
		}
	}
}

// WithMaxIterations bounds the number of pricing evaluations spent searching.
func WithMaxIterations(n int) SolverOption {
	return func(c *solverConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithVolatilityBounds restricts the search domain.
func WithVolatilityBounds(lo, hi float64) SolverOption {
	return func(c *solverConfig) {
		if lo > 0 && hi > lo {
			c.minVol, c.maxVol = lo, hi
		}
	}
}

// WithMinVega sets the sensitivity below which Newton steps give way to bisection.
func WithMinVega(v float64) SolverOption {
	return func(c *solverConfig) {
		if v > 0 {
			c.minVega = v
		}
	}
}

// SolverResult reports the implied volatility along with how it was found.
type SolverResult struct {
	Volatility float64
	Iterations int
	Bisections int
}

// ImpliedVolatility returns the volatility that reproduces snapshot.OptionPrice.
func ImpliedVolatility(c OptionContract, s MarketSnapshot, opts ...SolverOption) (float64, error) {
	res, err := SolveImpliedVolatility(c, s, opts...)
	if err != nil {
		return 0, err
	}
	return res.Volatility, nil
}

// SolveImpliedVolatility runs Newton-Raphson on vega inside a shrinking bisection bracket.
// A step falls back to bisection when vega is too small or Newton would leave the bracket,
// so every call ends in either a converged volatility or ErrNoConvergence.
func SolveImpliedVolatility(c OptionContract, s MarketSnapshot, opts ...SolverOption) (SolverResult, error) {
	cfg := solverConfig{
		tolerance:     defaultTolerance,
		maxIterations: defaultMaxIterations,
		minVol:        defaultMinVol,
		maxVol:        defaultMaxVol,
		minVega:       defaultMinVega,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	t, err := validateInputs(c, s)
	if err != nil {
		return SolverResult{}, err
	}
	if !s.HasOptionPrice {
		return SolverResult{}, fmt.Errorf("%w: snapshot carries no option price", ErrInvalidInput)
	}
	target := s.OptionPrice
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return SolverResult{}, fmt.Errorf("%w: option price must be finite, got %v", ErrInvalidInput, target)
	}

	if t == 0 {
		intrinsic := c.Intrinsic(s.Spot)
		if math.Abs(target-intrinsic) > cfg.tolerance {
			return SolverResult{}, fmt.Errorf("%w: expiring %s quoted %.6f, intrinsic %.6f", ErrArbitrageViolation, c, target, intrinsic)
		}
		// any volatility reproduces intrinsic at expiry; zero is the canonical answer
		return SolverResult{}, nil
	}

	lower, upper := noArbitrageBounds(c, s, t)
	if target < lower || target > upper {
		return SolverResult{}, fmt.Errorf("%w: %s quoted %.6f outside [%.6f, %.6f]", ErrArbitrageViolation, c, target, lower, upper)
	}

	price := func(vol float64) GreeksResult {
		return priceAndGreeks(c.Type, c.Strike, s.Spot, s.Rate, t, vol)
	}

	lo, hi := cfg.minVol, cfg.maxVol
	pLo, pHi := price(lo).Price, price(hi).Price
	switch {
	case math.Abs(pLo-target) < cfg.tolerance:
		return SolverResult{Volatility: lo}, nil
	case math.Abs(pHi-target) < cfg.tolerance:
		return SolverResult{Volatility: hi}, nil
	case target < pLo:
		return SolverResult{}, fmt.Errorf("%w: %s quoted %.6f implies volatility below %.4g", ErrNoConvergence, c, target, lo)
	case target > pHi:
		return SolverResult{}, fmt.Errorf("%w: %s quoted %.6f implies volatility above %.4g", ErrNoConvergence, c, target, hi)
	}

	vol := cfg.guess
	if !(vol > lo && vol < hi) {
		vol = brennerSubrahmanyam(target, s.Spot, t)
	}
	if !(vol > lo && vol < hi) {
		vol = fallbackGuess
	}
	if !(vol > lo && vol < hi) {
		vol = 0.5 * (lo + hi)
	}

	res := SolverResult{}
	for res.Iterations < cfg.maxIterations {
		res.Iterations++
		g := price(vol)
		diff := g.Price - target
		if math.Abs(diff) < cfg.tolerance {
			res.Volatility = vol
			return res, nil
		}
		// price is increasing in volatility, so the sign of diff moves one side of the bracket
		if diff > 0 {
			hi = vol
		} else {
			lo = vol
		}
		next := math.NaN()
		if g.Vega > cfg.minVega {
			next = vol - diff/g.Vega
		}
		if !(next > lo && next < hi) {
			next = 0.5 * (lo + hi)
			res.Bisections++
		}
		vol = next
	}
	return res, fmt.Errorf("%w: %s quoted %.6f after %d iterations (bracket [%.6g, %.6g])",
		ErrNoConvergence, c, target, res.Iterations, lo, hi)
}

// noArbitrageBounds returns the European price bounds: discounted intrinsic below, spot (calls)
// or discounted strike (puts) above.
func noArbitrageBounds(c OptionContract, s MarketSnapshot, t float64) (float64, float64) {
	pv := c.Strike * math.Exp(-s.Rate*t)
	if c.Type == Call {
		return math.Max(s.Spot-pv, 0), s.Spot
	}
	return math.Max(pv-s.Spot, 0), pv
}

// brennerSubrahmanyam is the at-the-money approximation σ ≈ sqrt(2π/T)·C/S.
func brennerSubrahmanyam(price, spot, t float64) float64 {
	return math.Sqrt(2*math.Pi/t) * price / spot
}
