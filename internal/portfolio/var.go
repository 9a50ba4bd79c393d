package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"optionsgate-go/internal/pricing"
)

// VaRMethod selects how the loss distribution is estimated.
type VaRMethod string

const (
	// DeltaNormal treats P&L as linear in the underlying move.
	DeltaNormal VaRMethod = "delta-normal"
	// DeltaGamma adds the second-order spot term.
	DeltaGamma VaRMethod = "delta-gamma"
	// Historical revalues the book under each day of the supplied return history.
	Historical VaRMethod = "historical"
)

// MinHistorySamples is the shortest aligned history the historical method uses. Below it the
// historical component is zero and Snapshot.InsufficientHistory reports true.
const MinHistorySamples = 50

// ReturnModel is the distribution assumed for value at risk. Underlying log returns are normal
// with annualized volatility from Volatility, or DefaultVolatility when an underlying is not
// listed, and share one pairwise Correlation. Implied volatility moves are normal with annualized
// absolute VolOfVol, independent of spot.
//
// Historical ignores the volatilities and instead replays History, daily log returns per
// underlying ordered oldest first. Underlyings are aligned on their most recent observations.
//
// All methods are local approximations. They understate losses for large moves and on short
// gamma books and are meant for pre-trade gating, not for sizing tail hedges.
type ReturnModel struct {
	Method            VaRMethod
	DefaultVolatility float64
	Volatility        map[string]float64
	Correlation       float64
	VolOfVol          float64
	TradingDays       float64
	History           map[string][]float64
}

// DefaultReturnModel is delta-normal, 20% volatility, perfectly correlated underlyings and no
// vega term.
func DefaultReturnModel() ReturnModel {
	return ReturnModel{
		Method:            DeltaNormal,
		DefaultVolatility: 0.20,
		Correlation:       1,
		TradingDays:       252,
	}
}

func (m ReturnModel) withDefaults() ReturnModel {
	if m.Method == "" {
		m.Method = DeltaNormal
	}
	if m.DefaultVolatility == 0 {
		m.DefaultVolatility = 0.20
	}
	if m.TradingDays == 0 {
		m.TradingDays = 252
	}
	return m
}

// Validate rejects parameters the VaR computation cannot use.
func (m ReturnModel) Validate() error {
	if m.Method != DeltaNormal && m.Method != DeltaGamma && m.Method != Historical {
		return fmt.Errorf("%w: unknown var method %q", pricing.ErrInvalidInput, m.Method)
	}
	if !validVol(m.DefaultVolatility) {
		return fmt.Errorf("%w: default volatility %v", pricing.ErrInvalidInput, m.DefaultVolatility)
	}
	for u, v := range m.Volatility {
		if !validVol(v) {
			return fmt.Errorf("%w: volatility for %s is %v", pricing.ErrInvalidInput, u, v)
		}
	}
	if !(m.Correlation >= -1 && m.Correlation <= 1) {
		return fmt.Errorf("%w: correlation %v outside [-1,1]", pricing.ErrInvalidInput, m.Correlation)
	}
	if !validVol(m.VolOfVol) {
		return fmt.Errorf("%w: vol of vol %v", pricing.ErrInvalidInput, m.VolOfVol)
	}
	if !(m.TradingDays > 0) || math.IsInf(m.TradingDays, 0) {
		return fmt.Errorf("%w: trading days %v", pricing.ErrInvalidInput, m.TradingDays)
	}
	for u, series := range m.History {
		for i, r := range series {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return fmt.Errorf("%w: history for %s has %v at %d", pricing.ErrInvalidInput, u, r, i)
			}
		}
	}
	return nil
}

func validVol(v float64) bool { return v >= 0 && !math.IsInf(v, 0) }

func (m ReturnModel) volatility(underlying string) float64 {
	if v, ok := m.Volatility[underlying]; ok {
		return v
	}
	return m.DefaultVolatility
}

// exposureBucket aggregates the Greeks of one underlying in currency units.
type exposureBucket struct {
	underlying string
	spot       float64
	delta      float64 // units of underlying
	gamma      float64
	vega       float64
}

// exposureBuckets groups marked positions by underlying, ordered by name, and sums the premium of
// positions that have no model mark yet.
func exposureBuckets(b *book) ([]*exposureBucket, decimal.Decimal) {
	buckets := map[string]*exposureBucket{}
	unmarked := decimal.Zero
	for _, p := range b.positions {
		if !p.Marked {
			unmarked = unmarked.Add(p.Units().Abs().Mul(p.AvgPrice))
			continue
		}
		u := p.Contract.Underlying
		bk, ok := buckets[u]
		if !ok {
			bk = &exposureBucket{underlying: u, spot: b.spot(p)}
			buckets[u] = bk
		}
		units := float64(p.Quantity * p.Contract.Multiplier)
		bk.delta += units * p.Greeks.Delta
		bk.gamma += units * p.Greeks.Gamma
		bk.vega += units * p.Greeks.Vega
	}

	ordered := make([]*exposureBucket, 0, len(buckets))
	for _, bk := range buckets {
		ordered = append(ordered, bk)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].underlying < ordered[j].underlying })
	return ordered, unmarked
}

// valueAtRisk returns the loss not exceeded with the given confidence plus the premium of positions
// that have no model mark yet. A non-finite intermediate is an error, never a zero VaR.
func valueAtRisk(b *book, m ReturnModel, confidence, horizonDays float64) (decimal.Decimal, error) {
	if !(confidence > 0 && confidence < 1) {
		return decimal.Zero, fmt.Errorf("%w: confidence must be in (0,1), got %v", pricing.ErrInvalidInput, confidence)
	}
	if !(horizonDays > 0) || math.IsInf(horizonDays, 0) {
		return decimal.Zero, fmt.Errorf("%w: horizon must be positive, got %v", pricing.ErrInvalidInput, horizonDays)
	}
	if err := m.Validate(); err != nil {
		return decimal.Zero, err
	}

	buckets, unmarked := exposureBuckets(b)
	var (
		v   float64
		err error
	)
	if m.Method == Historical {
		v, err = historicalVaR(buckets, m, confidence, horizonDays)
	} else {
		v, err = parametricVaR(buckets, m, confidence, horizonDays)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(v).Add(unmarked), nil
}

// parametricVaR is z·σ_P minus the expected gamma gain, floored at zero.
func parametricVaR(buckets []*exposureBucket, m ReturnModel, confidence, horizonDays float64) (float64, error) {
	h := horizonDays / m.TradingDays
	spotTerms := make([]float64, len(buckets))
	vegaTerms := make([]float64, len(buckets))
	var variance, expectedGain float64
	for i, bk := range buckets {
		move := bk.spot * m.volatility(bk.underlying) * math.Sqrt(h) // one standard deviation
		spotTerms[i] = bk.delta * move
		vegaTerms[i] = bk.vega * m.VolOfVol * math.Sqrt(h)
		if m.Method == DeltaGamma {
			g := 0.5 * bk.gamma * move * move
			expectedGain += g
			variance += 2 * g * g
		}
	}
	variance += correlated(spotTerms, m.Correlation) + correlated(vegaTerms, m.Correlation)
	if !finite(variance) || !finite(expectedGain) {
		return 0, fmt.Errorf("%w: portfolio variance is not finite", pricing.ErrInvalidInput)
	}

	v := pricing.NormInv(confidence)*math.Sqrt(math.Max(variance, 0)) - expectedGain
	if !finite(v) {
		return 0, fmt.Errorf("%w: value at risk is not finite", pricing.ErrInvalidInput)
	}
	return math.Max(v, 0), nil
}

// historicalVaR replays the aligned return history through a delta-gamma revaluation and takes
// the (1 - confidence) quantile of the scenario P&L. Too short a history yields zero.
func historicalVaR(buckets []*exposureBucket, m ReturnModel, confidence, horizonDays float64) (float64, error) {
	n := historySamples(buckets, m)
	if len(buckets) == 0 || n < MinHistorySamples {
		return 0, nil
	}
	scale := math.Sqrt(horizonDays)
	pnl := make([]float64, n)
	for _, bk := range buckets {
		series := m.History[bk.underlying]
		recent := series[len(series)-n:]
		for i, r := range recent {
			move := bk.spot * math.Expm1(r*scale)
			pnl[i] += bk.delta*move + 0.5*bk.gamma*move*move
		}
	}
	for _, x := range pnl {
		if !finite(x) {
			return 0, fmt.Errorf("%w: scenario p&l is not finite", pricing.ErrInvalidInput)
		}
	}
	sort.Float64s(pnl)
	q := stat.Quantile(1-confidence, stat.Empirical, pnl, nil)
	return math.Max(-q, 0), nil
}

// historySamples is the number of days every bucket has history for.
func historySamples(buckets []*exposureBucket, m ReturnModel) int {
	n := -1
	for _, bk := range buckets {
		if l := len(m.History[bk.underlying]); n < 0 || l < n {
			n = l
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// correlated returns Σ_i Σ_j ρ_ij x_i x_j with ρ_ii = 1 and ρ_ij = rho.
func correlated(x []float64, rho float64) float64 {
	var sum, sumSq float64
	for _, v := range x {
		sum += v
		sumSq += v * v
	}
	return rho*sum*sum + (1-rho)*sumSq
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
