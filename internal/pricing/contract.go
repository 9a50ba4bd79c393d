// Package pricing values European options, derives their Greeks and inverts quotes to implied volatility.
package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	// Call is the right to buy the underlying at the strike.
	Call OptionType = "CALL"
	// Put is the right to sell the underlying at the strike.
	Put OptionType = "PUT"
)

// ParseOptionType accepts "call"/"c"/"ce" and "put"/"p"/"pe" in any case.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return Call, nil
	case "PUT", "P", "PE":
		return Put, nil
	default:
		return "", fmt.Errorf("%w: unknown option type %q", ErrInvalidInput, s)
	}
}

const (
	// DaysPerYear is the day-count basis for time to expiry.
	DaysPerYear    = 365.0
	secondsPerYear = DaysPerYear * 24 * 60 * 60
)

// OptionContract describes a listed European option. Values are immutable once constructed.
type OptionContract struct {
	Underlying string
	Strike     float64
	Expiry     time.Time
	Type       OptionType
	Multiplier int64 // lot size
}

// ContractKey identifies a contract inside a portfolio.
type ContractKey string

// NewOptionContract validates and builds a contract.
func NewOptionContract(underlying string, strike float64, expiry time.Time, typ OptionType, multiplier int64) (OptionContract, error) {
	c := OptionContract{
		Underlying: strings.ToUpper(strings.TrimSpace(underlying)),
		Strike:     strike,
		Expiry:     expiry,
		Type:       typ,
		Multiplier: multiplier,
	}
	if err := c.Validate(); err != nil {
		return OptionContract{}, err
	}
	return c, nil
}

// Validate checks the static fields of the contract.
func (c OptionContract) Validate() error {
	if c.Underlying == "" {
		return fmt.Errorf("%w: empty underlying", ErrInvalidInput)
	}
	if !(c.Strike > 0) || math.IsInf(c.Strike, 0) {
		return fmt.Errorf("%w: strike must be positive, got %v", ErrInvalidInput, c.Strike)
	}
	if c.Type != Call && c.Type != Put {
		return fmt.Errorf("%w: unknown option type %q", ErrInvalidInput, c.Type)
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("%w: multiplier must be positive, got %d", ErrInvalidInput, c.Multiplier)
	}
	if c.Expiry.IsZero() {
		return fmt.Errorf("%w: missing expiry", ErrInvalidInput)
	}
	return nil
}

// Key returns the identity used to key positions, e.g. "NIFTY|20240125T100000Z|19500|CALL".
func (c OptionContract) Key() ContractKey {
	return ContractKey(c.Underlying + "|" +
		c.Expiry.UTC().Format("20060102T150405Z") + "|" +
		strconv.FormatFloat(c.Strike, 'f', -1, 64) + "|" +
		string(c.Type))
}

// String renders the contract for logs.
func (c OptionContract) String() string {
	return fmt.Sprintf("%s %s %s %s", c.Underlying, c.Expiry.UTC().Format("2006-01-02"),
		strconv.FormatFloat(c.Strike, 'f', -1, 64), c.Type)
}

// Intrinsic returns the exercise value per unit of underlying at the given spot.
func (c OptionContract) Intrinsic(spot float64) float64 {
	if c.Type == Call {
		return math.Max(spot-c.Strike, 0)
	}
	return math.Max(c.Strike-spot, 0)
}

// YearsToExpiry measures time to expiry from asOf on the DaysPerYear basis. Negative once expired.
func (c OptionContract) YearsToExpiry(asOf time.Time) float64 {
	return c.Expiry.Sub(asOf).Seconds() / secondsPerYear
}

// MarketSnapshot is the market state for one evaluation call.
type MarketSnapshot struct {
	Spot float64
	Rate float64 // continuously compounded, may be zero or negative
	AsOf time.Time

	// OptionPrice is the observed premium; only meaningful when HasOptionPrice is set.
	OptionPrice    float64
	HasOptionPrice bool
}

// WithOptionPrice returns a copy carrying an observed option premium.
func (s MarketSnapshot) WithOptionPrice(price float64) MarketSnapshot {
	s.OptionPrice = price
	s.HasOptionPrice = true
	return s
}

// Validate checks the snapshot fields the kernel depends on.
func (s MarketSnapshot) Validate() error {
	if !(s.Spot > 0) || math.IsInf(s.Spot, 0) {
		return fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidInput, s.Spot)
	}
	if math.IsNaN(s.Rate) || math.IsInf(s.Rate, 0) {
		return fmt.Errorf("%w: rate must be finite, got %v", ErrInvalidInput, s.Rate)
	}
	if s.AsOf.IsZero() {
		return fmt.Errorf("%w: missing valuation time", ErrInvalidInput)
	}
	return nil
}
