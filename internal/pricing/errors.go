package pricing

import "errors"

var (
	// ErrInvalidInput marks malformed or out-of-domain numeric arguments. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoConvergence reports that the implied volatility solver ran out of iterations.
	ErrNoConvergence = errors.New("no convergence")
	// ErrArbitrageViolation reports a market quote outside the no-arbitrage bounds of its contract.
	ErrArbitrageViolation = errors.New("arbitrage violation")
)

// ErrorKind maps an analytics error onto a short label suitable for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNoConvergence):
		return "no_convergence"
	case errors.Is(err, ErrArbitrageViolation):
		return "arbitrage_violation"
	default:
		return "unknown"
	}
}
