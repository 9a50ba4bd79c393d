package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"optionsgate-go/internal/pricing"
)

// Tracker is the single owner of positions, cash and the high-water mark for a session.
// It is not safe for concurrent use; callers serialize access (see session.Session).
type Tracker struct {
	model ReturnModel
	book  *book
}

// NewTracker starts an empty portfolio with the given capital.
func NewTracker(capital decimal.Decimal, model ReturnModel) (*Tracker, error) {
	if !capital.IsPositive() {
		return nil, fmt.Errorf("%w: starting capital must be positive, got %s", pricing.ErrInvalidInput, capital)
	}
	model = model.withDefaults()
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{model: model, book: newBook(capital)}, nil
}

// ApplyFill records one execution of signedLots at price. Each call is one fill event; replaying
// it double counts. On error the portfolio is left untouched.
func (t *Tracker) ApplyFill(c pricing.OptionContract, signedLots int64, price decimal.Decimal) error {
	next := t.book.clone()
	if err := next.applyFill(c, signedLots, price); err != nil {
		return err
	}
	t.book = next
	return nil
}

// MarkToMarket revalues the positions named in marks. Marks for contracts that are no longer held
// are ignored. Either every mark is applied or, on the first pricing error, none is.
func (t *Tracker) MarkToMarket(marks map[pricing.ContractKey]Mark) error {
	next := t.book.clone()
	if err := next.applyMarks(marks); err != nil {
		return err
	}
	t.book = next
	return nil
}

// ValueAtRisk returns the parametric loss not exceeded with the given confidence over horizonDays
// trading days.
func (t *Tracker) ValueAtRisk(confidence, horizonDays float64) (decimal.Decimal, error) {
	return valueAtRisk(t.book, t.model, confidence, horizonDays)
}

// Drawdown is the fractional decline of equity from its high-water mark, in [0,1).
func (t *Tracker) Drawdown() float64 { return t.book.drawdown() }

// Equity is cash plus the marked value of all open positions.
func (t *Tracker) Equity() decimal.Decimal { return t.book.equity }

// HighWaterMark is the highest equity seen this session.
func (t *Tracker) HighWaterMark() decimal.Decimal { return t.book.hwm }

// Model returns the return model used for value at risk.
func (t *Tracker) Model() ReturnModel { return t.model }

// Snapshot returns an immutable view of the current state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{book: t.book, model: t.model}
}
