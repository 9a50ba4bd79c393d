// Package session owns the portfolio for one trading session and serializes every update to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optionsgate-go/internal/metrics"
	"optionsgate-go/internal/portfolio"
	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/signal"
)

// ErrClosed is returned once the session has stopped processing commands.
var ErrClosed = errors.New("session closed")

const defaultMarkVolatility = 0.15

type request struct {
	fn    func(*portfolio.Tracker) error
	reply chan error
}

// Session carries the risk limits, gate, fill ledger and the portfolio tracker for one trading
// session. The tracker is only touched by the goroutine running Run; fills, marks and snapshot
// reads all pass through one channel, so a decision never sees a half-applied fill.
type Session struct {
	id       uuid.UUID
	log      zerolog.Logger
	limits   risk.Limits
	gate     *risk.Gate
	ledger   *Ledger
	model    portfolio.ReturnModel
	markVol  float64
	rate     float64
	tracker  *portfolio.Tracker
	requests chan request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	final    portfolio.Snapshot

	historyWarned bool // owner goroutine only
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithGate replaces the default risk gate.
func WithGate(g *risk.Gate) Option {
	return func(s *Session) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithReturnModel sets the VaR distribution assumptions.
func WithReturnModel(m portfolio.ReturnModel) Option {
	return func(s *Session) { s.model = m }
}

// WithMarkParameters sets the volatility used for positions that have never been marked and the
// rate used when marking from underlying ticks.
func WithMarkParameters(volatility, rate float64) Option {
	return func(s *Session) {
		if volatility > 0 {
			s.markVol = volatility
		}
		s.rate = rate
	}
}

// WithLedger records fills into an existing ledger.
func WithLedger(l *Ledger) Option {
	return func(s *Session) {
		if l != nil {
			s.ledger = l
		}
	}
}

// New prepares a session. Limits are fixed for its lifetime; start a new session to change them.
func New(capital decimal.Decimal, limits risk.Limits, opts ...Option) (*Session, error) {
	s := &Session{
		id:       uuid.New(),
		log:      zerolog.Nop(),
		gate:     risk.NewGate(),
		ledger:   NewLedger(64),
		model:    portfolio.DefaultReturnModel(),
		markVol:  defaultMarkVolatility,
		requests: make(chan request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limits = limits.WithDefaults()
	if err := s.limits.Validate(); err != nil {
		return nil, fmt.Errorf("session limits: %w", err)
	}
	tracker, err := portfolio.NewTracker(capital, s.model)
	if err != nil {
		return nil, fmt.Errorf("session tracker: %w", err)
	}
	s.tracker = tracker
	s.log = s.log.With().Str("session", s.id.String()).Logger()
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Limits returns the limits fixed at construction.
func (s *Session) Limits() risk.Limits { return s.limits }

// Ledger returns the fills applied so far.
func (s *Session) Ledger() *Ledger { return s.ledger }

// Run processes commands until ctx is canceled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.log.Info().Str("capital", s.tracker.Equity().String()).Msg("session started")
	for {
		select {
		case <-ctx.Done():
			s.finish()
			return ctx.Err()
		case <-s.stop:
			s.finish()
			return nil
		case req := <-s.requests:
			req.reply <- req.fn(s.tracker)
		}
	}
}

func (s *Session) finish() {
	s.final = s.tracker.Snapshot()
	s.log.Info().
		Str("equity", s.final.Equity().StringFixed(2)).
		Str("realized", s.final.RealizedPnL().StringFixed(2)).
		Float64("drawdown", s.final.Drawdown()).
		Int("fills", s.ledger.Len()).
		Str("turnover", s.ledger.Turnover().StringFixed(2)).
		Msg("session closed")
}

// Close stops Run and returns the final portfolio snapshot.
func (s *Session) Close(ctx context.Context) (portfolio.Snapshot, error) {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return s.final, nil
	case <-ctx.Done():
		return portfolio.Snapshot{}, ctx.Err()
	}
}

// do runs fn on the owner goroutine. Once accepted, fn always completes and its result is
// returned, so a caller never sees an error for an update that was in fact applied.
func (s *Session) do(ctx context.Context, fn func(*portfolio.Tracker) error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Snapshot returns an immutable view of the portfolio, consistent with every fill applied so far.
func (s *Session) Snapshot(ctx context.Context) (portfolio.Snapshot, error) {
	var snap portfolio.Snapshot
	err := s.do(ctx, func(t *portfolio.Tracker) error {
		snap = t.Snapshot()
		return nil
	})
	return snap, err
}

// ApplyFill books one execution. It satisfies execution.FillSink.
func (s *Session) ApplyFill(ctx context.Context, fill signal.Fill) error {
	err := s.do(ctx, func(t *portfolio.Tracker) error {
		if err := t.ApplyFill(fill.Contract, fill.SignedLots(), fill.Price); err != nil {
			return err
		}
		s.ledger.Record(fill)
		s.publish(t)
		return nil
	})
	if err != nil {
		if !stopped(ctx, err) {
			s.analyticsError(err, fill.Contract, "fill rejected by tracker")
		}
		return err
	}
	metrics.FillsTotal.WithLabelValues(fill.Contract.Underlying, string(fill.Side)).Inc()
	s.log.Info().
		Str("fill", fill.ID.String()).
		Str("contract", fill.Contract.String()).
		Int64("lots", fill.SignedLots()).
		Str("px", fill.Price.String()).
		Msg("fill applied")
	return nil
}

// MarkToMarket revalues positions with explicit marks.
func (s *Session) MarkToMarket(ctx context.Context, marks map[pricing.ContractKey]portfolio.Mark) error {
	return s.do(ctx, func(t *portfolio.Tracker) error {
		if err := t.MarkToMarket(marks); err != nil {
			return err
		}
		s.publish(t)
		return nil
	})
}

// MarkUnderlying revalues every position on the tick's underlying at the tick price. Positions
// keep the volatility of their last mark; new ones use the session mark volatility. Contracts past
// expiry are valued at expiry, i.e. at intrinsic.
func (s *Session) MarkUnderlying(ctx context.Context, tick signal.Tick) error {
	err := s.do(ctx, func(t *portfolio.Tracker) error {
		marks := map[pricing.ContractKey]portfolio.Mark{}
		for _, p := range t.Snapshot().Positions() {
			if p.Contract.Underlying != tick.Symbol {
				continue
			}
			asOf := tick.Ts
			if asOf.After(p.Contract.Expiry) {
				asOf = p.Contract.Expiry
			}
			vol := s.markVol
			if p.Marked && p.Volatility > 0 {
				vol = p.Volatility
			}
			marks[p.Key()] = portfolio.Mark{
				Market:     pricing.MarketSnapshot{Spot: tick.Price, Rate: s.rate, AsOf: asOf},
				Volatility: vol,
			}
		}
		if len(marks) == 0 {
			return nil
		}
		if err := t.MarkToMarket(marks); err != nil {
			return err
		}
		s.publish(t)
		return nil
	})
	if err != nil && !stopped(ctx, err) {
		s.analyticsError(err, pricing.OptionContract{Underlying: tick.Symbol}, "mark to market failed")
	}
	return err
}

// Evaluate runs the risk gate against a snapshot taken at the serialization point. The gate itself
// runs on the caller's goroutine.
func (s *Session) Evaluate(ctx context.Context, p signal.Proposal) (risk.Decision, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return risk.Decision{}, err
	}
	d, err := s.gate.Evaluate(p, snap, s.limits)
	if err != nil {
		s.analyticsError(err, p.Contract, "proposal skipped")
		return risk.Decision{}, err
	}
	metrics.RiskDecisionsTotal.WithLabelValues(string(d.Verdict())).Inc()

	ev := s.log.Info()
	if d.Verdict() == risk.VerdictRejected {
		ev = s.log.Debug()
	}
	ev.Str("proposal", p.ID.String()).
		Str("strategy", p.Strategy).
		Str("contract", p.Contract.String()).
		Str("side", string(p.Side)).
		Int64("lots", p.Lots).
		Str("verdict", string(d.Verdict())).
		Int64("qty", d.Quantity()).
		Str("reason", d.Reason()).
		Msg("risk decision")
	return d, nil
}

// publish refreshes the portfolio gauges; runs on the owner goroutine.
func (s *Session) publish(t *portfolio.Tracker) {
	metrics.PortfolioEquity.Set(t.Equity().InexactFloat64())
	metrics.PortfolioDrawdown.Set(t.Drawdown())
	if v, err := t.ValueAtRisk(s.limits.VaRConfidence, s.limits.VaRHorizonDays); err == nil {
		metrics.PortfolioVaR.Set(v.InexactFloat64())
	}
	if !s.historyWarned && t.Snapshot().InsufficientHistory() {
		s.historyWarned = true
		s.log.Warn().
			Int("min_samples", portfolio.MinHistorySamples).
			Msg("not enough return history, historical VaR has no market component")
	}
}

// stopped reports errors that come from the session or caller shutting down.
func stopped(ctx context.Context, err error) bool {
	return errors.Is(err, ErrClosed) || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

// analyticsError logs bad input at error level and market data problems at warn level.
func (s *Session) analyticsError(err error, c pricing.OptionContract, msg string) {
	kind := pricing.ErrorKind(err)
	metrics.AnalyticsErrorsTotal.WithLabelValues(kind).Inc()
	ev := s.log.Error()
	if errors.Is(err, pricing.ErrNoConvergence) || errors.Is(err, pricing.ErrArbitrageViolation) {
		ev = s.log.Warn()
	}
	ev.Err(err).Str("kind", kind).Str("underlying", c.Underlying).Msg(msg)
}
