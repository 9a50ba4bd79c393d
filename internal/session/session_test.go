package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsgate-go/internal/metrics"
	"optionsgate-go/internal/portfolio"
	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/signal"
)

var asOf = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

func niftyCall(t *testing.T) pricing.OptionContract {
	t.Helper()
	c, err := pricing.NewOptionContract("NIFTY", 19500, asOf.AddDate(0, 0, 30), pricing.Call, 50)
	require.NoError(t, err)
	return c
}

func startSession(t *testing.T, limits risk.Limits, opts ...Option) (*Session, context.CancelFunc) {
	t.Helper()
	s, err := New(decimal.NewFromInt(10_000_000), limits, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(cancel)
	return s, cancel
}

func buyFill(c pricing.OptionContract, lots int64, px float64) signal.Fill {
	return signal.Fill{ID: uuid.New(), Contract: c, Side: signal.Buy, Lots: lots, Price: decimal.NewFromFloat(px), Ts: asOf}
}

func TestSessionResizesOversizedProposal(t *testing.T) {
	s, _ := startSession(t, risk.Limits{MaxPositionSize: 10})
	ctx := context.Background()
	c := niftyCall(t)
	require.NoError(t, s.ApplyFill(ctx, buyFill(c, 8, 383.85)))

	p := signal.NewProposal("test", c, signal.Buy, 5, pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}, 0.15, "")
	d, err := s.Evaluate(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, risk.Resized(2, d.Reason()), d)
	assert.Equal(t, 1, s.Ledger().Len())
}

func TestConcurrentFillsAreSerialized(t *testing.T) {
	s, _ := startSession(t, risk.Limits{})
	ctx := context.Background()
	c := niftyCall(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := s.ApplyFill(ctx, buyFill(c, 1, 100)); err != nil {
					t.Errorf("fill: %v", err)
				}
				if _, err := s.Snapshot(ctx); err != nil {
					t.Errorf("snapshot: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), snap.SymbolLots("NIFTY"))
	assert.Equal(t, 200, s.Ledger().Len())
	assert.True(t, snap.Cash().Equal(decimal.NewFromInt(10_000_000-200*50*100)))
}

func TestMarkUnderlyingRevaluesPositions(t *testing.T) {
	s, _ := startSession(t, risk.Limits{}, WithMarkParameters(0.15, 0.06))
	ctx := context.Background()
	c := niftyCall(t)
	g, err := pricing.PriceAndGreeks(c, pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}, 0.15)
	require.NoError(t, err)
	require.NoError(t, s.ApplyFill(ctx, buyFill(c, 1, g.Price)))

	require.NoError(t, s.MarkUnderlying(ctx, signal.Tick{Symbol: "NIFTY", Price: 19700, Ts: asOf}))
	require.NoError(t, s.MarkUnderlying(ctx, signal.Tick{Symbol: "BANKNIFTY", Price: 45000, Ts: asOf}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	pos, ok := snap.Position(c.Key())
	require.True(t, ok)
	assert.True(t, pos.Marked)
	assert.InDelta(t, 503.93, pos.Mark.InexactFloat64(), 0.01)
	assert.True(t, snap.UnrealizedPnL().IsPositive())
	assert.Zero(t, snap.Drawdown())
	assert.InDelta(t, snap.Equity().InexactFloat64(), testutil.ToFloat64(metrics.PortfolioEquity), 1e-6)

	// past expiry the call settles at intrinsic
	require.NoError(t, s.MarkUnderlying(ctx, signal.Tick{Symbol: "NIFTY", Price: 19800, Ts: c.Expiry.Add(time.Hour)}))
	snap, err = s.Snapshot(ctx)
	require.NoError(t, err)
	pos, _ = snap.Position(c.Key())
	assert.True(t, pos.Mark.Equal(decimal.NewFromInt(300)), "mark %s", pos.Mark)
}

func TestEvaluateReportsAnalyticsErrors(t *testing.T) {
	s, _ := startSession(t, risk.Limits{})
	c := niftyCall(t)
	before := testutil.ToFloat64(metrics.AnalyticsErrorsTotal.WithLabelValues("arbitrage_violation"))

	market := pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}.WithOptionPrice(25000)
	_, err := s.Evaluate(context.Background(), signal.NewProposal("test", c, signal.Buy, 1, market, 0.15, ""))
	require.ErrorIs(t, err, pricing.ErrArbitrageViolation)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnalyticsErrorsTotal.WithLabelValues("arbitrage_violation")))

	// the session keeps working after a skipped proposal
	_, err = s.Snapshot(context.Background())
	assert.NoError(t, err)
}

func TestCloseReturnsFinalSnapshot(t *testing.T) {
	s, _ := startSession(t, risk.Limits{})
	ctx := context.Background()
	c := niftyCall(t)
	require.NoError(t, s.ApplyFill(ctx, buyFill(c, 3, 100)))

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	final, err := s.Close(closeCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.SymbolLots("NIFTY"))

	err = s.ApplyFill(ctx, buyFill(c, 1, 100))
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
	_, err = s.Close(closeCtx)
	assert.NoError(t, err, "close is idempotent")
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(decimal.NewFromInt(1000), risk.Limits{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
	_, err = s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := New(decimal.NewFromInt(1000), risk.Limits{MaxDrawdown: 2})
	assert.ErrorIs(t, err, pricing.ErrInvalidInput)
	_, err = New(decimal.Zero, risk.Limits{})
	assert.ErrorIs(t, err, pricing.ErrInvalidInput)
}

func TestSessionWarnsOnceWithoutReturnHistory(t *testing.T) {
	var buf bytes.Buffer
	model := portfolio.DefaultReturnModel()
	model.Method = portfolio.Historical
	model.History = map[string][]float64{"NIFTY": {0.01, -0.02, 0.005}}

	s, _ := startSession(t, risk.Limits{}, WithReturnModel(model), WithLogger(zerolog.New(&buf)))
	ctx := context.Background()
	c := niftyCall(t)
	require.NoError(t, s.ApplyFill(ctx, buyFill(c, 1, 380)))
	for _, px := range []float64{19550, 19600, 19450} {
		require.NoError(t, s.MarkUnderlying(ctx, signal.Tick{Symbol: "NIFTY", Price: px, Ts: asOf}))
	}
	_, err := s.Close(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), "not enough return history"))
	assert.Contains(t, buf.String(), `"turnover":"19000.00"`)
}
