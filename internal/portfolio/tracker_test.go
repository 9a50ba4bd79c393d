package portfolio

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsgate-go/internal/pricing"
)

var (
	asOf   = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	expiry = asOf.AddDate(0, 0, 30)
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func newTestTracker(t *testing.T, capital float64) *Tracker {
	t.Helper()
	tr, err := NewTracker(dec(capital), DefaultReturnModel())
	require.NoError(t, err)
	return tr
}

func contract(t *testing.T, underlying string, strike float64, typ pricing.OptionType, lot int64) pricing.OptionContract {
	t.Helper()
	c, err := pricing.NewOptionContract(underlying, strike, expiry, typ, lot)
	require.NoError(t, err)
	return c
}

func assertDecimal(t *testing.T, want, got decimal.Decimal, msg string) {
	t.Helper()
	if !want.Equal(got) {
		t.Fatalf("%s: want %s, got %s", msg, want, got)
	}
}

func TestNewTrackerStartsFlat(t *testing.T) {
	tr := newTestTracker(t, 1_000_000)
	assert.Zero(t, tr.Drawdown())
	assertDecimal(t, dec(1_000_000), tr.Equity(), "equity")
	assertDecimal(t, dec(1_000_000), tr.HighWaterMark(), "hwm")

	v, err := tr.ValueAtRisk(0.99, 1)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = NewTracker(decimal.Zero, DefaultReturnModel())
	assert.ErrorIs(t, err, pricing.ErrInvalidInput)
	_, err = NewTracker(dec(100), ReturnModel{Method: "historical"})
	assert.ErrorIs(t, err, pricing.ErrInvalidInput)
}

func TestApplyFillAccounting(t *testing.T) {
	tr := newTestTracker(t, 100_000)
	c := contract(t, "BANKNIFTY", 45000, pricing.Put, 15)
	key := c.Key()

	require.NoError(t, tr.ApplyFill(c, 2, dec(10)))
	require.NoError(t, tr.ApplyFill(c, 2, dec(12)))
	pos, ok := tr.Snapshot().Position(key)
	require.True(t, ok)
	assert.Equal(t, int64(4), pos.Quantity)
	assertDecimal(t, dec(11), pos.AvgPrice, "weighted average")
	assertDecimal(t, dec(100_000-2*15*10-2*15*12), tr.Snapshot().Cash(), "cash after buys")

	require.NoError(t, tr.ApplyFill(c, -3, dec(15)))
	pos, _ = tr.Snapshot().Position(key)
	assert.Equal(t, int64(1), pos.Quantity)
	assertDecimal(t, dec(11), pos.AvgPrice, "average unchanged on reduction")
	assertDecimal(t, dec(3*15*4), pos.RealizedPnL, "realized on reduction")

	// sells through flat: closes 1 at a loss, opens 2 short at 9
	require.NoError(t, tr.ApplyFill(c, -3, dec(9)))
	pos, _ = tr.Snapshot().Position(key)
	assert.Equal(t, int64(-2), pos.Quantity)
	assertDecimal(t, dec(9), pos.AvgPrice, "average resets on flip")
	assertDecimal(t, dec(180-30), tr.Snapshot().RealizedPnL(), "book realized")

	require.NoError(t, tr.ApplyFill(c, 2, dec(7)))
	_, ok = tr.Snapshot().Position(key)
	assert.False(t, ok, "flat position should be removed")
	snap := tr.Snapshot()
	assertDecimal(t, dec(150+2*15*2), snap.RealizedPnL(), "realized survives flat")
	assertDecimal(t, dec(100_000).Add(snap.RealizedPnL()), snap.Cash(), "cash equals capital plus realized when flat")
	assertDecimal(t, snap.Cash(), snap.Equity(), "equity when flat")
	assert.Empty(t, snap.Positions())
}

func TestApplyFillIsAllOrNothing(t *testing.T) {
	tr := newTestTracker(t, 50_000)
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	require.NoError(t, tr.ApplyFill(c, 1, dec(100)))
	before := tr.Snapshot()

	assert.ErrorIs(t, tr.ApplyFill(c, 0, dec(100)), pricing.ErrInvalidInput)
	assert.ErrorIs(t, tr.ApplyFill(c, 1, dec(-1)), pricing.ErrInvalidInput)
	bad := c
	bad.Multiplier = 0
	assert.ErrorIs(t, tr.ApplyFill(bad, 1, dec(100)), pricing.ErrInvalidInput)

	after := tr.Snapshot()
	assertDecimal(t, before.Cash(), after.Cash(), "cash")
	assertDecimal(t, before.Equity(), after.Equity(), "equity")
	assert.Equal(t, before.Positions(), after.Positions())
}

func TestMarkToMarketIsAllOrNothing(t *testing.T) {
	tr := newTestTracker(t, 1_000_000)
	call := contract(t, "NIFTY", 19500, pricing.Call, 50)
	put := contract(t, "NIFTY", 19000, pricing.Put, 50)
	require.NoError(t, tr.ApplyFill(call, 1, dec(380)))
	require.NoError(t, tr.ApplyFill(put, 1, dec(120)))
	before := tr.Snapshot()

	market := pricing.MarketSnapshot{Spot: 19600, Rate: 0.06, AsOf: asOf}
	err := tr.MarkToMarket(map[pricing.ContractKey]Mark{
		put.Key():  {Market: market, Volatility: 0.2},
		call.Key(): {Market: market, Volatility: -0.15},
	})
	require.ErrorIs(t, err, pricing.ErrInvalidInput)

	after := tr.Snapshot()
	assertDecimal(t, before.Equity(), after.Equity(), "equity")
	pos, _ := after.Position(put.Key())
	assert.False(t, pos.Marked, "valid mark must not be committed alone")
	_, ok := after.Spot("NIFTY")
	assert.False(t, ok)
}

func TestMarkToMarketIgnoresClosedContracts(t *testing.T) {
	tr := newTestTracker(t, 1_000_000)
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	err := tr.MarkToMarket(map[pricing.ContractKey]Mark{
		c.Key(): {Market: pricing.MarketSnapshot{Spot: 19500, AsOf: asOf}, Volatility: 0.15},
	})
	require.NoError(t, err)
	assert.Empty(t, tr.Snapshot().Positions())
}

func TestNiftyScenario(t *testing.T) {
	tr := newTestTracker(t, 1_000_000)
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	entry := pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}

	g, err := pricing.PriceAndGreeks(c, entry, 0.15)
	require.NoError(t, err)
	assert.InDelta(t, 383.85, g.Price, 0.01)
	assert.InDelta(t, 0.55, g.Delta, 0.05)

	require.NoError(t, tr.ApplyFill(c, 1, dec(g.Price)))
	assert.Zero(t, tr.Drawdown())
	startUnrealized := tr.Snapshot().UnrealizedPnL()

	moved := entry
	moved.Spot = 19700
	require.NoError(t, tr.MarkToMarket(map[pricing.ContractKey]Mark{c.Key(): {Market: moved, Volatility: 0.15}}))
	snap := tr.Snapshot()
	assert.True(t, snap.UnrealizedPnL().GreaterThan(startUnrealized), "unrealized should rise, got %s", snap.UnrealizedPnL())
	assert.InDelta(t, 50*(503.9316-383.8483), snap.UnrealizedPnL().InexactFloat64(), 0.05)
	assert.Zero(t, snap.Drawdown())
	assertDecimal(t, snap.Equity(), snap.HighWaterMark(), "hwm follows equity up")

	prev := decimal.Zero
	for _, vol := range []float64{0.05, 0.10, 0.20, 0.40, 0.80} {
		m := DefaultReturnModel()
		m.Volatility = map[string]float64{"NIFTY": vol}
		v, err := snap.WithModel(m).ValueAtRisk(0.99, 1)
		require.NoError(t, err)
		assert.True(t, v.GreaterThan(prev), "VaR %s at vol %v not above %s", v, vol, prev)
		prev = v
	}
}

func TestHighWaterMarkNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := newTestTracker(t, 200_000)
	call := contract(t, "NIFTY", 19500, pricing.Call, 50)
	put := contract(t, "NIFTY", 19400, pricing.Put, 50)
	require.NoError(t, tr.ApplyFill(call, 3, dec(380)))
	require.NoError(t, tr.ApplyFill(put, -2, dec(150)))

	spot := 19500.0
	hwm := tr.HighWaterMark()
	for i := 0; i < 500; i++ {
		spot *= math.Exp(0.01 * rng.NormFloat64())
		market := pricing.MarketSnapshot{Spot: spot, Rate: 0.06, AsOf: asOf.Add(time.Duration(i) * time.Minute)}
		vol := 0.1 + 0.2*rng.Float64()
		require.NoError(t, tr.MarkToMarket(map[pricing.ContractKey]Mark{
			call.Key(): {Market: market, Volatility: vol},
			put.Key():  {Market: market, Volatility: vol},
		}))
		if tr.HighWaterMark().LessThan(hwm) {
			t.Fatalf("step %d: hwm fell from %s to %s", i, hwm, tr.HighWaterMark())
		}
		if tr.HighWaterMark().LessThan(tr.Equity()) {
			t.Fatalf("step %d: equity %s above hwm %s", i, tr.Equity(), tr.HighWaterMark())
		}
		dd := tr.Drawdown()
		if dd < 0 || dd >= 1 {
			t.Fatalf("step %d: drawdown %v outside [0,1)", i, dd)
		}
		hwm = tr.HighWaterMark()
	}
}

func TestDrawdownAfterLoss(t *testing.T) {
	tr := newTestTracker(t, 10_000)
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	require.NoError(t, tr.ApplyFill(c, 1, dec(100)))
	// the fill at 40 remarks the existing lot: 50 x (40-100) lost
	require.NoError(t, tr.ApplyFill(c, 1, dec(40)))
	assert.InDelta(t, 3000.0/10000, tr.Drawdown(), 1e-12)

	// deeper than the whole book still reads below 1
	require.NoError(t, tr.ApplyFill(c, 200, dec(40)))
	require.NoError(t, tr.ApplyFill(c, 1, dec(0)))
	dd := tr.Drawdown()
	assert.Less(t, dd, 1.0)
	assert.Greater(t, dd, 0.99)
}

func TestSnapshotIsImmutable(t *testing.T) {
	tr := newTestTracker(t, 100_000)
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	require.NoError(t, tr.ApplyFill(c, 1, dec(100)))
	snap := tr.Snapshot()

	projected, err := snap.WithFill(c, 4, dec(110))
	require.NoError(t, err)
	require.NoError(t, tr.ApplyFill(c, -1, dec(90)))

	assert.Equal(t, int64(1), snap.SymbolLots("NIFTY"))
	assert.Equal(t, int64(5), projected.SymbolLots("NIFTY"))
	assert.Equal(t, int64(0), tr.Snapshot().SymbolLots("NIFTY"))
	assertDecimal(t, dec(100_000-5000), snap.Cash(), "earlier snapshot cash")
}

func TestExposureAndSymbolLots(t *testing.T) {
	tr := newTestTracker(t, 1_000_000)
	call := contract(t, "NIFTY", 19500, pricing.Call, 50)
	put := contract(t, "NIFTY", 19000, pricing.Put, 50)
	other := contract(t, "BANKNIFTY", 45000, pricing.Call, 15)
	require.NoError(t, tr.ApplyFill(call, 2, dec(300)))
	require.NoError(t, tr.ApplyFill(put, -3, dec(100)))
	require.NoError(t, tr.ApplyFill(other, 1, dec(500)))

	snap := tr.Snapshot()
	assert.Equal(t, int64(-1), snap.SymbolLots("NIFTY"))
	assert.Equal(t, int64(1), snap.SymbolLots("BANKNIFTY"))
	want := 2*50*19500 + 3*50*19000 + 15*45000
	assertDecimal(t, decimal.NewFromInt(int64(want)), snap.Exposure(), "exposure at strike")

	market := pricing.MarketSnapshot{Spot: 19700, Rate: 0.06, AsOf: asOf}
	require.NoError(t, tr.MarkToMarket(map[pricing.ContractKey]Mark{call.Key(): {Market: market, Volatility: 0.15}}))
	want = 5*50*19700 + 15*45000
	assertDecimal(t, decimal.NewFromInt(int64(want)), tr.Snapshot().Exposure(), "exposure at marked spot")
}

func TestMarkFromQuote(t *testing.T) {
	c := contract(t, "NIFTY", 19500, pricing.Call, 50)
	market := pricing.MarketSnapshot{Spot: 19500, Rate: 0.06, AsOf: asOf}
	g, err := pricing.PriceAndGreeks(c, market, 0.18)
	require.NoError(t, err)

	m, err := MarkFromQuote(c, market.WithOptionPrice(g.Price))
	require.NoError(t, err)
	assert.InDelta(t, 0.18, m.Volatility, 1e-6)

	_, err = MarkFromQuote(c, market.WithOptionPrice(19600))
	assert.ErrorIs(t, err, pricing.ErrArbitrageViolation)
}
