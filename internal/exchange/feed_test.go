package exchange

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionsgate-go/internal/signal"
)

func TestFeedRunEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"nifty"}, zerolog.Nop(), WithInterval(10*time.Millisecond))
	ticks := make(chan signal.Tick, 1)

	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "NIFTY" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func TestGBMFeedIsReproducible(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	build := func(seed int64) *Feed {
		return NewFeed(ProviderGBM, []string{"NIFTY", "BANKNIFTY"}, zerolog.Nop(),
			WithSeed(seed),
			WithSimulatedClock(start, time.Minute),
			WithDynamics(0, 0.2),
			WithInitialPrices(map[string]float64{"NIFTY": 19500, "BANKNIFTY": 45000}),
		)
	}
	a, b, c := build(42), build(42), build(7)

	var lastA, lastC []signal.Tick
	for i := 0; i < 50; i++ {
		ta, tb := a.Next(time.Time{}), b.Next(time.Time{})
		lastC = c.Next(time.Time{})
		if len(ta) != 2 {
			t.Fatalf("expected two ticks, got %d", len(ta))
		}
		for j := range ta {
			if ta[j] != tb[j] {
				t.Fatalf("step %d: same seed diverged: %+v vs %+v", i, ta[j], tb[j])
			}
			if ta[j].Price <= 0 {
				t.Fatalf("non-positive price %v", ta[j].Price)
			}
		}
		if want := start.Add(time.Duration(i) * time.Minute); !ta[0].Ts.Equal(want) {
			t.Fatalf("step %d: ts %s, want %s", i, ta[0].Ts, want)
		}
		lastA = ta
	}
	if lastA[0].Price == lastC[0].Price {
		t.Fatalf("different seeds produced the same path")
	}
	if lastA[0].Symbol != "BANKNIFTY" {
		t.Fatalf("symbols should be sorted, got %s first", lastA[0].Symbol)
	}
	if px, _ := a.LastPrice("NIFTY"); math.Abs(math.Log(px/19500)) > 0.2 {
		t.Fatalf("50 minutes of 20%% vol moved NIFTY to %v", px)
	}
}

func TestFirstTickUsesInitialPrice(t *testing.T) {
	feed := NewFeed(ProviderGBM, []string{"NIFTY"}, zerolog.Nop(), WithInitialPrices(map[string]float64{"nifty": 19500}))
	ticks := feed.Next(time.Now())
	if ticks[0].Price != 19500 {
		t.Fatalf("expected opening price 19500, got %v", ticks[0].Price)
	}
}
