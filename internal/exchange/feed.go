// Package exchange hosts the underlying tick sources used by paper sessions.
package exchange

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optionsgate-go/internal/metrics"
	"optionsgate-go/internal/signal"
)

const (
	// ProviderStub emits a deterministic upward ramp (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderGBM simulates each underlying as geometric Brownian motion.
	ProviderGBM = "gbm"
)

const (
	defaultInterval   = 500 * time.Millisecond
	defaultVolatility = 0.15
	defaultPrice      = 100.0
	secondsPerYear    = 365 * 24 * 60 * 60
)

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider   string
	symbols    []string
	log        zerolog.Logger
	interval   time.Duration
	step       time.Duration // simulated time advanced per tick; zero follows the wall clock
	start      time.Time
	volatility float64
	drift      float64
	seed       int64
	rng        *rand.Rand
	lastPrices map[string]float64
	ticks      int
	mu         sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithInterval overrides the wall-clock cadence between ticks.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithSimulatedClock stamps ticks from start, advancing step per tick instead of reading the wall
// clock. GBM increments are scaled to step.
func WithSimulatedClock(start time.Time, step time.Duration) Option {
	return func(f *Feed) {
		if step > 0 {
			f.start, f.step = start, step
		}
	}
}

// WithDynamics sets the annualized drift and volatility of the GBM provider.
func WithDynamics(drift, volatility float64) Option {
	return func(f *Feed) {
		f.drift = drift
		if volatility >= 0 {
			f.volatility = volatility
		}
	}
}

// WithSeed fixes the random source so runs are reproducible.
func WithSeed(seed int64) Option {
	return func(f *Feed) { f.seed = seed }
}

// WithInitialPrices sets the opening price per symbol.
func WithInitialPrices(prices map[string]float64) Option {
	return func(f *Feed) {
		for sym, px := range prices {
			if px > 0 {
				f.lastPrices[strings.ToUpper(strings.TrimSpace(sym))] = px
			}
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:   strings.ToLower(provider),
		log:        log,
		interval:   defaultInterval,
		volatility: defaultVolatility,
		seed:       1,
		lastPrices: make(map[string]float64),
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	f.rng = rand.New(rand.NewSource(f.seed))
	return f
}

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

// LastPrice returns the most recent price emitted for a symbol.
func (f *Feed) LastPrice(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	px, ok := f.lastPrices[symbol]
	return px, ok
}

// Run pushes ticks onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Tick) error {
	f.log.Info().Str("provider", f.provider).Strs("symbols", f.Symbols()).Msg("feed started")
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, tick := range f.Next(now) {
				select {
				case out <- tick:
					metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Symbols returns a copy of the tracked symbols.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Next advances every symbol by one step and returns the resulting ticks. now is used as the
// timestamp unless a simulated clock is configured.
func (f *Feed) Next(now time.Time) []signal.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()

	ts := now
	dt := f.interval
	if f.step > 0 {
		ts = f.start.Add(time.Duration(f.ticks) * f.step)
		dt = f.step
	}
	opening := f.ticks == 0
	f.ticks++

	out := make([]signal.Tick, 0, len(f.symbols))
	for _, sym := range f.symbols {
		prev, seen := f.lastPrices[sym]
		if !seen {
			prev = defaultPrice
		}
		px := prev
		if seen && !opening {
			px = f.advance(prev, dt)
		}
		f.lastPrices[sym] = px

		side := 1
		if px < prev {
			side = -1
		}
		out = append(out, signal.Tick{Symbol: sym, Price: px, Size: 1, Side: side, Ts: ts})
	}
	return out
}

// advance moves a price one step; callers hold f.mu.
func (f *Feed) advance(prev float64, dt time.Duration) float64 {
	if f.provider != ProviderGBM {
		return prev + 0.1
	}
	years := dt.Seconds() / secondsPerYear
	z := f.rng.NormFloat64()
	return prev * math.Exp((f.drift-0.5*f.volatility*f.volatility)*years+f.volatility*math.Sqrt(years)*z)
}
