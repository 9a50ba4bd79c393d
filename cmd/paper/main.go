package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"optionsgate-go/internal/config"
	"optionsgate-go/internal/exchange"
	"optionsgate-go/internal/execution"
	"optionsgate-go/internal/metrics"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/session"
	sig "optionsgate-go/internal/signal"
	"optionsgate-go/internal/strategy"
	"optionsgate-go/internal/util"
)

func main() {
	path := flag.String("config", "internal/config/config.yaml", "path to config file")
	envFile := flag.String("env", ".env", "dotenv file with OPTGATE_* overrides")
	flag.Parse()

	boot := util.NewLogger("info")
	cfg, err := config.Load(*path)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		boot.Fatal().Err(err).Msg("apply env overrides")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := util.NewLogger(cfg.App.LogLevel, util.WithConsole(cfg.App.LogConsole)).
		With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.New(decimal.NewFromFloat(cfg.Session.Capital), cfg.Limits(),
		session.WithLogger(log),
		session.WithGate(risk.NewGate(risk.WithSolverOptions(cfg.SolverOptions()...))),
		session.WithReturnModel(cfg.ReturnModel()),
		session.WithMarkParameters(cfg.Session.MarkVolatility, cfg.Session.Rate),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("start session")
	}

	strategies := make(map[string]strategy.Strategy, len(cfg.Session.Underlyings))
	for _, u := range cfg.Session.Underlyings {
		strategies[u] = strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams(u))
	}

	feedOpts := []exchange.Option{
		exchange.WithDynamics(cfg.Feed.Drift, cfg.Feed.Volatility),
		exchange.WithSeed(cfg.Feed.Seed),
		exchange.WithInitialPrices(cfg.Session.InitialSpots),
	}
	if d := cfg.FeedInterval(); d > 0 {
		feedOpts = append(feedOpts, exchange.WithInterval(d))
	}
	if step := cfg.SimStep(); step > 0 {
		feedOpts = append(feedOpts, exchange.WithSimulatedClock(time.Now().UTC(), step))
	}
	feed := exchange.NewFeed(cfg.Feed.Provider, cfg.Session.Underlyings, log, feedOpts...)
	exec := execution.NewPaperExecutor(log, sess, execution.WithSlippageBps(cfg.Paper.SlippageBps))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	ticks := make(chan sig.Tick, 1024)

	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return feed.Run(gctx, ticks) })
	g.Go(func() error {
		defer stop()
		seen := 0
		for {
			select {
			case <-gctx.Done():
				return nil
			case tk := <-ticks:
				if err := onTick(gctx, log, sess, exec, strategies[tk.Symbol], tk); err != nil {
					return err
				}
				seen++
				if cfg.Paper.MaxTicks > 0 && seen >= cfg.Paper.MaxTicks {
					log.Info().Int("ticks", seen).Msg("tick limit reached")
					return nil
				}
			}
		}
	})

	log.Info().Str("strategy", cfg.Strategy.Mode).Strs("underlyings", cfg.Session.Underlyings).Msg("paper engine started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("paper engine stopped")
	}

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if snap, err := sess.Close(shutdown); err == nil {
		log.Info().
			Str("equity", snap.Equity().StringFixed(2)).
			Str("cash", snap.Cash().StringFixed(2)).
			Int("positions", len(snap.Positions())).
			Msg("final portfolio")
	}
	_ = srv.Shutdown(shutdown)
	log.Info().Msg("shutting down")
}

// onTick marks the book, then routes every proposal through the gate. Analytics errors skip the
// proposal; only session shutdown ends the loop.
func onTick(ctx context.Context, log zerolog.Logger, sess *session.Session, exec *execution.PaperExecutor, strat strategy.Strategy, tk sig.Tick) error {
	if err := sess.MarkUnderlying(ctx, tk); err != nil && fatal(err) {
		return err
	}
	if strat == nil {
		return nil
	}
	for _, p := range strat.OnTick(tk) {
		d, err := sess.Evaluate(ctx, p)
		if err != nil {
			if fatal(err) {
				return err
			}
			continue
		}
		if !d.Allowed() {
			continue
		}
		if _, err := exec.Submit(ctx, p, d); err != nil {
			if fatal(err) {
				return err
			}
			log.Warn().Err(err).Str("proposal", p.ID.String()).Msg("submit failed")
		}
	}
	return nil
}

func fatal(err error) bool {
	return errors.Is(err, session.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
