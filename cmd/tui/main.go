package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"optionsgate-go/internal/config"
	"optionsgate-go/internal/pricing"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	path := flag.String("config", defaultConfigPath, "path to config file")
	flag.Parse()
	configPath := locateConfig(*path)
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Options Risk Gate Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit risk limits")
		fmt.Println("3) Edit VaR model")
		fmt.Println("4) Edit session and strategy")
		fmt.Println("5) Price an option")
		fmt.Println("6) Save config")
		fmt.Println("7) Launch paper session")
		fmt.Println("8) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editVaRModel(reader, cfg)
		case "4":
			editSession(reader, cfg)
		case "5":
			priceOption(reader, cfg)
		case "6":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "not saved: %v\n", err)
				continue
			}
			if err := config.Save(configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "7":
			launchPaper(reader, configPath)
		case "8":
			reloaded, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	limits := cfg.Limits()
	model := cfg.ReturnModel()
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Capital: %.2f | rate %.2f%% | mark vol %.2f%%\n", cfg.Session.Capital, cfg.Session.Rate*100, cfg.Session.MarkVolatility*100)
	for _, u := range cfg.Session.Underlyings {
		fmt.Printf("  %s lot %d spot %.2f\n", u, cfg.LotSize(u), cfg.Session.InitialSpots[u])
	}
	fmt.Printf("Strategy: %s (%d lots, %d day expiry)\n", cfg.Strategy.Mode, cfg.Strategy.Params.Lots, cfg.Strategy.Params.ExpiryDays)
	fmt.Printf("Max VaR: %s at %.1f%% over %.1f day(s)\n", limits.MaxVaR.StringFixed(2), limits.VaRConfidence*100, limits.VaRHorizonDays)
	fmt.Printf("Max drawdown: %.2f%%\n", limits.MaxDrawdown*100)
	fmt.Printf("Max position size: %d lots\n", limits.MaxPositionSize)
	fmt.Printf("Max aggregate exposure: %s\n", limits.MaxAggregateExposure.StringFixed(2))
	fmt.Printf("Max risk per trade: %.2f%% of equity\n", limits.MaxTradeRiskPercent)
	fmt.Printf("VaR model: %s, default vol %.2f%%, correlation %.2f, vol of vol %.2f\n", model.Method, model.DefaultVolatility*100, model.Correlation, model.VolOfVol)
	syms := make([]string, 0, len(model.Volatility))
	for s := range model.Volatility {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, s := range syms {
		fmt.Printf("  %s vol %.2f%%\n", s, model.Volatility[s]*100)
	}
	for _, u := range cfg.Session.Underlyings {
		if n := len(model.History[u]); n > 0 {
			fmt.Printf("  %s history %d days\n", u, n)
		}
	}
	fmt.Println("(zero disables a limit)")
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk Limits ---")
	cfg.Risk.MaxVaR = promptFloat(reader, "Max VaR", cfg.Risk.MaxVaR)
	cfg.Risk.MaxDrawdown = promptPercent(reader, "Max drawdown (%)", cfg.Risk.MaxDrawdown)
	cfg.Risk.MaxPositionSize = int64(promptFloat(reader, "Max position size (lots)", float64(cfg.Risk.MaxPositionSize)))
	cfg.Risk.MaxAggregateExposure = promptFloat(reader, "Max aggregate exposure", cfg.Risk.MaxAggregateExposure)
	cfg.Risk.MaxTradeRiskPercent = promptFloat(reader, "Max risk per trade (% of equity)", cfg.Risk.MaxTradeRiskPercent)
	cfg.Risk.VaRConfidence = promptPercent(reader, "VaR confidence (%)", cfg.Limits().VaRConfidence)
	cfg.Risk.VaRHorizonDays = promptFloat(reader, "VaR horizon (days)", cfg.Limits().VaRHorizonDays)
	if err := cfg.Limits().Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

func editVaRModel(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit VaR Model ---")
	model := cfg.ReturnModel()
	cfg.VaRModel.Method = promptString(reader, "Method (delta-normal|delta-gamma|historical)", string(model.Method))
	cfg.VaRModel.DefaultVolatility = promptPercent(reader, "Default volatility (%)", model.DefaultVolatility)
	corr := promptFloat(reader, "Correlation", model.Correlation)
	cfg.VaRModel.Correlation = &corr
	cfg.VaRModel.VolOfVol = promptFloat(reader, "Vol of vol", model.VolOfVol)
	if cfg.VaRModel.Volatility == nil {
		cfg.VaRModel.Volatility = map[string]float64{}
	}
	for _, u := range cfg.Session.Underlyings {
		current, ok := model.Volatility[u]
		if !ok {
			current = model.DefaultVolatility
		}
		cfg.VaRModel.Volatility[u] = promptPercent(reader, u+" volatility (%)", current)
	}
	if err := cfg.ReturnModel().Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

func editSession(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Session / Strategy ---")
	cfg.Session.Capital = promptFloat(reader, "Capital", cfg.Session.Capital)
	cfg.Session.Rate = promptPercent(reader, "Risk-free rate (%)", cfg.Session.Rate)
	cfg.Session.MarkVolatility = promptPercent(reader, "Mark volatility (%)", cfg.Session.MarkVolatility)
	cfg.Strategy.Mode = promptString(reader, "Strategy (straddle|iron_condor|rsi_momentum)", cfg.Strategy.Mode)
	cfg.Strategy.Params.Lots = int64(promptFloat(reader, "Lots per leg", float64(cfg.Strategy.Params.Lots)))
	cfg.Strategy.Params.ExpiryDays = int(promptFloat(reader, "Expiry (days)", float64(cfg.Strategy.Params.ExpiryDays)))
	cfg.Paper.MaxTicks = int(promptFloat(reader, "Max ticks (0 = unlimited)", float64(cfg.Paper.MaxTicks)))
}

func priceOption(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Price an Option ---")
	underlying := "NIFTY"
	if len(cfg.Session.Underlyings) > 0 {
		underlying = cfg.Session.Underlyings[0]
	}
	underlying = strings.ToUpper(promptString(reader, "Underlying", underlying))
	spot := promptFloat(reader, "Spot", cfg.Session.InitialSpots[underlying])
	strike := promptFloat(reader, "Strike", spot)
	days := promptFloat(reader, "Days to expiry", float64(cfg.Strategy.Params.ExpiryDays))
	typ, err := pricing.ParseOptionType(promptString(reader, "Type (call|put)", "call"))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	vol := promptPercent(reader, "Volatility (%)", cfg.Session.MarkVolatility)

	now := time.Now().UTC()
	multiplier := cfg.LotSize(underlying)
	if multiplier <= 0 {
		multiplier = 1
	}
	c, err := pricing.NewOptionContract(underlying, strike, now.Add(time.Duration(days*24*float64(time.Hour))), typ, multiplier)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	market := pricing.MarketSnapshot{Spot: spot, Rate: cfg.Session.Rate, AsOf: now}
	g, err := pricing.PriceAndGreeks(c, market, vol)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%s price %.4f | delta %.4f gamma %.6f vega/pt %.4f theta/day %.4f rho/pt %.4f\n",
		c, g.Price, g.Delta, g.Gamma, g.VegaPerPoint(), g.ThetaPerDay(), g.RhoPerPoint())

	quote := promptFloat(reader, "Market premium for implied vol (0 to skip)", 0)
	if quote <= 0 {
		return
	}
	res, err := pricing.SolveImpliedVolatility(c, market.WithOptionPrice(quote), pricing.WithInitialGuess(vol))
	if err != nil {
		fmt.Printf("implied vol: %v\n", err)
		return
	}
	fmt.Printf("implied vol %.4f%% (%d iterations, %d bisections)\n", res.Volatility*100, res.Iterations, res.Bisections)
}

func launchPaper(reader *bufio.Reader, configPath string) {
	fmt.Println("Launching paper session (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/paper", "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start session: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the session and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func locateConfig(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(path)
}
