package config

import (
	"github.com/shopspring/decimal"

	"optionsgate-go/internal/portfolio"
	"optionsgate-go/internal/pricing"
	"optionsgate-go/internal/risk"
	"optionsgate-go/internal/strategy"
)

// Limits converts the risk section into session limits.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		MaxVaR:               decimal.NewFromFloat(c.Risk.MaxVaR),
		MaxDrawdown:          c.Risk.MaxDrawdown,
		MaxPositionSize:      c.Risk.MaxPositionSize,
		MaxAggregateExposure: decimal.NewFromFloat(c.Risk.MaxAggregateExposure),
		MaxTradeRiskPercent:  c.Risk.MaxTradeRiskPercent,
		VaRConfidence:        c.Risk.VaRConfidence,
		VaRHorizonDays:       c.Risk.VaRHorizonDays,
	}.WithDefaults()
}

// ReturnModel converts the var_model section, starting from portfolio.DefaultReturnModel.
func (c *Config) ReturnModel() portfolio.ReturnModel {
	m := portfolio.DefaultReturnModel()
	v := c.VaRModel
	if v.Method != "" {
		m.Method = portfolio.VaRMethod(v.Method)
	}
	if v.DefaultVolatility > 0 {
		m.DefaultVolatility = v.DefaultVolatility
	}
	if len(v.Volatility) > 0 {
		m.Volatility = v.Volatility
	}
	if v.Correlation != nil {
		m.Correlation = *v.Correlation
	}
	m.VolOfVol = v.VolOfVol
	if v.TradingDays > 0 {
		m.TradingDays = v.TradingDays
	}
	if len(v.History) > 0 {
		m.History = v.History
	}
	return m
}

// SolverOptions converts the solver section; unset fields keep solver defaults.
func (c *Config) SolverOptions() []pricing.SolverOption {
	s := c.Solver
	var opts []pricing.SolverOption
	if s.Tolerance > 0 {
		opts = append(opts, pricing.WithTolerance(s.Tolerance))
	}
	if s.MaxIterations > 0 {
		opts = append(opts, pricing.WithMaxIterations(s.MaxIterations))
	}
	if s.MinVol > 0 && s.MaxVol > s.MinVol {
		opts = append(opts, pricing.WithVolatilityBounds(s.MinVol, s.MaxVol))
	}
	if s.MinVega > 0 {
		opts = append(opts, pricing.WithMinVega(s.MinVega))
	}
	return opts
}

// StrategyParams builds strategy parameters for one underlying, taking its lot size and the
// session rate.
func (c *Config) StrategyParams(underlying string) strategy.Params {
	p := c.Strategy.Params
	return strategy.Params{
		Lots:              p.Lots,
		Multiplier:        c.LotSize(underlying),
		StrikeStep:        p.StrikeStep,
		ExpiryDays:        p.ExpiryDays,
		Rate:              c.Session.Rate,
		Volatility:        p.Volatility,
		CondorShortOffset: p.CondorShortOffset,
		CondorLongOffset:  p.CondorLongOffset,
		RSIPeriod:         p.RSIPeriod,
		RSIOverbought:     p.RSIOverbought,
		RSIOversold:       p.RSIOversold,
	}
}
