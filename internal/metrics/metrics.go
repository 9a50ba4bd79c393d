package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of underlying ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the paper venue"},
		[]string{"symbol", "side"},
	)
	RiskDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_decisions_total", Help: "Risk gate decisions by verdict"},
		[]string{"verdict"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Fills applied to the portfolio"},
		[]string{"underlying", "side"},
	)
	AnalyticsErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_errors_total", Help: "Pricing and solver failures by kind"},
		[]string{"kind"},
	)
	PortfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_equity", Help: "Cash plus marked position value"},
	)
	PortfolioDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_drawdown", Help: "Fractional decline from the equity high-water mark"},
	)
	PortfolioVaR = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_var", Help: "Parametric value at risk at the session confidence and horizon"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, OrdersTotal, RiskDecisionsTotal, FillsTotal, AnalyticsErrorsTotal,
		PortfolioEquity, PortfolioDrawdown, PortfolioVaR,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
