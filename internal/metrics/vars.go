package metrics

import "github.com/prometheus/client_golang/prometheus"

// значения метки "outcome" для котировок
const (
	OutcomeOK      = "ok"
	OutcomeNoPool  = "no_pool"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	QuoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_quote_requests_total",
		Help: "Venue quote attempts by outcome",
	}, []string{"venue", "outcome"})

	QuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_quote_latency_seconds",
		Help:    "Time to obtain a venue quote, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	GasCost = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_gas_cost_settlement",
		Help: "Last gas cost estimate in settlement token units (human)",
	})

	GasFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_gas_fallbacks_total",
		Help: "Gas estimates that used a static fallback, by part",
	}, []string{"part"})

	Evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_evaluations_total",
		Help: "Pair evaluations by verdict",
	}, []string{"verdict"})

	BestNetProfit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_best_net_profit",
		Help: "Net profit of the last cycle's best opportunity (human units of its base)",
	})

	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cycles_total",
		Help: "Polling cycles by result",
	}, []string{"result"})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_duration_seconds",
		Help:    "Wall time of one scan-evaluate cycle",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	})

	Trades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_trades_total",
		Help: "Executor results by status",
	}, []string{"status"})

	SinkDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_sink_dropped_total",
		Help: "Observability records dropped because the sink buffer was full",
	})

	HealthChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_health_checks_total",
		Help: "Health check probes by probe and result",
	}, []string{"probe", "result"})
)

func init() {
	prometheus.MustRegister(
		QuoteRequests,
		QuoteLatency,
		GasCost,
		GasFallbacks,
		Evaluations,
		BestNetProfit,
		Cycles,
		CycleDuration,
		Trades,
		SinkDropped,
		HealthChecks,
	)
}
