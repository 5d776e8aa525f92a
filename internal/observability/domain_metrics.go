package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generatorAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asklake_generator_attempts_total",
			Help: "Total number of generator invocations, including retries.",
		},
	)
	generatorThrottledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asklake_generator_throttled_total",
			Help: "Total number of generator invocations rejected as throttled.",
		},
	)
	guardrailRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asklake_guardrail_rejections_total",
			Help: "Total number of generated SQL statements rejected by the guardrail.",
		},
		[]string{"kind"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asklake_query_executions_total",
			Help: "Total number of query executions by terminal state.",
		},
		[]string{"state"},
	)
	queryPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asklake_query_polls_total",
			Help: "Total number of query status polls.",
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asklake_query_rows_returned",
			Help:    "Rows returned per successful query execution.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
	askDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asklake_ask_duration_seconds",
			Help:    "End-to-end latency of ask requests by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		generatorAttemptsTotal,
		generatorThrottledTotal,
		guardrailRejectionsTotal,
		queryExecutionsTotal,
		queryPollsTotal,
		queryRowsReturned,
		askDurationSeconds,
	)
}

func ObserveGeneratorAttempt(throttled bool) {
	generatorAttemptsTotal.Inc()
	if throttled {
		generatorThrottledTotal.Inc()
	}
}

func IncrementGuardrailRejection(kind string) {
	guardrailRejectionsTotal.WithLabelValues(kind).Inc()
}

func IncrementQueryPoll() {
	queryPollsTotal.Inc()
}

func ObserveQueryExecution(state string, rows int) {
	queryExecutionsTotal.WithLabelValues(state).Inc()
	if rows >= 0 {
		queryRowsReturned.Observe(float64(rows))
	}
}

func ObserveAsk(outcome string, elapsed time.Duration) {
	askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
