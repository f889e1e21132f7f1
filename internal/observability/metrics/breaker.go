package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// breakerGauge exports circuit breaker state per operation: 0 closed, 1 half-open, 2 open.
type breakerGauge struct {
	service string
	state   *prometheus.GaugeVec
}

func newBreakerGauge(registry *prometheus.Registry, service string) *breakerGauge {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(state)
	return &breakerGauge{service: service, state: state}
}

func (g *breakerGauge) observe(operation string, state gobreaker.State) {
	g.state.WithLabelValues(g.service, operation).Set(breakerStateValue(state))
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
