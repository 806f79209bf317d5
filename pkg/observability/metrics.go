package observability

import (
	"context"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the query collectors.
type Metrics struct {
	Queries    *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Feedback   prometheus.Counter
	Extensions prometheus.Counter
	Cancels    prometheus.Counter
	InFlight   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg, if not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hmi_queries_total",
				Help: "Total number of queries by outcome",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hmi_query_duration_seconds",
				Help:    "Duration of queries from submission to classification",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		Feedback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hmi_feedback_total",
			Help: "Total number of feedback pulses received",
		}),
		Extensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hmi_deadline_extensions_total",
			Help: "Total number of deadline extensions granted by feedback",
		}),
		Cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hmi_cancels_total",
			Help: "Total number of goals canceled for lack of feedback",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hmi_queries_in_flight",
			Help: "Number of submitted goals not yet classified",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Queries, m.Duration, m.Feedback, m.Extensions, m.Cancels, m.InFlight)
	}
	return m
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubmit: func(context.Context, *domain.QueryEvent) {
			m.InFlight.Inc()
		},
		OnFeedback: func(context.Context, *domain.QueryEvent) {
			m.Feedback.Inc()
		},
		OnExtend: func(context.Context, *domain.QueryEvent) {
			m.Extensions.Inc()
		},
		OnCancel: func(context.Context, *domain.QueryEvent) {
			m.Cancels.Inc()
		},
		OnResult: func(_ context.Context, e *domain.ResultEvent) {
			if e.GoalID != "" {
				m.InFlight.Dec()
			}
			m.Queries.WithLabelValues(string(e.Outcome)).Inc()
			m.Duration.WithLabelValues(string(e.Outcome)).Observe(e.Duration.Seconds())
		},
	}
}
