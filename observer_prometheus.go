package spot

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver counts events and records operation latency.
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver registers spot metrics on reg under namespace.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spot",
			Name:      "events_total",
			Help:      "Memoization events by function, operation and outcome.",
		}, []string{"func", "op", "outcome", "driver"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "spot",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store lookups, writes and wrapped calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"func", "op"}),
	}
	for _, c := range []prometheus.Collector{o.events, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEvent implements Observer.
func (o *PrometheusObserver) OnEvent(_ context.Context, ev Event) {
	o.events.WithLabelValues(ev.Func, string(ev.Op), string(ev.Outcome), string(ev.Driver)).Inc()
	if ev.Duration > 0 {
		o.duration.WithLabelValues(ev.Func, string(ev.Op)).Observe(ev.Duration.Seconds())
	}
}
