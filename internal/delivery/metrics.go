package delivery

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports delivery counters. A nil *Metrics is a no-op.
type Metrics struct {
	sent     prometheus.Counter
	failed   prometheus.Counter
	lost     prometheus.Counter
	unmarked prometheus.Counter
	tickErrs prometheus.Counter
	tick     prometheus.Histogram
}

// NewMetrics registers the delivery metrics on reg (default registerer when nil).
// Registering twice returns the already registered collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns, sub = "notebot", "delivery"
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help})
	}

	m := &Metrics{
		sent:     counter("sent_total", "Reminders sent and marked delivered."),
		failed:   counter("failed_total", "Reminder dispatch attempts that failed."),
		lost:     counter("lost_total", "Reminders sent but already marked by another instance."),
		unmarked: counter("unmarked_total", "Reminders sent but not marked because the store failed."),
		tickErrs: counter("tick_errors_total", "Ticks aborted because the due window could not be read."),
		tick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "tick_seconds",
			Help:      "Duration of delivery ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	for _, c := range []*prometheus.Counter{&m.sent, &m.failed, &m.lost, &m.unmarked, &m.tickErrs} {
		if *c, err = register(reg, *c); err != nil {
			return nil, err
		}
	}
	if m.tick, err = register(reg, m.tick); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register delivery metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) observe(res TickResult, seconds float64) {
	if m == nil {
		return
	}
	m.sent.Add(float64(res.Sent))
	m.failed.Add(float64(res.Failed))
	m.lost.Add(float64(res.Lost))
	m.unmarked.Add(float64(res.Unmarked))
	m.tick.Observe(seconds)
}

func (m *Metrics) tickError() {
	if m == nil {
		return
	}
	m.tickErrs.Inc()
}
