// internal/utils/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fossr"

// Outcome labels for instruction submissions.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Collector владеет собственным registry, поэтому несколько экземпляров
// (например, в тестах) не конфликтуют при регистрации.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	instructions    *prometheus.CounterVec
	instructionTime *prometheus.HistogramVec
	cycles          *prometheus.CounterVec
	schedulerErrors *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	pot             prometheus.Gauge
	nextAirdrop     prometheus.Gauge
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instructions_total",
				Help:      "Program instructions submitted, by instruction and outcome",
			},
			[]string{"instruction", "outcome", "kind"},
		),
		instructionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "instruction_duration_seconds",
				Help:      "Time from submission to confirmation",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"instruction"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "airdrop_cycles_total",
				Help:      "Scheduler wakes, by outcome",
			},
			[]string{"outcome"},
		),
		schedulerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_errors_total",
				Help:      "Scheduler errors, by error kind",
			},
			[]string{"kind"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Program events forwarded to the message bus",
			},
			[]string{"type", "status"},
		),
		pot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "airdrop_pot_units",
			Help:      "Current airdrop pot in base token units",
		}),
		nextAirdrop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_airdrop_timestamp_seconds",
			Help:      "Unix time at which the current cycle becomes due",
		}),
	}
	c.registry.MustRegister(
		c.instructions, c.instructionTime, c.cycles, c.schedulerErrors,
		c.eventsPublished, c.pot, c.nextAirdrop,
	)
	return c
}

// Registry exposes the underlying registry (tests, custom exporters).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordInstruction записывает результат отправки инструкции.
// kind is the error kind for failures and empty on success.
func (c *Collector) RecordInstruction(ctx context.Context, instruction string, duration time.Duration, err error, kind string) {
	if c == nil {
		return
	}
	switch {
	case err == nil:
		c.instructions.WithLabelValues(instruction, OutcomeSuccess, "").Inc()
		c.instructionTime.WithLabelValues(instruction).Observe(duration.Seconds())
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		c.instructions.WithLabelValues(instruction, OutcomeCancelled, kind).Inc()
	default:
		c.instructions.WithLabelValues(instruction, OutcomeFailed, kind).Inc()
	}
}

// RecordCycle counts one scheduler wake.
func (c *Collector) RecordCycle(outcome string) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(outcome).Inc()
}

// RecordSchedulerError counts a failed scheduler step.
func (c *Collector) RecordSchedulerError(kind string) {
	if c == nil {
		return
	}
	c.schedulerErrors.WithLabelValues(kind).Inc()
}

// RecordPublished counts one event forwarded to the message bus.
func (c *Collector) RecordPublished(eventType string, err error) {
	if c == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeFailed
	}
	c.eventsPublished.WithLabelValues(eventType, status).Inc()
}

// ObserveCycleState updates the pot and schedule gauges.
func (c *Collector) ObserveCycleState(pot uint64, nextAirdrop int64) {
	if c == nil {
		return
	}
	c.pot.Set(float64(pot))
	c.nextAirdrop.Set(float64(nextAirdrop))
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.instructions.Reset()
	c.instructionTime.Reset()
	c.cycles.Reset()
	c.schedulerErrors.Reset()
	c.eventsPublished.Reset()
	c.pot.Set(0)
	c.nextAirdrop.Set(0)
}
