// Package telemetry implements the Telemetry Bus (C13): named events with
// measurements and metadata for observers, plus the real Prometheus
// metrics these events feed. Replaces the teacher's handleMetrics, which
// hard-coded fabricated sample values — spec §9 requires real, measured
// values only.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Event is a single named telemetry occurrence, e.g. "router.decide" or
// "stream.complete", with free-form measurements for observers that care
// about more than the Prometheus counters below.
type Event struct {
	Name         string
	Provider     string
	RequestID    string
	Measurements map[string]float64
	Metadata     map[string]string
	At           time.Time
}

// Observer receives every emitted Event. Bus.Subscribe registers one;
// logging is always an implicit observer via Bus's own logger.
type Observer func(Event)

// Bus fans a stream of named events out to subscribed observers and to
// the Prometheus registry's gauges/counters/histograms.
type Bus struct {
	logger    *logrus.Logger
	observers []Observer

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	rateLimitHits   *prometheus.CounterVec
	activeStreams   prometheus.Gauge
	overflowDepth   prometheus.Gauge
}

// NewBus registers the gateway's metric families against the given
// Prometheus registerer (typically prometheus.DefaultRegisterer, or a
// fresh prometheus.NewRegistry() in tests).
func NewBus(reg prometheus.Registerer, logger *logrus.Logger) *Bus {
	b := &Bus{
		logger: logger,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_requests_total",
			Help: "Total number of completed gateway requests.",
		}, []string{"provider", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_router_request_duration_seconds",
			Help:    "Gateway request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "method"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_tokens_total",
			Help: "Total number of tokens processed.",
		}, []string{"provider", "type"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_cost_total",
			Help: "Total estimated cost in USD.",
		}, []string{"provider", "model"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_errors_total",
			Help: "Total number of gateway errors by kind.",
		}, []string{"provider", "kind"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llm_router_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_rate_limit_hits_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"reason"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "llm_router_active_streams",
			Help: "Current number of in-flight streaming completions.",
		}),
		overflowDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "llm_router_overflow_queue_depth",
			Help: "Current depth of the overflow queue.",
		}),
	}

	reg.MustRegister(b.requestsTotal, b.requestDuration, b.tokensTotal, b.costTotal,
		b.errorsTotal, b.circuitState, b.rateLimitHits, b.activeStreams, b.overflowDepth)
	return b
}

func (b *Bus) Subscribe(o Observer) {
	b.observers = append(b.observers, o)
}

func (b *Bus) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.logger.WithFields(logrus.Fields{
		"event":      e.Name,
		"provider":   e.Provider,
		"request_id": e.RequestID,
	}).Debug("telemetry event")
	for _, o := range b.observers {
		o(e)
	}
}

// RecordRequest records one completed (non-streaming or whole-stream)
// request: its outcome status count and latency. Token/cost usage is
// recorded separately by RecordUsage.
func (b *Bus) RecordRequest(provider, method, status string, duration time.Duration) {
	b.requestsTotal.WithLabelValues(provider, method, status).Inc()
	b.requestDuration.WithLabelValues(provider, method).Observe(duration.Seconds())
	b.emit(Event{Name: "request.complete", Provider: provider,
		Measurements: map[string]float64{"duration_seconds": duration.Seconds()},
		Metadata:     map[string]string{"method": method, "status": status}})
}

func (b *Bus) RecordUsage(provider string, promptTokens, completionTokens int, cost float64, model string) {
	b.tokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	b.tokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	if cost > 0 {
		b.costTotal.WithLabelValues(provider, model).Add(cost)
	}
	b.emit(Event{Name: "usage.recorded", Provider: provider,
		Measurements: map[string]float64{
			"prompt_tokens": float64(promptTokens), "completion_tokens": float64(completionTokens), "cost": cost,
		}})
}

func (b *Bus) RecordError(provider, kind string) {
	b.errorsTotal.WithLabelValues(provider, kind).Inc()
	b.emit(Event{Name: "error.recorded", Provider: provider, Metadata: map[string]string{"kind": kind}})
}

// SetCircuitState publishes the breaker's current state as a gauge value;
// call this from a periodic snapshot loop or on every transition.
func (b *Bus) SetCircuitState(provider string, value float64) {
	b.circuitState.WithLabelValues(provider).Set(value)
}

func (b *Bus) RecordRateLimitHit(reason string) {
	b.rateLimitHits.WithLabelValues(reason).Inc()
	b.emit(Event{Name: "ratelimit.rejected", Metadata: map[string]string{"reason": reason}})
}

func (b *Bus) StreamStarted()   { b.activeStreams.Inc() }
func (b *Bus) StreamFinished()  { b.activeStreams.Dec() }
func (b *Bus) SetOverflowDepth(n int) { b.overflowDepth.Set(float64(n)) }

// RouterDecide emits the router.decide event named in spec §4.5.
func (b *Bus) RouterDecide(provider, policy, requestID, strategy string) {
	b.emit(Event{Name: "router.decide", Provider: provider, RequestID: requestID,
		Metadata: map[string]string{"policy": policy, "strategy": strategy}})
}
