package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type callMetrics struct {
	calls      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	faults     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	writes     prometheus.Histogram
	events     *prometheus.CounterVec
	logHead    prometheus.Gauge

	// OTLP mirrors of the call counters, exported when telemetry metrics
	// are enabled.
	callCounter  metric.Int64Counter
	callDuration metric.Float64Histogram
}

type indexerMetrics struct {
	processed *prometheus.CounterVec
	cursor    prometheus.Gauge
	failures  prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	callMetricsOnce sync.Once
	callRegistry    *callMetrics

	indexerMetricsOnce sync.Once
	indexerRegistry    *indexerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record query
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total query API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total query API errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftledger",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for query API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of query API requests rejected by throttling.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// Calls returns the registry tracking ledger call outcomes.
func Calls() *callMetrics {
	callMetricsOnce.Do(func() {
		callRegistry = &callMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Ledger calls segmented by method and outcome (committed, rejected, fault).",
			}, []string{"method", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Policy rejections segmented by method and reason.",
			}, []string{"method", "reason"}),
			faults: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "faults_total",
				Help:      "Integrity faults segmented by method.",
			}, []string{"method"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for ledger calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			writes: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "committed_writes",
				Help:      "Number of storage writes committed per call.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Committed ledger events segmented by type.",
			}, []string{"type"}),
			logHead: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftledger",
				Subsystem: "ledger",
				Name:      "event_log_head",
				Help:      "Sequence number of the last committed event.",
			}),
		}
		prometheus.MustRegister(
			callRegistry.calls,
			callRegistry.rejections,
			callRegistry.faults,
			callRegistry.latency,
			callRegistry.writes,
			callRegistry.events,
			callRegistry.logHead,
		)
		callRegistry.initMeter()
	})
	return callRegistry
}

func (m *callMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("nftledger/ledger")
	counter, err := meter.Int64Counter("nftledger.ledger.calls")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("nftledger/ledger")
		counter, _ = meter.Int64Counter("nftledger.ledger.calls")
	}
	duration, err := meter.Float64Histogram("nftledger.ledger.call.duration", metric.WithUnit("s"))
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter("nftledger/ledger").Float64Histogram("nftledger.ledger.call.duration")
	}
	m.callCounter = counter
	m.callDuration = duration
}

func (m *callMetrics) export(method, outcome string, duration time.Duration) {
	if m.callCounter == nil || m.callDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("outcome", outcome))
	m.callCounter.Add(context.Background(), 1, attrs)
	m.callDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordCommit records a successful call and the number of writes it made.
func (m *callMetrics) RecordCommit(method string, writes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method, "committed").Inc()
	m.writes.Observe(float64(writes))
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	m.export(method, "committed", duration)
}

// RecordEvent counts one committed event and advances the log head gauge.
func (m *callMetrics) RecordEvent(eventType string, seq uint64) {
	if m == nil {
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "Unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
	m.logHead.Set(float64(seq))
}

// RecordRejection records a call refused by ledger policy.
func (m *callMetrics) RecordRejection(method, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.calls.WithLabelValues(method, "rejected").Inc()
	m.rejections.WithLabelValues(method, reason).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	m.export(method, "rejected", duration)
}

// RecordFault records a call aborted by a storage or integrity fault.
func (m *callMetrics) RecordFault(method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method, "fault").Inc()
	m.faults.WithLabelValues(method).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	m.export(method, "fault", duration)
}

// Indexer returns the registry tracking event-log projection.
func Indexer() *indexerMetrics {
	indexerMetricsOnce.Do(func() {
		indexerRegistry = &indexerMetrics{
			processed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "indexer",
				Name:      "events_total",
				Help:      "Events projected into the index database segmented by type.",
			}, []string{"type"}),
			cursor: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftledger",
				Subsystem: "indexer",
				Name:      "cursor",
				Help:      "Sequence number of the last projected event.",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftledger",
				Subsystem: "indexer",
				Name:      "sync_failures_total",
				Help:      "Indexer sync passes that ended in error.",
			}),
		}
		prometheus.MustRegister(indexerRegistry.processed, indexerRegistry.cursor, indexerRegistry.failures)
	})
	return indexerRegistry
}

// RecordProjected counts one projected event and advances the cursor gauge.
func (m *indexerMetrics) RecordProjected(eventType string, seq uint64) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(eventType).Inc()
	m.cursor.Set(float64(seq))
}

// RecordFailure counts a failed sync pass.
func (m *indexerMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}
