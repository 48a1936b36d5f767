package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasmusic-ai/permit-pro/internal/application/dispatcher"
	"github.com/nasmusic-ai/permit-pro/internal/domain/event"
)

const namespace = "permit"

// Metrics owns a private registry with the workflow counters
type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	payments      *prometheus.CounterVec
	permits       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	applications  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed application status transitions.",
		}, []string{"action", "from", "to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment lifecycle events.",
		}, []string{"event"}),
		permits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permit_events_total",
			Help:      "Permits issued and revoked.",
		}, []string{"event"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_stored_total",
			Help:      "Notifications written to user inboxes.",
		}, []string{"severity"}),
		applications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_created_total",
			Help:      "Applications opened by applicants.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.transitions,
		m.payments,
		m.permits,
		m.notifications,
		m.applications,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Subscribe counts domain events as they are dispatched
func (m *Metrics) Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeStatusChanged, "metrics.transitions", func(ctx context.Context, evt *event.Event) error {
		m.transitions.WithLabelValues(
			evt.GetPayloadString("action"),
			evt.GetPayloadString("previous_status"),
			evt.GetPayloadString("new_status"),
		).Inc()
		return nil
	})
	d.SubscribeNamed(event.TypeApplicationCreated, "metrics.applications", func(ctx context.Context, evt *event.Event) error {
		m.applications.Inc()
		return nil
	})

	for t, label := range map[event.Type]string{
		event.TypePaymentRecorded:  "recorded",
		event.TypePaymentConfirmed: "confirmed",
		event.TypePaymentVerified:  "verified",
	} {
		d.SubscribeNamed(t, "metrics.payments", func(ctx context.Context, evt *event.Event) error {
			m.payments.WithLabelValues(label).Inc()
			return nil
		})
	}

	for t, label := range map[event.Type]string{
		event.TypePermitIssued:  "issued",
		event.TypePermitRevoked: "revoked",
	} {
		d.SubscribeNamed(t, "metrics.permits", func(ctx context.Context, evt *event.Event) error {
			m.permits.WithLabelValues(label).Inc()
			return nil
		})
	}

	d.SubscribeNamed(event.TypeNotificationQueued, "metrics.notifications", func(ctx context.Context, evt *event.Event) error {
		m.notifications.WithLabelValues(evt.GetPayloadString("severity")).Inc()
		return nil
	})
}

// RegisterQueueDepth exposes a queue length sampled at scrape time
func (m *Metrics) RegisterQueueDepth(name string, depth func() int) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Items waiting in an in-process queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) }))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
