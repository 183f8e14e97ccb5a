package services

import (
	"strconv"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "iotsensors_opcua"

// Monitor exports sampling and publishing counters to Prometheus.
type Monitor struct {
	samples       prometheus.Counter
	suppressed    *prometheus.CounterVec
	enqueued      prometheus.Counter
	overflows     prometheus.Counter
	published     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	keepAlives    *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	items         prometheus.Gauge
}

// NewMonitor registers the collectors with reg, prometheus.DefaultRegisterer
// when nil.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	subLabel := []string{"subscription"}
	return &Monitor{
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_total",
			Help:      "Monitored item samples taken.",
		}),
		suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_suppressed_total",
			Help:      "Samples dropped without a notification, by reason.",
		}, []string{"reason"}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_enqueued_total",
			Help:      "Notifications added to monitored item queues.",
		}),
		overflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queue_overflows_total",
			Help:      "Notifications discarded because a queue was full.",
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_published_total",
			Help:      "Notification messages carrying data.",
		}, subLabel),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_published_total",
			Help:      "Notifications delivered in notification messages.",
		}, subLabel),
		keepAlives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keep_alives_total",
			Help:      "Keep-alive messages.",
		}, subLabel),
		publishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_errors_total",
			Help:      "Notification messages the publisher failed to deliver.",
		}, subLabel),
		items: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "monitored_items",
			Help:      "Live monitored items.",
		}),
	}
}

func (m *Monitor) Sampled()    { m.samples.Inc() }
func (m *Monitor) Enqueued()   { m.enqueued.Inc() }
func (m *Monitor) Overflowed() { m.overflows.Inc() }

func (m *Monitor) Suppressed(kind monitoring.Error) {
	m.suppressed.WithLabelValues(kind.Error()).Inc()
}

func (m *Monitor) Published(subscriptionID uint32, notifications int) {
	id := strconv.FormatUint(uint64(subscriptionID), 10)
	m.published.WithLabelValues(id).Inc()
	m.notifications.WithLabelValues(id).Add(float64(notifications))
}

func (m *Monitor) KeepAlive(subscriptionID uint32) {
	m.keepAlives.WithLabelValues(strconv.FormatUint(uint64(subscriptionID), 10)).Inc()
}

func (m *Monitor) PublishFailed(subscriptionID uint32) {
	m.publishErrors.WithLabelValues(strconv.FormatUint(uint64(subscriptionID), 10)).Inc()
}

func (m *Monitor) ItemsChanged(delta int) {
	m.items.Add(float64(delta))
}
