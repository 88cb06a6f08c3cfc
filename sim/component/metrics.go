package component

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-component bus and epoch counters, registered on the
// provided registry so several components can share one process.
type Metrics struct {
	messagesReceived  *prometheus.CounterVec
	messagesPublished *prometheus.CounterVec
	epochsCompleted   prometheus.Counter
	currentEpoch      prometheus.Gauge
	errorsReported    prometheus.Counter
}

// NewMetrics registers the component metrics on reg. The component name
// becomes a constant label so a shared registry stays unambiguous.
func NewMetrics(reg prometheus.Registerer, component string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"component": component}
	return &Metrics{
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "v2gsim",
			Name:        "messages_received_total",
			Help:        "Bus messages received, by message type.",
			ConstLabels: labels,
		}, []string{"type"}),
		messagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "v2gsim",
			Name:        "messages_published_total",
			Help:        "Bus messages published, by message type.",
			ConstLabels: labels,
		}, []string{"type"}),
		epochsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "v2gsim",
			Name:        "epochs_completed_total",
			Help:        "Epochs for which a ready status was published.",
			ConstLabels: labels,
		}),
		currentEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "v2gsim",
			Name:        "current_epoch",
			Help:        "Number of the epoch currently being processed.",
			ConstLabels: labels,
		}),
		errorsReported: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "v2gsim",
			Name:        "errors_reported_total",
			Help:        "Error messages published to the simulation manager.",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) received(msgType string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) published(msgType string) {
	if m != nil {
		m.messagesPublished.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) epochStarted(epoch int) {
	if m != nil {
		m.currentEpoch.Set(float64(epoch))
	}
}

func (m *Metrics) epochCompleted() {
	if m != nil {
		m.epochsCompleted.Inc()
	}
}

func (m *Metrics) errorReported() {
	if m != nil {
		m.errorsReported.Inc()
	}
}
