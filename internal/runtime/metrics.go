package runtime

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pipeflow"

// Outcome label values.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeUnhandled = "unhandled"
	outcomeAmbiguous = "ambiguous"
)

// pipelineMetrics holds the Prometheus collectors shared by the coordinator,
// the dispatcher and the metrics middleware. A nil *pipelineMetrics is valid
// and records nothing.
type pipelineMetrics struct {
	processed         *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	notifications     *prometheus.CounterVec
	notifyDuration    *prometheus.HistogramVec
	fanoutInFlight    prometheus.Gauge
	forwardedMessages *prometheus.CounterVec
}

func newPipelineMetrics(reg prometheus.Registerer) (*pipelineMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	m := &pipelineMetrics{}

	if m.processed, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_processed_total",
		Help:      "Messages submitted to Process, by message type and outcome.",
	}, []string{"message_type", "outcome"})); err != nil {
		return nil, err
	}
	if m.processDuration, err = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "process_duration_seconds",
		Help:      "Duration of the process chain, by message type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"message_type"})); err != nil {
		return nil, err
	}
	if m.notifications, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "subscriber_notifications_total",
		Help:      "Subscriber notifications, by message type, subscriber and outcome.",
	}, []string{"message_type", "subscriber", "outcome"})); err != nil {
		return nil, err
	}
	if m.notifyDuration, err = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "subscriber_duration_seconds",
		Help:      "Duration of one subscription chain, by message type and subscriber.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"message_type", "subscriber"})); err != nil {
		return nil, err
	}
	if m.fanoutInFlight, err = registerCollector(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "fanout_in_flight",
		Help:      "Fan-out goroutines that have not finished yet.",
	})); err != nil {
		return nil, err
	}
	if m.forwardedMessages, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "forwarded_messages_total",
		Help:      "Messages forwarded to the transport, by topic and outcome.",
	}, []string{"topic", "outcome"})); err != nil {
		return nil, err
	}

	return m, nil
}

// registerCollector registers c, reusing the collector already registered
// under the same descriptor so several pipelines can share a registry.
func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func outcomeOf(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeSuccess
}

func (m *pipelineMetrics) observeProcess(messageType string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(messageType, outcomeOf(err)).Inc()
	m.processDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

func (m *pipelineMetrics) observeOutcome(messageType, outcome string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(messageType, outcome).Inc()
}

func (m *pipelineMetrics) observeNotification(messageType, subscriber string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(messageType, subscriber, outcomeOf(err)).Inc()
	m.notifyDuration.WithLabelValues(messageType, subscriber).Observe(duration.Seconds())
}

func (m *pipelineMetrics) observeForward(topic string, err error) {
	if m == nil {
		return
	}
	m.forwardedMessages.WithLabelValues(topic, outcomeOf(err)).Inc()
}

func (m *pipelineMetrics) fanoutStarted() {
	if m != nil {
		m.fanoutInFlight.Inc()
	}
}

func (m *pipelineMetrics) fanoutFinished() {
	if m != nil {
		m.fanoutInFlight.Dec()
	}
}
