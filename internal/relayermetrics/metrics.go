package relayermetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for TransferOutcome.
const (
	OutcomeCompleted           = "completed"
	OutcomeSentUnconfirmed     = "completed_unconfirmed"
	OutcomeNotForMe            = "skipped_not_for_me"
	OutcomeDuplicate           = "skipped_duplicate"
	OutcomeNotConnected        = "skipped_not_connected"
	OutcomeInvalidRecipient    = "dropped_invalid_recipient"
	OutcomeUnresolvedToken     = "dropped_unresolved_token"
	OutcomeInsufficientFunds   = "alert_insufficient_funds"
	OutcomeSubmitFailed        = "submit_failed"
	OutcomeMalformed           = "dropped_malformed"
	OutcomeExpired             = "dropped_expired"
	OutcomeUnconfirmedUpstream = "dropped_unconfirmed_upstream"
)

type PrometheusMetrics struct {
	Registry            *prometheus.Registry
	PacketsObserved     *prometheus.CounterVec
	PacketsConfirmed    *prometheus.CounterVec
	TransferOutcome     *prometheus.CounterVec
	QueueSize           *prometheus.GaugeVec
	WatcherOffset       prometheus.Gauge
	BlockQueryFailure   *prometheus.CounterVec
	ConfirmationAttempt prometheus.Counter
}

func (m *PrometheusMetrics) AddPacketsObserved(channel, port string, count int) {
	m.PacketsObserved.WithLabelValues(channel, port).Add(float64(count))
}

func (m *PrometheusMetrics) IncPacketsConfirmed(channel string) {
	m.PacketsConfirmed.WithLabelValues(channel).Inc()
}

func (m *PrometheusMetrics) IncOutcome(outcome string) {
	m.TransferOutcome.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) SetQueueSize(queue string, size int) {
	m.QueueSize.WithLabelValues(queue).Set(float64(size))
}

func (m *PrometheusMetrics) SetOffset(offset uint64) {
	m.WatcherOffset.Set(float64(offset))
}

func (m *PrometheusMetrics) IncBlockQueryFailure(cause string) {
	m.BlockQueryFailure.WithLabelValues(cause).Inc()
}

func (m *PrometheusMetrics) IncConfirmationAttempt() {
	m.ConfirmationAttempt.Inc()
}

func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registerer := promauto.With(registry)
	return &PrometheusMetrics{
		Registry: registry,
		PacketsObserved: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "orai_relayer_observed_packets",
			Help: "The total number of send_packet events matching the bridge path",
		}, []string{"channel", "port"}),
		PacketsConfirmed: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "orai_relayer_confirmed_packets",
			Help: "The total number of packets corroborated on the intermediate ledger",
		}, []string{"channel"}),
		TransferOutcome: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "orai_relayer_transfer_outcomes_total",
			Help: "Terminal outcome of every packet handled by the relayer",
		}, []string{"outcome"}),
		QueueSize: registerer.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orai_relayer_queue_size",
			Help: "Items waiting in the intake and execution queues",
		}, []string{"queue"}),
		WatcherOffset: registerer.NewGauge(prometheus.GaugeOpts{
			Name: "orai_relayer_watcher_offset",
			Help: "The last source chain height scanned by the watcher",
		}),
		BlockQueryFailure: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "orai_relayer_block_query_errors_total",
			Help: "The total number of failed source chain scans",
		}, []string{"cause"}),
		ConfirmationAttempt: registerer.NewCounter(prometheus.CounterOpts{
			Name: "orai_relayer_confirmation_attempts_total",
			Help: "The total number of corroboration queries issued",
		}),
	}
}
