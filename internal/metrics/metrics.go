package metrics

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeOK         = "ok"
	OutcomeNoSource   = "no_source"
	OutcomeStale      = "stale"
	OutcomeRetrieval  = "retrieval_error"
	OutcomeError      = "error"
	OutcomeNoContract = "no_contracts"
)

// Metrics holds Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles              *prometheus.CounterVec
	probeFailures       *prometheus.CounterVec
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter
	notificationsDedup  prometheus.Counter
	trustedHeight       prometheus.Gauge
	checkpoint          prometheus.Gauge
	members             prometheus.Gauge
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New builds collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multisig_watch_cycles_total",
			Help: "Scan cycles by outcome",
		}, []string{"outcome"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multisig_watch_probe_failures_total",
			Help: "Failed height probes per endpoint",
		}, []string{"endpoint"}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisig_watch_notifications_sent_total",
			Help: "Notifications delivered",
		}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisig_watch_notifications_failed_total",
			Help: "Notifications that failed and were dropped",
		}),
		notificationsDedup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "multisig_watch_notifications_deduped_total",
			Help: "Events skipped because their tx was already notified in the batch",
		}),
		trustedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multisig_watch_trusted_height",
			Help: "Last consensus chain height",
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multisig_watch_checkpoint_next_block",
			Help: "Persisted next block to scan",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "multisig_watch_endpoint_members",
			Help: "Endpoints agreeing with the trusted height",
		}),
	}
	reg.MustRegister(
		m.cycles,
		m.probeFailures,
		m.notificationsSent,
		m.notificationsFailed,
		m.notificationsDedup,
		m.trustedHeight,
		m.checkpoint,
		m.members,
	)
	return m
}

// Cycle counts a finished cycle.
func (m *Metrics) Cycle(outcome string) {
	if m != nil {
		m.cycles.WithLabelValues(outcome).Inc()
	}
}

// ProbeFailed counts a failed height probe. Only the host is used as a label since
// endpoint URLs often embed API keys.
func (m *Metrics) ProbeFailed(endpoint string) {
	if m != nil {
		m.probeFailures.WithLabelValues(hostLabel(endpoint)).Inc()
	}
}

func hostLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// NotificationSent increments the delivered counter.
func (m *Metrics) NotificationSent() {
	if m != nil {
		m.notificationsSent.Inc()
	}
}

// NotificationFailed increments the failed counter.
func (m *Metrics) NotificationFailed() {
	if m != nil {
		m.notificationsFailed.Inc()
	}
}

// NotificationDeduped increments the dedupe counter.
func (m *Metrics) NotificationDeduped() {
	if m != nil {
		m.notificationsDedup.Inc()
	}
}

// TrustedHeight records the consensus height and member count.
func (m *Metrics) TrustedHeight(height uint64, members int) {
	if m != nil {
		m.trustedHeight.Set(float64(height))
		m.members.Set(float64(members))
	}
}

// Checkpoint records the persisted cursor.
func (m *Metrics) Checkpoint(next uint64) {
	if m != nil {
		m.checkpoint.Set(float64(next))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
