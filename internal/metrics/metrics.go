// Package metrics exposes wake-verification counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery paths for a fired payload.
const (
	DeliveryLive    = "live"
	DeliveryPending = "pending"
)

// Recorder receives session and delivery observations.
type Recorder interface {
	AlarmFired()
	PayloadDelivered(path string)
	AttemptResult(phase, outcome string)
	SimilarityObserved(phase string, score float64)
	CheatFlag(flag string)
	SessionEnded(state string)
	Snoozed()
}

// Prometheus records observations as Prometheus series.
type Prometheus struct {
	alarmsFired       prometheus.Counter
	payloadsDelivered *prometheus.CounterVec
	attempts          *prometheus.CounterVec
	similarity        *prometheus.HistogramVec
	cheatFlags        *prometheus.CounterVec
	sessions          *prometheus.CounterVec
	snoozes           prometheus.Counter
}

// NewRegistry returns a registry carrying the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New returns a Prometheus recorder registered on reg, or a no-op recorder
// when disabled.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled || reg == nil {
		return Noop{}
	}

	factory := promauto.With(reg)
	return &Prometheus{
		alarmsFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeproof_alarms_fired_total",
			Help: "Total number of alarm triggers that fired",
		}),

		payloadsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeproof_payloads_delivered_total",
			Help: "Fired payloads handed to a session, by delivery path",
		}, []string{"path"}),

		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeproof_attempts_total",
			Help: "Recording attempts by phase and outcome",
		}, []string{"phase", "outcome"}),

		similarity: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wakeproof_similarity_score",
			Help:    "Per-line similarity scores",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"phase"}),

		cheatFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeproof_cheat_flags_total",
			Help: "Anti-cheat flags raised by attempts",
		}, []string{"flag"}),

		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeproof_sessions_total",
			Help: "Verification sessions by final state",
		}, []string{"state"}),

		snoozes: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeproof_snoozes_total",
			Help: "Total number of accepted snoozes",
		}),
	}
}

func (m *Prometheus) AlarmFired() {
	m.alarmsFired.Inc()
}

func (m *Prometheus) PayloadDelivered(path string) {
	m.payloadsDelivered.WithLabelValues(path).Inc()
}

func (m *Prometheus) AttemptResult(phase, outcome string) {
	m.attempts.WithLabelValues(phase, outcome).Inc()
}

func (m *Prometheus) SimilarityObserved(phase string, score float64) {
	m.similarity.WithLabelValues(phase).Observe(score)
}

func (m *Prometheus) CheatFlag(flag string) {
	m.cheatFlags.WithLabelValues(flag).Inc()
}

func (m *Prometheus) SessionEnded(state string) {
	m.sessions.WithLabelValues(state).Inc()
}

func (m *Prometheus) Snoozed() {
	m.snoozes.Inc()
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Noop discards every observation.
type Noop struct{}

func (Noop) AlarmFired()                        {}
func (Noop) PayloadDelivered(string)            {}
func (Noop) AttemptResult(string, string)       {}
func (Noop) SimilarityObserved(string, float64) {}
func (Noop) CheatFlag(string)                   {}
func (Noop) SessionEnded(string)                {}
func (Noop) Snoozed()                           {}
