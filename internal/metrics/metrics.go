package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

const namespace = "ranked_matchmaker"

// Prometheus service.Metrics 구현
type Prometheus struct {
	queueSize        prometheus.Gauge
	queueTimeouts    prometheus.Counter
	matchesCreated   prometheus.Counter
	creationFailures *prometheus.CounterVec
	rollbacks        prometheus.Counter
	matchesFinished  *prometheus.CounterVec
	creationDuration prometheus.Histogram
	voteKicks        *prometheus.CounterVec
}

var _ service.Metrics = (*Prometheus)(nil)

// New registry 에 지표 등록
func New(registry prometheus.Registerer) *Prometheus {
	factory := promauto.With(registry)

	return &Prometheus{
		queueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Number of players currently waiting in the queue",
		}),
		queueTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_timeouts_total",
			Help:      "Queue entries removed after waiting too long",
		}),
		matchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches created from the queue",
		}),
		creationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_creation_failures_total",
			Help:      "Match creation attempts that failed, by reason",
		}, []string{"reason"}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_creation_rollbacks_total",
			Help:      "Match creation attempts that returned players to the queue",
		}),
		matchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Matches that reached a terminal state, by status",
		}, []string{"status"}),
		creationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_creation_duration_ms",
			Help:      "Time spent creating a match in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		voteKicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_kicks_total",
			Help:      "Resolved vote kicks, by outcome",
		}, []string{"status"}),
	}
}

func (m *Prometheus) SetQueueSize(n int) {
	m.queueSize.Set(float64(n))
}

func (m *Prometheus) IncQueueTimeouts(n int) {
	m.queueTimeouts.Add(float64(n))
}

func (m *Prometheus) IncMatchesCreated() {
	m.matchesCreated.Inc()
}

func (m *Prometheus) IncMatchCreationFailures(reason string) {
	m.creationFailures.WithLabelValues(reason).Inc()
}

func (m *Prometheus) IncRollbacks() {
	m.rollbacks.Inc()
}

func (m *Prometheus) IncMatchesFinished(status models.MatchStatus) {
	m.matchesFinished.WithLabelValues(string(status)).Inc()
}

func (m *Prometheus) ObserveMatchCreation(d time.Duration) {
	m.creationDuration.Observe(float64(d.Milliseconds()))
}

func (m *Prometheus) IncVoteKicks(status models.VoteKickStatus) {
	m.voteKicks.WithLabelValues(string(status)).Inc()
}
