package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine work. A nil *Metrics records nothing.
type Metrics struct {
	BodyInvocations prometheus.Counter
	HistoryHits     prometheus.Counter
	HistoryMisses   prometheus.Counter
	Invalidations   prometheus.Counter
	SpawnedTasks    prometheus.Counter
}

// NewMetrics creates engine counters registered on reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BodyInvocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "engine",
			Name:      "body_invocations_total",
			Help:      "Operation bodies and delays invoked",
		}),
		HistoryHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "engine",
			Name:      "history_hits_total",
			Help:      "Operation evaluations answered from history",
		}),
		HistoryMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "engine",
			Name:      "history_misses_total",
			Help:      "Operation evaluations that ran their body",
		}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "engine",
			Name:      "invalidations_total",
			Help:      "Cached node results dropped by plan edits",
		}),
		SpawnedTasks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "engine",
			Name:      "spawned_tasks_total",
			Help:      "Continuations run as new tasks after exceeding the depth budget",
		}),
	}
}

func (m *Metrics) bodyInvoked() {
	if m != nil {
		m.BodyInvocations.Inc()
	}
}

func (m *Metrics) historyHit() {
	if m != nil {
		m.HistoryHits.Inc()
	}
}

func (m *Metrics) historyMiss() {
	if m != nil {
		m.HistoryMisses.Inc()
	}
}

func (m *Metrics) invalidated() {
	if m != nil {
		m.Invalidations.Inc()
	}
}

func (m *Metrics) spawned() {
	if m != nil {
		m.SpawnedTasks.Inc()
	}
}
