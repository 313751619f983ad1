package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reminder ticks.
type Metrics struct {
	Ticks            *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	Candidates       prometheus.Counter
	RemindersSent    *prometheus.CounterVec
	RemindersSkipped *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	CommitFailures   *prometheus.CounterVec
}

// NewMetrics registers the scheduler metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docwatch_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome",
		}, []string{"outcome"}), // outcome: "completed", "failed", "skipped"

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docwatch_scheduler_tick_duration_seconds",
			Help:    "Duration of a full scheduler tick",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		Candidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "docwatch_scheduler_candidates_total",
			Help: "Document instances evaluated by the scheduler",
		}),

		RemindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docwatch_reminders_sent_total",
			Help: "Reminders delivered by tier",
		}, []string{"tier"}),

		RemindersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docwatch_reminders_skipped_total",
			Help: "Evaluations that produced no reminder, by reason",
		}, []string{"reason"}),

		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docwatch_delivery_failures_total",
			Help: "Failed reminder deliveries by kind",
		}, []string{"kind"}), // kind: "transient", "permanent"

		CommitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docwatch_reminder_commit_failures_total",
			Help: "Delivered reminders whose state update failed, by cause",
		}, []string{"cause"}), // cause: "conflict", "persistence"
	}
}

func (m *Metrics) observeTick(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(outcome).Inc()
	if outcome != tickSkipped {
		m.TickDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) addCandidates(n int) {
	if m != nil {
		m.Candidates.Add(float64(n))
	}
}

func (m *Metrics) incSent(tier string) {
	if m != nil {
		m.RemindersSent.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) incSkipped(reason string) {
	if m != nil {
		m.RemindersSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incDeliveryFailure(kind string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incCommitFailure(cause string) {
	if m != nil {
		m.CommitFailures.WithLabelValues(cause).Inc()
	}
}
