package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	commentsPosted  prometheus.Counter
	votes           *prometheus.CounterVec
	reports         *prometheus.CounterVec
	commentsRemoved *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		commentsPosted: f.NewCounter(prometheus.CounterOpts{
			Name: "murmur_comments_posted_total",
			Help: "Comments and replies created.",
		}),
		votes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_votes_total",
			Help: "Votes that changed a tally, by polarity.",
		}, []string{"polarity"}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_reports_total",
			Help: "Comment reports, by notification outcome.",
		}, []string{"outcome"}),
		commentsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_comments_removed_total",
			Help: "Comments removed by delete, by kind (hidden or deleted).",
		}, []string{"kind"}),
	}
}

func (m *Metrics) commentPosted() {
	if m == nil {
		return
	}
	m.commentsPosted.Inc()
}

func (m *Metrics) vote(like bool) {
	if m == nil {
		return
	}
	polarity := "down"
	if like {
		polarity = "up"
	}
	m.votes.WithLabelValues(polarity).Inc()
}

func (m *Metrics) report(outcome string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) removed(r removal) {
	if m == nil {
		return
	}
	if r.hidden > 0 {
		m.commentsRemoved.WithLabelValues("hidden").Add(float64(r.hidden))
	}
	if r.deleted > 0 {
		m.commentsRemoved.WithLabelValues("deleted").Add(float64(r.deleted))
	}
}
