// Package metrics holds the Prometheus counters for lifecycle transitions,
// exposed on /metrics by the API binary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_events_started_total",
		Help: "Events moved from not-started to started.",
	})
	EventsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_events_completed_total",
		Help: "Events moved from started to completed.",
	})
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_student_checkins_total",
		Help: "Student attendance rows moved from pending to present.",
	})
	CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_student_checkouts_total",
		Help: "Present attendance rows closed by the student.",
	})
	WindowExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_window_expired_total",
		Help: "Check-in attempts rejected because the attendance window had passed.",
	})
	MarkedAbsent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventtrack_marked_absent_total",
		Help: "Attendance rows transitioned to absent, by expiry or event end.",
	})
)
