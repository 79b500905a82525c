// Package metrics holds the Prometheus collectors shared by the api and
// worker binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusattend"

var (
	CaptureSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capture_sessions_active",
		Help:      "Capture sessions currently registered.",
	})

	CaptureOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_outcomes_total",
		Help:      "Finished capture attempts by outcome.",
	}, []string{"outcome"})

	AttendanceMarked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_marked_total",
		Help:      "Present records created, by location status.",
	}, []string{"location_status"})

	GeolocationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geolocation_failures_total",
		Help:      "Geolocation queries that returned no position.",
	}, []string{"reason"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts by channel and result.",
	}, []string{"channel", "result"})

	DailyPresent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "daily_present_students",
		Help:      "Students marked present on the last refreshed day.",
	})

	DailyAbsent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "daily_absent_students",
		Help:      "Students not marked present on the last refreshed day.",
	})

	DailyPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "daily_present_percentage",
		Help:      "Rounded share of students present on the last refreshed day.",
	})
)
