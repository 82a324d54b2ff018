// Package metrics holds the Prometheus collectors shared by every monitored unit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push outcomes.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeCooldown    = "cooldown"
	OutcomeRateLimited = "rate_limited"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nicuwatch_events_received_total",
		Help: "Telemetry events handled by the router",
	}, []string{"unit", "event"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nicuwatch_events_dropped_total",
		Help: "Telemetry events dropped while the source was disconnected",
	}, []string{"unit", "event"})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nicuwatch_alerts_created_total",
		Help: "Alerts created by kind",
	}, []string{"unit", "kind"})

	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nicuwatch_pushes_total",
		Help: "Push notification attempts by outcome",
	}, []string{"unit", "outcome"})

	SourceConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nicuwatch_source_connected",
		Help: "1 while the unit's event source is connected",
	}, []string{"unit"})
)
