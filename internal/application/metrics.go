package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// buildEvents counts lifecycle events by event and outcome. Outcome is one of
// "ignored", "reported" or "failed".
var buildEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prstatus_build_events_total",
		Help: "The total number of build lifecycle events handled, by event and outcome.",
	},
	[]string{"event", "outcome"},
)

var approvals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prstatus_pull_request_approvals_total",
		Help: "The total number of pull request approvals posted after successful builds.",
	},
	[]string{"outcome"},
)
