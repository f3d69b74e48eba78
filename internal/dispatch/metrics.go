// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Invocation kinds.
const (
	KindCommand = "command"
	KindMessage = "message"
)

// Status constants for invocation metrics.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFault    = "fault"
	StatusReleased = "released"
)

// Invocations is the counter for plugin invocations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Invocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "boncarobot_invocations_total",
		Help: "Total number of plugin invocations",
	},
	[]string{"plugin", "kind", "status"},
)

// InvocationDuration is the histogram for plugin invocation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "boncarobot_invocation_duration_seconds",
		Help:    "Plugin invocation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "kind"},
)

// UnknownCommands counts command lines no plugin handled.
var UnknownCommands = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "boncarobot_unknown_commands_total",
		Help: "Total number of unrecognized commands",
	},
)

// RegisterMetrics registers dispatch package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Invocations)
	reg.MustRegister(InvocationDuration)
	reg.MustRegister(UnknownCommands)
}

// RecordInvocation records the outcome and duration of one invocation.
func RecordInvocation(plugin, kind, status string, duration time.Duration) {
	Invocations.WithLabelValues(plugin, kind, status).Inc()
	InvocationDuration.WithLabelValues(plugin, kind).Observe(duration.Seconds())
}
