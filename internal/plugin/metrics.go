// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels for lifecycle metrics.
const (
	OpLoad   = "load"
	OpUnload = "unload"
	OpReload = "reload"
)

// Result labels for lifecycle metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// LifecycleOps counts plugin lifecycle operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var LifecycleOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "boncarobot_plugin_loads_total",
		Help: "Total number of plugin load, unload and reload operations",
	},
	[]string{"plugin", "operation", "result"},
)

// Resident is the number of plugins currently loaded.
var Resident = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "boncarobot_plugins_resident",
		Help: "Number of plugins currently loaded",
	},
)

// RegisterMetrics registers plugin package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LifecycleOps)
	reg.MustRegister(Resident)
}

// RecordLifecycle increments the lifecycle counter.
func RecordLifecycle(plugin, op string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	LifecycleOps.WithLabelValues(plugin, op, result).Inc()
}
