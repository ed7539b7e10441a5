// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// instancesRunning tracks supervised server processes that have not exited
	instancesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mysqlctl_instances_running",
			Help: "Number of supervised server processes that have not yet exited",
		},
	)

	// startupsTotal tracks readiness outcomes
	startupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mysqlctl_instance_startups_total",
			Help: "Total instance startups by result",
		},
		[]string{"result"},
	)

	// probesTotal tracks individual readiness probes
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mysqlctl_readiness_probes_total",
			Help: "Total readiness probes by result",
		},
		[]string{"result"},
	)

	// startupDuration tracks time from spawn to first successful probe
	startupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mysqlctl_instance_startup_duration_seconds",
			Help:    "Time until a started instance answered its first ping",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// terminationsTotal tracks observed process exits
	terminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mysqlctl_instance_terminations_total",
			Help: "Total supervised process exits by exit status",
		},
		[]string{"status"},
	)

	// socketWakeups tracks readiness probes triggered by socket creation
	socketWakeups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mysqlctl_socket_wakeups_total",
			Help: "Total readiness probes triggered early by socket creation",
		},
	)
)

// recordStartup increments the startup counter
func recordStartup(result string) {
	startupsTotal.WithLabelValues(result).Inc()
}

// recordProbe increments the probe counter
func recordProbe(alive bool) {
	result := "not_alive"
	if alive {
		result = "alive"
	}
	probesTotal.WithLabelValues(result).Inc()
}

// recordTermination increments the termination counter
func recordTermination(exitCode int) {
	status := "error"
	if exitCode == 0 {
		status = "clean"
	}
	terminationsTotal.WithLabelValues(status).Inc()
}
