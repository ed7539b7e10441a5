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

package mysql

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// adminCommands tracks mysqladmin invocations
	adminCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mysqlctl_admin_commands_total",
			Help: "Total mysqladmin invocations by command and result",
		},
		[]string{"command", "result"},
	)

	// initializations tracks data directory initializations
	initializations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mysqlctl_datadir_initializations_total",
			Help: "Total data directory initializations by result",
		},
		[]string{"result"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// recordAdminCommand increments the admin command counter
func recordAdminCommand(command string, err error) {
	adminCommands.WithLabelValues(command, resultLabel(err)).Inc()
}

// recordInitialization increments the initialization counter
func recordInitialization(err error) {
	initializations.WithLabelValues(resultLabel(err)).Inc()
}
