// Copyright 2025 Cradlecast Contributors
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

package system

import (
	"time"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
)

// Collaborators are the external facts the default state guards poll.
// All checks are immediate; nil members disable the corresponding guards.
type Collaborators struct {
	Link   transport.Link
	Socket transport.Socket

	// HealthOK reports whether the device is healthy enough to stream.
	HealthOK func() bool
}

// Durations carries the per-state maximum durations, overridable from the
// config file. Zero fields fall back to the compiled-in defaults.
type Durations struct {
	Initializing     time.Duration
	JoiningNetwork   time.Duration
	ReachingEndpoint time.Duration
	Streaming        time.Duration
	Disconnected     time.Duration
	Error            time.Duration
	Maintenance      time.Duration
}

// DefaultDurations returns the compiled-in per-state timeouts.
func DefaultDurations() Durations {
	return Durations{
		Initializing:     constants.InitializingMaxDuration,
		JoiningNetwork:   constants.JoiningNetworkMaxDuration,
		ReachingEndpoint: constants.ReachingEndpointMaxDuration,
		Streaming:        constants.StreamingMaxDuration,
		Disconnected:     constants.DisconnectedMaxDuration,
		Error:            constants.ErrorMaxDuration,
		Maintenance:      constants.MaintenanceMaxDuration,
	}
}

// DefaultStateConfigs builds the standard seven-state configuration wired to
// the given collaborators. Streaming and Maintenance are unbounded;
// Maintenance is manual-only with auto-recovery disabled.
func DefaultStateConfigs(c Collaborators, d Durations) []Config {
	linkUp := Condition{
		Check:       func() bool { return c.Link == nil || c.Link.IsUp() },
		Description: "network link is up",
		WaitBudget:  30 * time.Second,
	}
	socketConnected := Condition{
		Check:       func() bool { return c.Socket == nil || c.Socket.IsConnected() },
		Description: "endpoint socket is connected",
		WaitBudget:  10 * time.Second,
	}
	healthy := Condition{
		Check:       func() bool { return c.HealthOK == nil || c.HealthOK() },
		Description: "device health acceptable",
	}

	return []Config{
		{
			State:               StateInitializing,
			MaxDuration:         d.Initializing,
			AutoRecoveryEnabled: true,
		},
		{
			State:               StateJoiningNetwork,
			MaxDuration:         d.JoiningNetwork,
			ExitConditions:      []Condition{},
			AutoRecoveryEnabled: true,
		},
		{
			State:               StateReachingEndpoint,
			EntryConditions:     []Condition{linkUp},
			MaxDuration:         d.ReachingEndpoint,
			AutoRecoveryEnabled: true,
		},
		{
			State:               StateStreaming,
			EntryConditions:     []Condition{linkUp, socketConnected, healthy},
			MaxDuration:         d.Streaming,
			AutoRecoveryEnabled: true,
		},
		{
			State:               StateDisconnected,
			MaxDuration:         d.Disconnected,
			AutoRecoveryEnabled: true,
		},
		{
			State:               StateError,
			MaxDuration:         d.Error,
			AutoRecoveryEnabled: true,
		},
		{
			State:       StateMaintenance,
			MaxDuration: d.Maintenance,
			ManualOnly:  true,
		},
	}
}
