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

// Package snapshot captures the control plane's observable state for
// diagnostics and crash survival. Snapshots are deep copies; readers never
// share memory with the live control loop.
package snapshot

import (
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/cradlecast/cradlecast-core/pkg/circuitbreaker"
)

// Snapshot is a deep-copyable view of the control plane at one tick.
type Snapshot struct {
	SystemState     string `json:"system_state"`
	PreviousState   string `json:"previous_state"`
	ConnectionState string `json:"connection_state"`
	DegradationMode string `json:"degradation_mode"`

	HealthScore         int    `json:"health_score"`
	Tick                uint64 `json:"tick"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	ConnectAttempts     uint32 `json:"connect_attempts"`

	BreakerCounts map[string]circuitbreaker.Counts `json:"breaker_counts,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Manager holds the latest snapshot. The control loop writes it once per
// tick; any other goroutine may read a copy.
type Manager struct {
	last Snapshot
	set  bool
}

// NewManager creates an empty snapshot manager.
func NewManager() *Manager {
	return &Manager{}
}

// Update stores a deep copy of s as the latest snapshot.
func (m *Manager) Update(s Snapshot) error {
	var cp Snapshot
	if err := deepcopy.Copy(&cp, &s); err != nil {
		return err
	}

	m.last = cp
	m.set = true

	return nil
}

// Latest returns a deep copy of the most recent snapshot; ok is false before
// the first Update.
func (m *Manager) Latest() (Snapshot, bool) {
	if !m.set {
		return Snapshot{}, false
	}

	var cp Snapshot
	if err := deepcopy.Copy(&cp, &m.last); err != nil {
		return Snapshot{}, false
	}

	return cp, true
}
