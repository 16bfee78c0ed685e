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

import "time"

// State is the top-level lifecycle state of the device.
type State int

const (
	// StateInitializing is the boot state.
	StateInitializing State = iota
	// StateJoiningNetwork is waiting for the wireless link to come up.
	StateJoiningNetwork
	// StateReachingEndpoint is establishing the connection to the remote
	// endpoint.
	StateReachingEndpoint
	// StateStreaming is the steady state: audio flows to the endpoint.
	StateStreaming
	// StateDisconnected is the holding state after a lost connection.
	StateDisconnected
	// StateError is entered on timeouts and persistent failures.
	StateError
	// StateMaintenance is the manual-only safe state; no auto-recovery.
	StateMaintenance

	stateCount
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateJoiningNetwork:
		return "joining_network"
	case StateReachingEndpoint:
		return "reaching_endpoint"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	case StateMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the seven lifecycle states.
func (s State) IsValid() bool {
	return s >= StateInitializing && s < stateCount
}

// Reason classifies why a transition happened.
type Reason int

const (
	// ReasonNormal is regular state progression.
	ReasonNormal Reason = iota
	// ReasonTimeout means the state exceeded its maximum duration.
	ReasonTimeout
	// ReasonErrorCondition means an error was detected.
	ReasonErrorCondition
	// ReasonRecovery is a transition performed while recovering from an error.
	ReasonRecovery
	// ReasonManual is operator intervention; bypasses the adjacency table.
	ReasonManual
	// ReasonEmergency is an emergency path; bypasses the adjacency table.
	ReasonEmergency
	// ReasonAutomatic is a transition initiated by a controller rather than
	// the regular progression.
	ReasonAutomatic
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonNormal:
		return "normal"
	case ReasonTimeout:
		return "timeout"
	case ReasonErrorCondition:
		return "error_condition"
	case ReasonRecovery:
		return "recovery"
	case ReasonManual:
		return "manual"
	case ReasonEmergency:
		return "emergency"
	case ReasonAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// bypassesValidation reports whether transitions with this reason skip the
// adjacency table and condition checks.
func (r Reason) bypassesValidation() bool {
	return r == ReasonManual || r == ReasonEmergency
}

// Condition is a guard evaluated before entering or leaving a state. Check
// must be a pure, immediate poll: it never sleeps or spin-waits. If the
// condition does not hold yet, the transition fails for this tick and the
// caller retries on a later one. WaitBudget documents how long callers are
// expected to keep retrying before treating the condition as stuck; the
// machine itself never waits on it.
type Condition struct {
	Check       func() bool
	Description string
	WaitBudget  time.Duration
}

// Config describes one state: its guards, timeout and flags. Configured once
// at startup and immutable thereafter.
type Config struct {
	State           State
	EntryConditions []Condition
	ExitConditions  []Condition

	// MaxDuration is how long the state may be held before the scheduler
	// treats it as timed out. Zero means unbounded.
	MaxDuration time.Duration

	// ManualOnly marks states that are only entered through manual
	// transitions.
	ManualOnly bool

	// AutoRecoveryEnabled allows the recovery dispatcher to act on failures
	// seen while in this state.
	AutoRecoveryEnabled bool
}

// Transition is an immutable record of one state change.
type Transition struct {
	From        State
	To          State
	Reason      Reason
	Timestamp   time.Time
	Description string
	Successful  bool
}

// adjacency is the fixed table of legal transitions for non-manual reasons.
var adjacency = map[State][]State{
	StateInitializing:     {StateJoiningNetwork, StateError},
	StateJoiningNetwork:   {StateReachingEndpoint, StateError, StateJoiningNetwork},
	StateReachingEndpoint: {StateStreaming, StateError, StateJoiningNetwork, StateReachingEndpoint},
	StateStreaming:        {StateDisconnected, StateError, StateJoiningNetwork, StateReachingEndpoint},
	StateDisconnected:     {StateReachingEndpoint, StateError, StateJoiningNetwork},
	StateError:            {StateJoiningNetwork, StateMaintenance, StateError},
	StateMaintenance:      {StateInitializing, StateJoiningNetwork},
}

// isLegalTransition consults the adjacency table.
func isLegalTransition(from, to State) bool {
	for _, s := range adjacency[from] {
		if s == to {
			return true
		}
	}

	return false
}
