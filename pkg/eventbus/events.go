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

package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an event. The set is closed: components react to signals,
// never to raw error codes.
type Type string

const (
	// System events.
	TypeSystemStartup  Type = "system_startup"
	TypeSystemShutdown Type = "system_shutdown"
	TypeSystemError    Type = "system_error"
	TypeSystemRecovery Type = "system_recovery"

	// Audio events.
	TypeAudioError           Type = "audio_error"
	TypeAudioQualityDegraded Type = "audio_quality_degraded"

	// Network events.
	TypeNetworkJoined      Type = "network_joined"
	TypeNetworkLost        Type = "network_lost"
	TypeEndpointConnected  Type = "endpoint_connected"
	TypeConnectionLost     Type = "connection_lost"
	TypeLinkQualityChanged Type = "link_quality_changed"

	// Health events.
	TypeMemoryLow       Type = "memory_low"
	TypeMemoryCritical  Type = "memory_critical"
	TypeHealthChanged   Type = "health_changed"
	TypeDegradationMode Type = "degradation_mode_changed"

	// State machine events.
	TypeStateChanged Type = "state_changed"
)

// Priority orders the importance of an event. It filters which subscribers
// receive an event; it does not reorder the queue.
type Priority int

const (
	// PriorityCritical is for errors and emergencies.
	PriorityCritical Priority = iota
	// PriorityHigh is for state changes and connection transitions.
	PriorityHigh
	// PriorityNormal is for regular data and status updates.
	PriorityNormal
	// PriorityLow is for statistics and diagnostics.
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Event is an immutable signal published on the bus. Payload carries no
// error codes, only severity and source context.
type Event struct {
	ID        uuid.UUID
	Type      Type
	Priority  Priority
	Timestamp time.Time
	Payload   any
	Source    string
}

// Handler receives events. Handler identity is static for the lifetime of
// the process; subscriptions are never removed at runtime.
type Handler interface {
	HandleEvent(Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(e Event) error {
	return f(e)
}
