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

package connection

import "github.com/looplab/fsm"

// Connection states.
const (
	StateIdle        = "idle"
	StateConnecting  = "connecting"
	StateEstablished = "established"
	StateError       = "error"
	StateClosing     = "closing"
)

// Connection events.
const (
	EventConnect       = "connect"
	EventConnected     = "connected"
	EventConnectFailed = "connect_failed"
	EventLost          = "lost"
	EventClose         = "close"
	EventClosed        = "closed"
)

// Transitions returns the event table for the connection machine. Every
// attempt is a single transition; retry pacing lives in the backoff manager,
// never in the machine itself.
func Transitions() []fsm.EventDesc {
	return []fsm.EventDesc{
		{Name: EventConnect, Src: []string{StateIdle, StateError}, Dst: StateConnecting},
		{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateEstablished},
		{Name: EventConnectFailed, Src: []string{StateConnecting}, Dst: StateError},
		{Name: EventLost, Src: []string{StateEstablished}, Dst: StateError},
		{Name: EventClose, Src: []string{StateIdle, StateConnecting, StateEstablished, StateError}, Dst: StateClosing},
		{Name: EventClosed, Src: []string{StateClosing}, Dst: StateIdle},
	}
}
