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

package constants

import "time"

// Per-state maximum durations. Zero means the state never times out and may
// only be left through a regular or manual transition.
const (
	InitializingMaxDuration     = 10 * time.Second
	JoiningNetworkMaxDuration   = 60 * time.Second
	ReachingEndpointMaxDuration = 120 * time.Second
	StreamingMaxDuration        = 0 * time.Second
	DisconnectedMaxDuration     = 30 * time.Second
	ErrorMaxDuration            = 60 * time.Second
	MaintenanceMaxDuration      = 0 * time.Second
)

const (
	// TransitionHistorySize is the capacity of the transition ring buffer
	// kept for diagnostics. Older transitions are overwritten.
	TransitionHistorySize = 50
)
