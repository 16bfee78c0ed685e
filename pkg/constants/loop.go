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

const (
	// DefaultTickInterval is the interval between scheduler ticks.
	// Every RunOnce call must complete well within this budget so the
	// hardware watchdog is fed on time:
	// - Too small: state handlers do not have enough time to complete one step
	// - Too large: delayed reaction to link and endpoint failures
	DefaultTickInterval = 100 * time.Millisecond

	// TickTimeFactor is the fraction of the tick budget handed to state
	// dispatch; the remainder is reserved for event-bus processing and
	// snapshot bookkeeping at the end of the tick.
	TickTimeFactor = 0.8

	// StarvationThreshold defines when to consider the control loop starved.
	// If no tick has completed for this duration, the starvation detector
	// logs warnings and records metrics. The hardware watchdog fires long
	// before the process would be killed by the supervisor.
	StarvationThreshold = 5 * time.Second
)
