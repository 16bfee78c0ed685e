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
	// DegradeThreshold: health below this enters reduced quality.
	DegradeThreshold = 80

	// SafeThreshold: health below this enters safe mode.
	SafeThreshold = 60

	// DegradationHysteresis widens the degrade/restore boundary so the mode
	// does not oscillate when the health score hovers at a threshold.
	DegradationHysteresis = 5

	// RestoreThreshold: health above this restores normal operation. Sits
	// the hysteresis margin above DegradeThreshold.
	RestoreThreshold = DegradeThreshold + DegradationHysteresis

	// DegradationDwellTime is the minimum time between mode changes.
	DegradationDwellTime = 5 * time.Second

	// DegradationFailureStreak forces recovery mode after this many
	// consecutive failures regardless of the health score.
	DegradationFailureStreak = 3
)

const (
	// SnapshotMinInterval is the minimum time between crash-survival
	// snapshot writes, to limit wear on non-volatile storage.
	SnapshotMinInterval = 60 * time.Second
)
