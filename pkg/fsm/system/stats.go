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

// Stats accumulates transition counters incrementally. Nothing here is ever
// recomputed from the history ring; the ring may have wrapped long ago.
type Stats struct {
	TotalTransitions      uint32
	SuccessfulTransitions uint32
	FailedTransitions     uint32
	TimeoutTransitions    uint32
	ErrorTransitions      uint32

	// Fixed arrays indexed by State, sized for the closed state set.
	StateEntryCounts [int(stateCount)]uint32
	StateDurations   [int(stateCount)]time.Duration

	CurrentState       State
	PreviousState      State
	LastTransitionTime time.Time
}

// recordTransition folds one completed transition into the counters.
// timeInFrom is how long the machine held the from-state.
func (s *Stats) recordTransition(t Transition, timeInFrom time.Duration) {
	s.TotalTransitions++

	if t.Successful {
		s.SuccessfulTransitions++
	} else {
		s.FailedTransitions++
	}

	switch t.Reason {
	case ReasonTimeout:
		s.TimeoutTransitions++
	case ReasonErrorCondition:
		s.ErrorTransitions++
	}

	s.StateEntryCounts[int(t.To)]++
	s.StateDurations[int(t.From)] += timeInFrom

	s.PreviousState = t.From
	s.CurrentState = t.To
	s.LastTransitionTime = t.Timestamp
}

// recordRejection counts a rejected transition attempt.
func (s *Stats) recordRejection() {
	s.TotalTransitions++
	s.FailedTransitions++
}

// EntryCount returns how often state was entered.
func (s *Stats) EntryCount(state State) uint32 {
	if !state.IsValid() {
		return 0
	}

	return s.StateEntryCounts[int(state)]
}

// TimeInState returns the accumulated time spent in state across all visits.
func (s *Stats) TimeInState(state State) time.Duration {
	if !state.IsValid() {
		return 0
	}

	return s.StateDurations[int(state)]
}

// SuccessRate returns the fraction of attempted transitions that succeeded.
func (s Stats) SuccessRate() float64 {
	if s.TotalTransitions == 0 {
		return 1.0
	}

	return float64(s.SuccessfulTransitions) / float64(s.TotalTransitions)
}
