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

// Package system implements the top-level lifecycle state machine: seven
// states, a fixed adjacency table, polled entry/exit guards, per-state
// timeouts and incrementally accumulated statistics.
//
// The machine has no notion of time advancing on its own. Timeouts are
// detected by the scheduler comparing elapsed time against MaxDuration once
// per tick; condition checks are immediate polls and never wait.
package system

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// Transition rejection causes.
var (
	// ErrIllegalTransition means the target is not adjacent to the current
	// state for a non-manual reason.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrExitConditionsUnmet means the current state's exit guards failed.
	ErrExitConditionsUnmet = errors.New("exit conditions unmet")
	// ErrEntryConditionsUnmet means the target state's entry guards failed.
	ErrEntryConditionsUnmet = errors.New("entry conditions unmet")
)

// Callbacks receives transition notifications. All three are invoked
// synchronously from SetState, in exit/change/entry order.
type Callbacks interface {
	OnStateExit(old State, description string)
	OnStateChange(old, new State, reason Reason)
	OnStateEntry(new State, description string)
}

// Machine is the top-level lifecycle state machine. It is owned by the
// scheduler and mutated only from the single tick goroutine.
type Machine struct {
	current        State
	previous       State
	stateEntryTime time.Time
	lastTransition time.Time

	configs [int(stateCount)]Config

	history   *historyRing
	stats     Stats
	callbacks Callbacks

	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithCallbacks registers the transition callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Machine) {
		m.callbacks = cb
	}
}

// NewMachine creates a machine in StateInitializing with the given state
// configurations. Configs are fixed for the lifetime of the machine;
// dynamic reconfiguration is not supported.
func NewMachine(configs []Config, opts ...Option) *Machine {
	m := &Machine{
		current:  StateInitializing,
		previous: StateInitializing,
		history:  newHistoryRing(constants.TransitionHistorySize),
		logger:   logger.For(logger.ComponentSystemFSM),
		now:      time.Now,
	}

	for _, cfg := range configs {
		if cfg.State.IsValid() {
			m.configs[int(cfg.State)] = cfg
		}
	}

	for _, opt := range opts {
		opt(m)
	}

	now := m.now()
	m.stateEntryTime = now
	m.lastTransition = now
	m.stats.CurrentState = StateInitializing
	m.stats.PreviousState = StateInitializing
	m.stats.LastTransitionTime = now

	metrics.SetCurrentState(int(StateInitializing))

	return m
}

// CurrentState returns the current lifecycle state.
func (m *Machine) CurrentState() State {
	return m.current
}

// PreviousState returns the state held before the last transition.
func (m *Machine) PreviousState() State {
	return m.previous
}

// StateDuration returns how long the current state has been held.
func (m *Machine) StateDuration() time.Duration {
	return m.now().Sub(m.stateEntryTime)
}

// TimeSinceLastTransition returns the time since any transition happened.
func (m *Machine) TimeSinceLastTransition() time.Duration {
	return m.now().Sub(m.lastTransition)
}

// StateConfig returns the configuration of state.
func (m *Machine) StateConfig(state State) Config {
	if !state.IsValid() {
		return Config{}
	}

	return m.configs[int(state)]
}

// HasTimedOut reports whether the current state has exceeded its maximum
// duration. States with MaxDuration 0 never time out. Detection is the
// scheduler's job: the machine only answers when polled.
func (m *Machine) HasTimedOut() bool {
	cfg := m.configs[int(m.current)]
	if cfg.MaxDuration == 0 {
		return false
	}

	return m.StateDuration() > cfg.MaxDuration
}

// SetState attempts a transition to target. Returning nil with no state
// change means target was already current. Non-manual reasons are validated
// against the adjacency table; exit guards of the current state and entry
// guards of the target are polled once, immediately. A failed guard fails
// the transition for this tick only.
func (m *Machine) SetState(target State, reason Reason, description string) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: invalid target state %d", ErrIllegalTransition, int(target))
	}

	if target == m.current {
		return nil
	}

	if !reason.bypassesValidation() {
		if m.configs[int(target)].ManualOnly {
			m.stats.recordRejection()
			m.logger.Warnf("Transition %s -> %s rejected: %s is manual-only", m.current, target, target)

			return fmt.Errorf("%w: %s is manual-only", ErrIllegalTransition, target)
		}

		if !isLegalTransition(m.current, target) {
			m.stats.recordRejection()
			m.logger.Warnf("Transition %s -> %s rejected (reason: %s)", m.current, target, reason)

			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, target)
		}

		if !m.checkConditions(m.configs[int(m.current)].ExitConditions, "exit", m.current) {
			m.stats.recordRejection()

			return fmt.Errorf("%w: cannot leave %s", ErrExitConditionsUnmet, m.current)
		}

		if !m.checkConditions(m.configs[int(target)].EntryConditions, "entry", target) {
			m.stats.recordRejection()

			return fmt.Errorf("%w: cannot enter %s", ErrEntryConditionsUnmet, target)
		}
	}

	m.transition(target, reason, description)

	return nil
}

// ForceState bypasses all validation and guard checks. Reserved for
// emergency and manual paths; history and statistics are still recorded.
func (m *Machine) ForceState(target State, reason Reason, description string) {
	if !target.IsValid() || target == m.current {
		return
	}

	m.logger.Warnf("Forced transition %s -> %s (reason: %s)", m.current, target, reason)
	m.transition(target, reason, description)
}

// transition performs the bookkeeping common to SetState and ForceState.
func (m *Machine) transition(target State, reason Reason, description string) {
	old := m.current
	now := m.now()
	timeInOld := now.Sub(m.stateEntryTime)

	m.previous = old
	m.current = target
	m.stateEntryTime = now
	m.lastTransition = now

	t := Transition{
		From:        old,
		To:          target,
		Reason:      reason,
		Timestamp:   now,
		Description: description,
		Successful:  true,
	}

	m.history.push(t)
	m.stats.recordTransition(t, timeInOld)

	metrics.RecordStateTransition(old.String(), target.String(), reason.String())
	metrics.SetCurrentState(int(target))

	if m.callbacks != nil {
		m.callbacks.OnStateExit(old, description)
		m.callbacks.OnStateChange(old, target, reason)
		m.callbacks.OnStateEntry(target, description)
	}

	m.logger.Infof("State transition: %s -> %s (reason: %s, desc: %s)", old, target, reason, description)
}

// checkConditions polls every condition once. No condition check may sleep;
// an unmet condition simply fails the transition for this tick.
func (m *Machine) checkConditions(conditions []Condition, kind string, state State) bool {
	for _, c := range conditions {
		if c.Check == nil {
			continue
		}

		if !c.Check() {
			m.logger.Debugf("%s condition failed for %s: %s", kind, state, c.Description)

			return false
		}
	}

	return true
}

// CanEnter polls the entry guards of state without transitioning.
func (m *Machine) CanEnter(state State) bool {
	if !state.IsValid() {
		return false
	}

	return m.checkConditions(m.configs[int(state)].EntryConditions, "entry", state)
}

// CanExit polls the exit guards of the current state without transitioning.
func (m *Machine) CanExit() bool {
	return m.checkConditions(m.configs[int(m.current)].ExitConditions, "exit", m.current)
}

// History returns the retained transitions, oldest first.
func (m *Machine) History() []Transition {
	return m.history.snapshot()
}

// LastTransition returns the most recent transition; ok is false before the
// first one.
func (m *Machine) LastTransition() (Transition, bool) {
	return m.history.last()
}

// Statistics returns a copy of the accumulated counters.
func (m *Machine) Statistics() Stats {
	return m.stats
}

// IsInState reports whether the machine currently holds state.
func (m *Machine) IsInState(state State) bool {
	return m.current == state
}
