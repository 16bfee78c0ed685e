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

package circuitbreaker

import (
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all requests.
	StateClosed State = iota
	// StateOpen rejects all requests until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows probe requests to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Counts is a snapshot of the breaker's counters for diagnostics and
// crash-survival snapshots.
type Counts struct {
	State           State     `json:"state"`
	Failures        uint32    `json:"failures"`
	Successes       uint32    `json:"successes"`
	LastStateChange time.Time `json:"last_state_change"`
}

// CircuitBreaker is a three-state failure gate for a repeatedly invoked
// operation. It carries no knowledge of why an operation failed; callers
// compose it around anything retryable.
//
// Closed:   all attempts allowed; failureThreshold consecutive failures
//           trip it open.
// Open:     all attempts rejected; after recoveryTimeout the next Allow
//           moves it to half-open and admits a probe.
// HalfOpen: probes allowed; successThreshold consecutive successes close
//           it, any failure reopens it and discards partial successes.
type CircuitBreaker struct {
	name string

	state           State
	failureCount    uint32
	successCount    uint32
	lastStateChange time.Time

	failureThreshold uint32
	successThreshold uint32
	recoveryTimeout  time.Duration

	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// New creates a circuit breaker with the given thresholds. Zero values fall
// back to the defaults in pkg/constants.
func New(name string, failureThreshold, successThreshold uint32, recoveryTimeout time.Duration, logger *zap.SugaredLogger, opts ...Option) *CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = constants.DefaultFailureThreshold
	}

	if successThreshold == 0 {
		successThreshold = constants.DefaultSuccessThreshold
	}

	if recoveryTimeout == 0 {
		recoveryTimeout = constants.DefaultRecoveryTimeout
	}

	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		logger:           logger,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	cb.lastStateChange = cb.now()
	metrics.SetBreakerState(name, int(cb.state))

	return cb
}

// Allow reports whether an attempt may proceed. While open, the first call
// after the recovery timeout flips the breaker to half-open and admits a
// single probe.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.recoveryTimeout {
			cb.setState(StateHalfOpen)
			return true
		}

		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

// RecordSuccess feeds a successful attempt into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.setState(StateClosed)
		}
	}
}

// RecordFailure feeds a failed attempt into the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)

			if cb.logger != nil {
				cb.logger.Warnf("%s: breaker open after %d failures", cb.name, cb.failureCount)
			}
		}

	case StateHalfOpen:
		// A failed probe reopens immediately; partial successes are discarded.
		cb.successCount = 0
		cb.setState(StateOpen)

		if cb.logger != nil {
			cb.logger.Warnf("%s: breaker open (probe failed)", cb.name)
		}
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return cb.state
}

// Counts returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Counts() Counts {
	return Counts{
		State:           cb.state,
		Failures:        cb.failureCount,
		Successes:       cb.successCount,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset returns the breaker to closed with cleared counters.
func (cb *CircuitBreaker) Reset() {
	cb.failureCount = 0
	cb.successCount = 0
	cb.setState(StateClosed)

	if cb.logger != nil {
		cb.logger.Infof("%s: breaker reset", cb.name)
	}
}

func (cb *CircuitBreaker) setState(state State) {
	if state == cb.state {
		return
	}

	cb.state = state
	cb.lastStateChange = cb.now()

	if state == StateClosed {
		cb.failureCount = 0
	}

	metrics.SetBreakerState(cb.name, int(state))

	if cb.logger != nil {
		cb.logger.Infof("%s: breaker %s", cb.name, state)
	}
}
