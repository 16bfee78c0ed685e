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

// Package recovery maps failure events to recovery strategies and executes
// them one bounded step at a time. Each strategy sits behind its own circuit
// breaker so a recovery action that keeps failing stops being attempted.
package recovery

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/circuitbreaker"
	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// Strategy is a recovery action the dispatcher can run.
type Strategy int

const (
	// StrategyNone means no action is warranted.
	StrategyNone Strategy = iota
	// StrategyReconnectNetwork restarts the network join.
	StrategyReconnectNetwork
	// StrategyReconnectEndpoint re-establishes the endpoint connection.
	StrategyReconnectEndpoint
	// StrategyReinitAudio reinitializes the audio capture pipeline.
	StrategyReinitAudio
	// StrategyDegrade steps the degradation mode down instead of retrying.
	StrategyDegrade
	// StrategyRebootDevice is the last resort; the action is delegated
	// entirely to the platform hook.
	StrategyRebootDevice
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyReconnectNetwork:
		return "reconnect_network"
	case StrategyReconnectEndpoint:
		return "reconnect_endpoint"
	case StrategyReinitAudio:
		return "reinit_audio"
	case StrategyDegrade:
		return "degrade"
	case StrategyRebootDevice:
		return "reboot_device"
	default:
		return "unknown"
	}
}

// StrategyFor maps a failing component and reason to a strategy. The lookup
// is pure: same inputs, same strategy. Memory pressure always degrades
// first, whatever component reported it.
func StrategyFor(component, reason string) Strategy {
	if strings.Contains(reason, "memory") || strings.Contains(component, "memory") {
		return StrategyDegrade
	}

	switch component {
	case "network", "wifi", "link":
		return StrategyReconnectNetwork
	case "endpoint", "connection", "socket":
		return StrategyReconnectEndpoint
	case "audio", "capture":
		return StrategyReinitAudio
	case "system":
		return StrategyRebootDevice
	default:
		return StrategyNone
	}
}

// Actions are the concrete recovery operations, supplied by the scheduler.
// Every action is a single bounded step returning whether it succeeded.
type Actions interface {
	ReconnectNetwork() bool
	ReconnectEndpoint() bool
	ReinitAudio() bool
	Degrade() bool
	RebootDevice() bool
}

// Failure describes one pending recovery request.
type Failure struct {
	Component string
	Reason    string
	Strategy  Strategy
	Observed  time.Time
}

// Dispatcher queues at most one pending failure and executes at most one
// recovery step per tick.
type Dispatcher struct {
	actions Actions

	pending    *Failure
	breakers   map[Strategy]*circuitbreaker.CircuitBreaker
	attempts   uint32
	successes  uint32
	lastAction Strategy

	breakerFailures  uint32
	breakerSuccesses uint32
	breakerTimeout   time.Duration

	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithBreakerSettings overrides the per-strategy circuit breaker thresholds.
// Zero values keep the breaker defaults.
func WithBreakerSettings(failureThreshold, successThreshold uint32, recoveryTimeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.breakerFailures = failureThreshold
		d.breakerSuccesses = successThreshold
		d.breakerTimeout = recoveryTimeout
	}
}

// NewDispatcher creates a dispatcher with one circuit breaker per strategy.
func NewDispatcher(actions Actions, opts ...Option) *Dispatcher {
	log := logger.For(logger.ComponentRecovery)

	d := &Dispatcher{
		actions:  actions,
		breakers: make(map[Strategy]*circuitbreaker.CircuitBreaker),
		logger:   log,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	for _, s := range []Strategy{
		StrategyReconnectNetwork,
		StrategyReconnectEndpoint,
		StrategyReinitAudio,
		StrategyDegrade,
		StrategyRebootDevice,
	} {
		d.breakers[s] = circuitbreaker.New("recovery_"+s.String(),
			d.breakerFailures, d.breakerSuccesses, d.breakerTimeout,
			logger.For(logger.ComponentCircuitBreaker),
			circuitbreaker.WithClock(func() time.Time { return d.now() }))
	}

	return d
}

// HandleEvent implements eventbus.Handler. Failure events become the pending
// recovery request; a newer failure replaces an older unexecuted one.
func (d *Dispatcher) HandleEvent(event eventbus.Event) error {
	component, reason := describeFailure(event)

	strategy := StrategyFor(component, reason)
	if strategy == StrategyNone {
		return nil
	}

	if d.pending != nil {
		d.logger.Debugf("Replacing pending recovery %s with %s", d.pending.Strategy, strategy)
	}

	d.pending = &Failure{
		Component: component,
		Reason:    reason,
		Strategy:  strategy,
		Observed:  d.now(),
	}

	return nil
}

// describeFailure derives (component, reason) from the event type and payload.
func describeFailure(event eventbus.Event) (string, string) {
	reason, _ := event.Payload.(string)

	switch event.Type {
	case eventbus.TypeNetworkLost:
		return "network", reason
	case eventbus.TypeConnectionLost:
		return "endpoint", reason
	case eventbus.TypeAudioError:
		return "audio", reason
	case eventbus.TypeMemoryLow, eventbus.TypeMemoryCritical:
		return "memory", "memory pressure"
	case eventbus.TypeSystemError:
		return event.Source, reason
	default:
		return event.Source, reason
	}
}

// Step executes at most one recovery action. Returns true when an action ran
// and succeeded. A breaker that is open swallows the pending request for
// this tick; the request stays pending until its breaker admits it.
func (d *Dispatcher) Step() bool {
	if d.pending == nil {
		return false
	}

	strategy := d.pending.Strategy

	breaker := d.breakers[strategy]
	if breaker != nil && !breaker.Allow() {
		d.logger.Debugf("Recovery %s suppressed, breaker open", strategy)

		return false
	}

	d.pending = nil
	d.attempts++
	d.lastAction = strategy

	ok := d.execute(strategy)

	if breaker != nil {
		if ok {
			breaker.RecordSuccess()
		} else {
			breaker.RecordFailure()
		}
	}

	metrics.RecordRecoveryAttempt(strategy.String(), ok)

	if ok {
		d.successes++
		d.logger.Infof("Recovery %s succeeded", strategy)
	} else {
		d.logger.Warnf("Recovery %s failed", strategy)
	}

	return ok
}

func (d *Dispatcher) execute(strategy Strategy) bool {
	switch strategy {
	case StrategyReconnectNetwork:
		return d.actions.ReconnectNetwork()
	case StrategyReconnectEndpoint:
		return d.actions.ReconnectEndpoint()
	case StrategyReinitAudio:
		return d.actions.ReinitAudio()
	case StrategyDegrade:
		return d.actions.Degrade()
	case StrategyRebootDevice:
		return d.actions.RebootDevice()
	default:
		return false
	}
}

// HasPending reports whether a recovery request is waiting.
func (d *Dispatcher) HasPending() bool {
	return d.pending != nil
}

// Attempts returns the total number of executed recovery actions.
func (d *Dispatcher) Attempts() uint32 {
	return d.attempts
}

// Successes returns the number of executed actions that succeeded.
func (d *Dispatcher) Successes() uint32 {
	return d.successes
}

// LastAction returns the most recently executed strategy.
func (d *Dispatcher) LastAction() Strategy {
	return d.lastAction
}

// SuccessRate returns the fraction of executed actions that succeeded.
func (d *Dispatcher) SuccessRate() float64 {
	if d.attempts == 0 {
		return 1.0
	}

	return float64(d.successes) / float64(d.attempts)
}

// BreakerCounts returns per-strategy breaker snapshots for diagnostics.
func (d *Dispatcher) BreakerCounts() map[string]circuitbreaker.Counts {
	out := make(map[string]circuitbreaker.Counts, len(d.breakers))
	for s, b := range d.breakers {
		out[s.String()] = b.Counts()
	}

	return out
}
