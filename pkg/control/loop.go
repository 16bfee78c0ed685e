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

// Package control implements the single-threaded scheduler that drives the
// device. Every component is advanced by bounded, non-blocking steps from
// RunOnce; no component ever sleeps or waits on another. The watchdog is fed
// at the start of every tick, before any other work, so only a wedged tick
// can starve it.
package control

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/audio"
	"github.com/cradlecast/cradlecast-core/pkg/backoff"
	"github.com/cradlecast/cradlecast-core/pkg/config"
	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/degradation"
	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
	"github.com/cradlecast/cradlecast-core/pkg/fsm/connection"
	"github.com/cradlecast/cradlecast-core/pkg/fsm/system"
	"github.com/cradlecast/cradlecast-core/pkg/health"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
	"github.com/cradlecast/cradlecast-core/pkg/recovery"
	"github.com/cradlecast/cradlecast-core/pkg/snapshot"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
	"github.com/cradlecast/cradlecast-core/pkg/watchdog"
)

// Deps are the platform collaborators injected into the loop. Everything the
// loop talks to comes in through here; there are no package-level singletons.
type Deps struct {
	Link   transport.Link
	Socket transport.Socket
	Audio  audio.Source
	Feeder watchdog.Feeder

	// SnapshotStore persists crash-survival snapshots. Nil disables
	// persistence.
	SnapshotStore snapshot.Store

	// Reboot is the platform reboot hook, the last-resort recovery action.
	// Nil means the platform cannot be rebooted from here.
	Reboot func() bool

	// MemoryProbe overrides the health monitor's memory usage source.
	MemoryProbe health.MemoryUsedPercent

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// Loop is the scheduler. It owns every control plane component and advances
// them once per tick from a single goroutine.
type Loop struct {
	cfg config.Config

	bus         *eventbus.Bus
	machine     *system.Machine
	conn        *connection.Instance
	degradation *degradation.Controller
	dispatcher  *recovery.Dispatcher
	monitor     *health.Monitor
	snapshots   *snapshot.Manager
	persister   *snapshot.Persister
	starvation  *watchdog.StarvationChecker

	link   transport.Link
	socket transport.Socket
	source audio.Source
	feeder watchdog.Feeder
	reboot func() bool

	tick     uint64
	audioBuf []byte

	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewLoop wires the full control plane from cfg and deps.
func NewLoop(cfg config.Config, deps Deps) *Loop {
	log := logger.For(logger.ComponentControlLoop)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	feeder := deps.Feeder
	if feeder == nil {
		feeder = watchdog.NopFeeder{}
	}

	bus := eventbus.New(eventbus.WithClock(now))

	var monitorOpts []health.Option
	if deps.MemoryProbe != nil {
		monitorOpts = append(monitorOpts, health.WithMemoryProbe(deps.MemoryProbe))
	}

	monitor := health.NewMonitor(deps.Link, bus, monitorOpts...)

	ctrl := degradation.NewController(bus,
		degradation.WithClock(now),
		degradation.WithThresholds(
			cfg.Degradation.DegradeThreshold,
			cfg.Degradation.SafeThreshold,
			cfg.Degradation.RestoreThreshold,
		),
		degradation.WithDwell(cfg.Degradation.DwellTime),
	)

	conn := connection.NewInstance(
		connection.Endpoint{Host: cfg.Endpoint.Host, Port: cfg.Endpoint.Port},
		deps.Socket, deps.Link, bus,
		connection.WithBackoffConfig(backoff.Config{
			Name:          "endpoint-connection",
			MinDelay:      cfg.Backoff.MinDelay,
			MaxDelay:      cfg.Backoff.MaxDelay,
			JitterPercent: cfg.Backoff.JitterPercent,
			MaxRetries:    cfg.Backoff.MaxRetries,
			Logger:        logger.For(logger.ComponentBackoff),
		}),
	)

	machine := system.NewMachine(
		system.DefaultStateConfigs(
			system.Collaborators{
				Link:     deps.Link,
				Socket:   deps.Socket,
				HealthOK: monitor.CanAutoRecover,
			},
			durationsFromConfig(cfg.StateDurations),
		),
		system.WithClock(now),
	)

	l := &Loop{
		cfg:         cfg,
		bus:         bus,
		machine:     machine,
		conn:        conn,
		degradation: ctrl,
		monitor:     monitor,
		snapshots:   snapshot.NewManager(),
		starvation:  watchdog.NewStarvationChecker(constants.StarvationThreshold),
		link:        deps.Link,
		socket:      deps.Socket,
		source:      deps.Audio,
		feeder:      feeder,
		reboot:      deps.Reboot,
		audioBuf:    make([]byte, 1024),
		logger:      log,
		now:         now,
	}

	l.dispatcher = recovery.NewDispatcher(l,
		recovery.WithClock(now),
		recovery.WithBreakerSettings(
			cfg.Breaker.FailureThreshold,
			cfg.Breaker.SuccessThreshold,
			cfg.Breaker.RecoveryTimeout,
		),
	)

	if deps.SnapshotStore != nil {
		l.persister = snapshot.NewPersister(deps.SnapshotStore, snapshot.WithClock(now))
	}

	for _, t := range []eventbus.Type{
		eventbus.TypeNetworkLost,
		eventbus.TypeConnectionLost,
		eventbus.TypeAudioError,
		eventbus.TypeMemoryLow,
		eventbus.TypeMemoryCritical,
		eventbus.TypeSystemError,
	} {
		bus.Subscribe(t, l.dispatcher, eventbus.PriorityCritical, "recovery")
	}

	metrics.InitErrorCounter(logger.ComponentControlLoop)

	return l
}

func durationsFromConfig(c config.StateDurationsConfig) system.Durations {
	d := system.DefaultDurations()

	if c.Initializing != 0 {
		d.Initializing = c.Initializing
	}

	if c.JoiningNetwork != 0 {
		d.JoiningNetwork = c.JoiningNetwork
	}

	if c.ReachingEndpoint != 0 {
		d.ReachingEndpoint = c.ReachingEndpoint
	}

	if c.Disconnected != 0 {
		d.Disconnected = c.Disconnected
	}

	if c.Error != 0 {
		d.Error = c.Error
	}

	return d
}

// Machine exposes the system state machine for inspection.
func (l *Loop) Machine() *system.Machine {
	return l.machine
}

// Connection exposes the connection machine for inspection.
func (l *Loop) Connection() *connection.Instance {
	return l.conn
}

// Bus exposes the event bus for additional subscriptions.
func (l *Loop) Bus() *eventbus.Bus {
	return l.bus
}

// Degradation exposes the degradation controller for inspection.
func (l *Loop) Degradation() *degradation.Controller {
	return l.degradation
}

// Health exposes the health monitor for inspection.
func (l *Loop) Health() *health.Monitor {
	return l.monitor
}

// Dispatcher exposes the recovery dispatcher for inspection.
func (l *Loop) Dispatcher() *recovery.Dispatcher {
	return l.dispatcher
}

// Tick returns the number of completed ticks.
func (l *Loop) Tick() uint64 {
	return l.tick
}

// Snapshot returns a copy of the latest state snapshot.
func (l *Loop) Snapshot() (snapshot.Snapshot, bool) {
	return l.snapshots.Latest()
}

// Execute runs the loop until the context is cancelled. One RunOnce per tick
// interval; a tick that overruns its interval is logged, a tick that doubles
// it is an error.
func (l *Loop) Execute(ctx context.Context) error {
	l.bus.Publish(eventbus.TypeSystemStartup, nil, eventbus.PriorityHigh, "control")

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()

			return nil
		case <-ticker.C:
			start := time.Now()

			err := l.RunOnce(ctx)

			cycleTime := time.Since(start)
			if cycleTime > l.cfg.TickInterval {
				l.logger.Warnf("Tick %d overran its interval: %v", l.tick, cycleTime)

				if cycleTime > 2*l.cfg.TickInterval {
					l.logger.Errorf("Tick %d took more than twice its interval: %v", l.tick, cycleTime)
				}
			}

			metrics.ObserveTickTime(logger.ComponentControlLoop, cycleTime)

			if err != nil {
				if errors.Is(err, context.Canceled) {
					l.shutdown()

					return nil
				}

				metrics.IncErrorCountAndLog(logger.ComponentControlLoop, err, l.logger)

				return err
			}
		}
	}
}

// shutdown persists a final snapshot and stops the background checker.
func (l *Loop) shutdown() {
	l.bus.PublishImmediate(eventbus.TypeSystemShutdown, nil, eventbus.PriorityCritical, "control")

	if l.persister != nil {
		if s, ok := l.snapshots.Latest(); ok {
			if err := l.persister.Persist(s); err != nil {
				l.logger.Warnf("Final snapshot persist failed: %v", err)
			}
		}
	}

	l.starvation.Stop()
	l.logger.Info("Control loop stopped")
}

// Stop releases the loop's background resources without running Execute's
// shutdown path. For use when RunOnce is driven manually.
func (l *Loop) Stop() {
	l.starvation.Stop()
}

// RunOnce performs exactly one tick. Order matters:
//
//  1. feed the watchdog
//  2. mark the tick for starvation detection
//  3. reconcile claimed vs observed connection state
//  4. check the state timeout
//  5. advance the current state by one bounded step
//  6. recompute health, fold it into the degradation mode
//  7. run at most one recovery action
//  8. drain the event bus within the remaining budget
//  9. snapshot
func (l *Loop) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	l.feeder.Feed()

	l.tick++
	l.starvation.MarkTick()

	now := l.now()
	tickStart := time.Now()

	l.conn.Reconcile(ctx, now)

	l.checkStateTimeout()

	l.dispatch(ctx, now)

	score := l.monitor.Collect()
	l.degradation.Update(score)

	if l.monitor.CanAutoRecover() {
		l.dispatcher.Step()
	}

	dispatchBudget := time.Duration(float64(l.cfg.TickInterval) * constants.TickTimeFactor)
	remaining := dispatchBudget - time.Since(tickStart)
	if remaining < constants.DefaultEventProcessBudget {
		remaining = constants.DefaultEventProcessBudget
	}

	l.bus.Process(remaining)

	l.updateSnapshot(now)

	return nil
}

// checkStateTimeout escalates a state that exceeded its maximum duration.
// An expired Error state retries the network join; any other expired state
// drops to Error.
func (l *Loop) checkStateTimeout() {
	if !l.machine.HasTimedOut() {
		return
	}

	current := l.machine.CurrentState()

	if current == system.StateError {
		if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonTimeout, "error state expired, retrying network join"); err != nil {
			l.logger.Warnf("Error-state timeout transition rejected: %v", err)
		}

		return
	}

	if err := l.machine.SetState(system.StateError, system.ReasonTimeout,
		current.String()+" exceeded its maximum duration"); err != nil {
		l.logger.Warnf("Timeout transition from %s rejected: %v", current, err)
	}
}

// dispatch advances the current state by one bounded unit of work.
func (l *Loop) dispatch(ctx context.Context, now time.Time) {
	switch l.machine.CurrentState() {
	case system.StateInitializing:
		l.stepInitializing()
	case system.StateJoiningNetwork:
		l.stepJoiningNetwork()
	case system.StateReachingEndpoint:
		l.stepReachingEndpoint(ctx, now)
	case system.StateStreaming:
		l.stepStreaming(ctx, now)
	case system.StateDisconnected:
		l.stepDisconnected()
	case system.StateError:
		l.stepError()
	case system.StateMaintenance:
		// Manual-only state: nothing is advanced automatically.
	}
}

func (l *Loop) stepInitializing() {
	// Construction already initialized every component; move on.
	if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonNormal, "initialization complete"); err != nil {
		l.logger.Debugf("Leaving initializing rejected: %v", err)
	}
}

func (l *Loop) stepJoiningNetwork() {
	if l.link == nil || !l.link.IsUp() {
		return
	}

	l.bus.Publish(eventbus.TypeNetworkJoined, nil, eventbus.PriorityHigh, "control")

	if err := l.machine.SetState(system.StateReachingEndpoint, system.ReasonNormal, "network joined"); err != nil {
		l.logger.Debugf("Leaving joining_network rejected: %v", err)
	}
}

func (l *Loop) stepReachingEndpoint(ctx context.Context, now time.Time) {
	if l.link != nil && !l.link.IsUp() {
		l.bus.Publish(eventbus.TypeNetworkLost, nil, eventbus.PriorityHigh, "control")

		if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonErrorCondition, "network lost while reaching endpoint"); err != nil {
			l.logger.Debugf("Fallback to joining_network rejected: %v", err)
		}

		return
	}

	if l.conn.IsEstablished() || l.conn.AttemptConnect(ctx, now) {
		if err := l.machine.SetState(system.StateStreaming, system.ReasonNormal, "endpoint connected"); err != nil {
			l.logger.Debugf("Entering streaming rejected: %v", err)
		}
	}
}

func (l *Loop) stepStreaming(ctx context.Context, now time.Time) {
	if l.link != nil && !l.link.IsUp() {
		l.conn.MarkLost(ctx, now)
		l.bus.Publish(eventbus.TypeNetworkLost, nil, eventbus.PriorityHigh, "control")

		if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonErrorCondition, "network lost while streaming"); err != nil {
			l.logger.Debugf("Fallback to joining_network rejected: %v", err)
		}

		return
	}

	if !l.conn.IsEstablished() {
		if err := l.machine.SetState(system.StateDisconnected, system.ReasonErrorCondition, "endpoint connection lost"); err != nil {
			l.logger.Debugf("Entering disconnected rejected: %v", err)
		}

		return
	}

	if !l.degradation.IsFeatureEnabled(degradation.FeatureAudioStreaming) {
		return
	}

	l.streamChunk(ctx, now)
}

// streamChunk moves one chunk of audio from the source to the socket.
func (l *Loop) streamChunk(ctx context.Context, now time.Time) {
	if l.source == nil {
		return
	}

	n, err := l.source.ReadSamples(l.audioBuf)
	if err != nil {
		l.monitor.RecordAudioError()
		l.degradation.RecordFailure()
		l.bus.Publish(eventbus.TypeAudioError, err.Error(), eventbus.PriorityHigh, "control")

		return
	}

	if n == 0 {
		return
	}

	if _, err := l.socket.Send(l.audioBuf[:n]); err != nil {
		l.degradation.RecordFailure()
		l.conn.MarkLost(ctx, now)

		return
	}

	l.monitor.RecordAudioOK()
	l.degradation.RecordSuccess()
}

func (l *Loop) stepDisconnected() {
	if l.link == nil || !l.link.IsUp() {
		if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonErrorCondition, "network down while disconnected"); err != nil {
			l.logger.Debugf("Fallback to joining_network rejected: %v", err)
		}

		return
	}

	if err := l.machine.SetState(system.StateReachingEndpoint, system.ReasonRecovery, "retrying endpoint"); err != nil {
		l.logger.Debugf("Retry from disconnected rejected: %v", err)
	}
}

func (l *Loop) stepError() {
	if !l.monitor.CanAutoRecover() {
		return
	}

	if err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonRecovery, "auto recovery from error state"); err != nil {
		l.logger.Debugf("Recovery from error rejected: %v", err)
	}
}

// updateSnapshot records the tick's observable state and rate-limits its
// persistence.
func (l *Loop) updateSnapshot(now time.Time) {
	s := snapshot.Snapshot{
		SystemState:         l.machine.CurrentState().String(),
		PreviousState:       l.machine.PreviousState().String(),
		ConnectionState:     l.conn.Current(),
		DegradationMode:     l.degradation.Mode().String(),
		HealthScore:         l.monitor.Score(),
		Tick:                l.tick,
		ConsecutiveFailures: l.conn.Backoff().Policy().ConsecutiveFailures(),
		ConnectAttempts:     l.conn.Attempts(),
		BreakerCounts:       l.dispatcher.BreakerCounts(),
		Timestamp:           now,
	}

	if err := l.snapshots.Update(s); err != nil {
		l.logger.Warnf("Snapshot update failed: %v", err)

		return
	}

	if l.persister != nil {
		l.persister.MaybePersist(s)
	}
}

// Recovery actions. The dispatcher calls exactly one of these per tick.

// ReconnectNetwork implements recovery.Actions.
func (l *Loop) ReconnectNetwork() bool {
	err := l.machine.SetState(system.StateJoiningNetwork, system.ReasonRecovery, "recovery: rejoin network")

	return err == nil
}

// ReconnectEndpoint implements recovery.Actions.
func (l *Loop) ReconnectEndpoint() bool {
	l.conn.ResetBackoff()

	if l.machine.IsInState(system.StateReachingEndpoint) {
		return true
	}

	err := l.machine.SetState(system.StateReachingEndpoint, system.ReasonRecovery, "recovery: reconnect endpoint")

	return err == nil
}

// ReinitAudio implements recovery.Actions. The capture pipeline is owned by
// the platform; clearing the error bookkeeping is the control plane's part.
func (l *Loop) ReinitAudio() bool {
	l.monitor.ResetAudioErrors()
	l.degradation.RecordSuccess()

	return true
}

// Degrade implements recovery.Actions.
func (l *Loop) Degrade() bool {
	return l.degradation.ForceDegrade()
}

// RebootDevice implements recovery.Actions.
func (l *Loop) RebootDevice() bool {
	if l.reboot == nil {
		l.logger.Error("Reboot requested but no platform hook is wired")

		return false
	}

	l.logger.Warn("Rebooting device as last-resort recovery")

	return l.reboot()
}
