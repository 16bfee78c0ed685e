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

// Package connection tracks the single endpoint connection as a small state
// machine. The machine only ever advances one step per tick: one connect
// attempt, one failure, one divergence correction. Retry pacing is delegated
// to the backoff manager.
package connection

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/backoff"
	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
)

// ErrConnectFailed is recorded with the backoff manager when a single connect
// attempt does not succeed.
var ErrConnectFailed = errors.New("endpoint connect attempt failed")

// Endpoint identifies the remote streaming endpoint.
type Endpoint struct {
	Host string
	Port int
}

// Instance is the connection state machine for one endpoint.
type Instance struct {
	endpoint Endpoint

	fsm     *fsm.FSM
	socket  transport.Socket
	link    transport.Link
	backoff *backoff.BackoffManager
	bus     *eventbus.Bus

	attempts  uint32
	successes uint32
	lastError error

	logger *zap.SugaredLogger
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithBackoffConfig overrides the retry pacing configuration.
func WithBackoffConfig(cfg backoff.Config) InstanceOption {
	return func(i *Instance) {
		i.backoff = backoff.NewBackoffManager(cfg)
	}
}

// NewInstance creates a connection machine in the idle state. bus may be nil
// in tests; published events are then skipped.
func NewInstance(endpoint Endpoint, socket transport.Socket, link transport.Link, bus *eventbus.Bus, opts ...InstanceOption) *Instance {
	log := logger.For(logger.ComponentConnectionFSM)

	i := &Instance{
		endpoint: endpoint,
		socket:   socket,
		link:     link,
		backoff:  backoff.NewBackoffManager(backoff.DefaultConfig("endpoint-connection", log)),
		bus:      bus,
		logger:   log,
	}

	for _, opt := range opts {
		opt(i)
	}

	i.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events(Transitions()),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				i.logger.Debugf("Connection %s:%d: %s -> %s (%s)",
					endpoint.Host, endpoint.Port, e.Src, e.Dst, e.Event)
			},
		},
	)

	return i
}

// Current returns the current connection state.
func (i *Instance) Current() string {
	return i.fsm.Current()
}

// IsEstablished reports whether the machine claims a live connection.
func (i *Instance) IsEstablished() bool {
	return i.fsm.Is(StateEstablished)
}

// LastError returns the error from the most recent failed attempt.
func (i *Instance) LastError() error {
	return i.lastError
}

// Attempts returns the total number of connect attempts made.
func (i *Instance) Attempts() uint32 {
	return i.attempts
}

// Successes returns the number of attempts that established a connection.
func (i *Instance) Successes() uint32 {
	return i.successes
}

// Backoff exposes the retry bookkeeping for snapshots and diagnostics.
func (i *Instance) Backoff() *backoff.BackoffManager {
	return i.backoff
}

// AttemptConnect performs at most one connect step. It returns true when a
// connection was established during this call. While the backoff gate is
// armed, or the link is down, or the attempt budget is exhausted, the call is
// a cheap no-op.
func (i *Instance) AttemptConnect(ctx context.Context, now time.Time) bool {
	if !i.fsm.Is(StateIdle) && !i.fsm.Is(StateError) {
		return false
	}

	if i.link != nil && !i.link.IsUp() {
		return false
	}

	if i.backoff.ShouldSkipOperation(now) {
		return false
	}

	if err := i.fsm.Event(ctx, EventConnect); err != nil {
		i.logger.Warnf("Connect event rejected in state %s: %v", i.fsm.Current(), err)

		return false
	}

	i.attempts++

	if i.socket.Connect(i.endpoint.Host, i.endpoint.Port) {
		if err := i.fsm.Event(ctx, EventConnected); err != nil {
			i.logger.Errorf("Connected event rejected: %v", err)

			return false
		}

		i.successes++
		i.lastError = nil
		i.backoff.Reset()
		i.publish(eventbus.TypeEndpointConnected, eventbus.PriorityHigh, i.endpoint)
		i.logger.Infof("Connected to %s:%d (attempt %d)", i.endpoint.Host, i.endpoint.Port, i.attempts)

		return true
	}

	if err := i.fsm.Event(ctx, EventConnectFailed); err != nil {
		i.logger.Errorf("Connect-failed event rejected: %v", err)

		return false
	}

	i.lastError = ErrConnectFailed
	i.backoff.SetError(backoff.NewTransientError(ErrConnectFailed), now)

	return false
}

// MarkLost records an externally detected connection loss, for example a send
// failure seen by the streaming path.
func (i *Instance) MarkLost(ctx context.Context, now time.Time) {
	if !i.fsm.Is(StateEstablished) {
		return
	}

	if err := i.fsm.Event(ctx, EventLost); err != nil {
		i.logger.Errorf("Lost event rejected: %v", err)

		return
	}

	i.backoff.SetError(backoff.NewTransientError(errors.New("connection lost")), now)
	i.publish(eventbus.TypeConnectionLost, eventbus.PriorityHigh, i.endpoint)
	i.logger.Warnf("Connection to %s:%d lost", i.endpoint.Host, i.endpoint.Port)
}

// Close tears the connection down. Safe to call from any state except an
// already-closing machine.
func (i *Instance) Close(ctx context.Context) error {
	if i.fsm.Is(StateClosing) {
		return nil
	}

	if err := i.fsm.Event(ctx, EventClose); err != nil {
		return err
	}

	err := i.socket.Close()

	if ferr := i.fsm.Event(ctx, EventClosed); ferr != nil {
		i.logger.Errorf("Closed event rejected: %v", ferr)
	}

	return err
}

// ResetBackoff clears retry state, allowing the next attempt immediately.
// Used after a recovery action has fixed the underlying fault.
func (i *Instance) ResetBackoff() {
	i.backoff.Reset()
}

func (i *Instance) publish(t eventbus.Type, prio eventbus.Priority, payload any) {
	if i.bus == nil {
		return
	}

	i.bus.Publish(t, payload, prio, "connection")
}
