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

package control

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cradlecast/cradlecast-core/pkg/audio"
	"github.com/cradlecast/cradlecast-core/pkg/config"
	"github.com/cradlecast/cradlecast-core/pkg/degradation"
	"github.com/cradlecast/cradlecast-core/pkg/fsm/system"
	"github.com/cradlecast/cradlecast-core/pkg/recovery"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
	"github.com/cradlecast/cradlecast-core/pkg/watchdog"
)

var _ = Describe("Loop", func() {
	var (
		loop    *Loop
		link    *transport.MockLink
		socket  *transport.MockSocket
		source  *audio.MockSource
		feeder  *watchdog.MockFeeder
		ctx     context.Context
		now     time.Time
		memUsed float64
	)

	clock := func() time.Time { return now }

	// tick runs one RunOnce and advances the clock enough to clear any
	// first-step backoff delay.
	tick := func() {
		Expect(loop.RunOnce(ctx)).To(Succeed())
		now = now.Add(2 * time.Second)
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		memUsed = 40.0

		link = transport.NewMockLink()
		link.Up = true
		link.LinkQuality = transport.LinkQuality{Strength: 100}

		socket = transport.NewMockSocket()
		socket.ConnectResult = true

		source = audio.NewMockSource()
		feeder = &watchdog.MockFeeder{}

		loop = NewLoop(config.DefaultConfig(), Deps{
			Link:        link,
			Socket:      socket,
			Audio:       source,
			Feeder:      feeder,
			Clock:       clock,
			MemoryProbe: func() (float64, error) { return memUsed, nil },
		})
	})

	AfterEach(func() {
		loop.Stop()
	})

	Describe("Watchdog contract", func() {
		It("should feed the watchdog on every tick", func() {
			for i := 0; i < 5; i++ {
				tick()
			}

			Expect(feeder.Feeds).To(Equal(5))
		})

		It("should count ticks", func() {
			tick()
			tick()

			Expect(loop.Tick()).To(Equal(uint64(2)))
		})
	})

	Describe("Happy path to streaming", func() {
		It("should walk initializing, joining, reaching, streaming", func() {
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateInitializing))

			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateJoiningNetwork))

			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateReachingEndpoint))

			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateStreaming))
			Expect(loop.Connection().IsEstablished()).To(BeTrue())
		})

		It("should move audio chunks while streaming", func() {
			for i := 0; i < 4; i++ {
				tick()
			}

			Expect(socket.BytesSent).To(BeNumerically(">", 0))
			Expect(source.Reads).To(BeNumerically(">", 0))
		})

		It("should wait in joining while the link is down", func() {
			link.Up = false

			for i := 0; i < 3; i++ {
				tick()
			}

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateJoiningNetwork))
			Expect(socket.ConnectAttempts).To(BeZero())
		})
	})

	Describe("Connection loss", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				tick()
			}
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateStreaming))
		})

		It("should fall to disconnected when the socket dies", func() {
			socket.Connected = false
			socket.ConnectResult = false

			tick()

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateDisconnected))
			Expect(loop.Connection().IsEstablished()).To(BeFalse())
		})

		It("should reconnect once the endpoint is reachable again", func() {
			socket.Connected = false
			socket.ConnectResult = false

			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateDisconnected))

			socket.ConnectResult = true

			// Disconnected -> reaching -> streaming, plus backoff clearance.
			for i := 0; i < 5; i++ {
				tick()
			}

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateStreaming))
		})

		It("should fall back to joining when the network drops entirely", func() {
			link.Up = false
			socket.Connected = false

			tick()

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateJoiningNetwork))
		})
	})

	Describe("State timeouts", func() {
		It("should escalate an overdue state to error", func() {
			// Block auto recovery so the error state is observable.
			memUsed = 96.0

			link.Up = false
			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateJoiningNetwork))

			now = now.Add(61 * time.Second)
			tick()

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateError))

			last, ok := loop.Machine().LastTransition()
			Expect(ok).To(BeTrue())
			Expect(last.Reason).To(Equal(system.ReasonTimeout))
		})

		It("should recover from error once health allows it", func() {
			memUsed = 96.0
			link.Up = false

			tick()
			now = now.Add(61 * time.Second)
			tick()
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateError))

			memUsed = 40.0
			link.Up = true

			// One tick to observe the recovered health, one to act on it.
			tick()
			tick()

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateJoiningNetwork))
		})

		It("should never time out while streaming", func() {
			for i := 0; i < 3; i++ {
				tick()
			}
			Expect(loop.Machine().CurrentState()).To(Equal(system.StateStreaming))

			now = now.Add(24 * time.Hour)
			tick()

			Expect(loop.Machine().CurrentState()).To(Equal(system.StateStreaming))
		})
	})

	Describe("Degradation under audio failures", func() {
		It("should stop streaming audio in safe mode", func() {
			for i := 0; i < 3; i++ {
				tick()
			}

			loop.Degradation().ForceDegrade()
			loop.Degradation().ForceDegrade()
			Expect(loop.Degradation().Mode()).To(Equal(degradation.ModeSafe))

			sent := socket.BytesSent
			tick()

			Expect(socket.BytesSent).To(Equal(sent))
		})

		It("should dispatch audio recovery after read failures", func() {
			for i := 0; i < 3; i++ {
				tick()
			}

			source.FailReads = true

			// Failure events published in one tick are acted on the next.
			for i := 0; i < 3; i++ {
				tick()
			}

			Expect(loop.Dispatcher().Attempts()).To(BeNumerically(">", 0))
			Expect(loop.Dispatcher().LastAction()).To(Equal(recovery.StrategyReinitAudio))
		})
	})

	Describe("Snapshots", func() {
		It("should reflect the current tick and state", func() {
			for i := 0; i < 3; i++ {
				tick()
			}

			s, ok := loop.Snapshot()
			Expect(ok).To(BeTrue())
			Expect(s.SystemState).To(Equal("streaming"))
			Expect(s.Tick).To(Equal(uint64(3)))
			Expect(s.HealthScore).To(BeNumerically(">", 80))
		})
	})
})
