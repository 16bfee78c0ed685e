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

package recovery

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
)

// mockActions records which recovery actions ran and returns scripted results.
type mockActions struct {
	networkCalls  int
	endpointCalls int
	audioCalls    int
	degradeCalls  int
	rebootCalls   int

	result bool
}

func (m *mockActions) ReconnectNetwork() bool  { m.networkCalls++; return m.result }
func (m *mockActions) ReconnectEndpoint() bool { m.endpointCalls++; return m.result }
func (m *mockActions) ReinitAudio() bool       { m.audioCalls++; return m.result }
func (m *mockActions) Degrade() bool           { m.degradeCalls++; return m.result }
func (m *mockActions) RebootDevice() bool      { m.rebootCalls++; return m.result }

var _ = Describe("StrategyFor", func() {
	It("should map components to their recovery strategies", func() {
		Expect(StrategyFor("network", "join failed")).To(Equal(StrategyReconnectNetwork))
		Expect(StrategyFor("endpoint", "send failed")).To(Equal(StrategyReconnectEndpoint))
		Expect(StrategyFor("audio", "read failed")).To(Equal(StrategyReinitAudio))
		Expect(StrategyFor("system", "fatal")).To(Equal(StrategyRebootDevice))
	})

	It("should always degrade on memory pressure, whatever the component", func() {
		Expect(StrategyFor("audio", "out of memory")).To(Equal(StrategyDegrade))
		Expect(StrategyFor("memory", "")).To(Equal(StrategyDegrade))
		Expect(StrategyFor("network", "memory exhausted")).To(Equal(StrategyDegrade))
	})

	It("should be deterministic", func() {
		for i := 0; i < 10; i++ {
			Expect(StrategyFor("endpoint", "lost")).To(Equal(StrategyReconnectEndpoint))
		}
	})

	It("should return none for unknown components", func() {
		Expect(StrategyFor("frobnicator", "confused")).To(Equal(StrategyNone))
	})
})

var _ = Describe("Dispatcher", func() {
	var (
		actions *mockActions
		d       *Dispatcher
		now     time.Time
	)

	clock := func() time.Time { return now }

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		actions = &mockActions{result: true}
		d = NewDispatcher(actions, WithClock(clock))
	})

	Describe("HandleEvent", func() {
		It("should queue a pending recovery for a failure event", func() {
			Expect(d.HandleEvent(eventbus.Event{Type: eventbus.TypeConnectionLost})).To(Succeed())
			Expect(d.HasPending()).To(BeTrue())
		})

		It("should ignore events that map to no strategy", func() {
			Expect(d.HandleEvent(eventbus.Event{Type: eventbus.TypeStateChanged})).To(Succeed())
			Expect(d.HasPending()).To(BeFalse())
		})

		It("should replace an older pending request with a newer one", func() {
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeConnectionLost})
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeAudioError})

			d.Step()

			Expect(actions.audioCalls).To(Equal(1))
			Expect(actions.endpointCalls).To(BeZero())
		})
	})

	Describe("Step", func() {
		It("should do nothing without a pending request", func() {
			Expect(d.Step()).To(BeFalse())
			Expect(d.Attempts()).To(BeZero())
		})

		It("should execute exactly one action per call", func() {
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})

			Expect(d.Step()).To(BeTrue())
			Expect(actions.networkCalls).To(Equal(1))

			// The request was consumed.
			Expect(d.Step()).To(BeFalse())
			Expect(actions.networkCalls).To(Equal(1))
		})

		It("should route memory pressure to the degrade action", func() {
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeMemoryCritical})

			d.Step()

			Expect(actions.degradeCalls).To(Equal(1))
		})

		It("should track attempts and successes", func() {
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
			d.Step()

			actions.result = false
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
			d.Step()

			Expect(d.Attempts()).To(Equal(uint32(2)))
			Expect(d.Successes()).To(Equal(uint32(1)))
			Expect(d.SuccessRate()).To(BeNumerically("~", 0.5, 0.001))
			Expect(d.LastAction()).To(Equal(StrategyReconnectNetwork))
		})
	})

	Describe("Circuit breaking", func() {
		It("should stop executing a strategy after repeated failures", func() {
			actions.result = false

			// The default failure threshold is five.
			for i := 0; i < 5; i++ {
				d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
				Expect(d.Step()).To(BeFalse())
			}

			Expect(actions.networkCalls).To(Equal(5))

			// The breaker is now open: the next request is suppressed.
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
			Expect(d.Step()).To(BeFalse())
			Expect(actions.networkCalls).To(Equal(5))
			Expect(d.HasPending()).To(BeTrue())
		})

		It("should probe again after the recovery timeout", func() {
			actions.result = false

			for i := 0; i < 5; i++ {
				d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
				d.Step()
			}

			d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
			Expect(d.Step()).To(BeFalse())
			Expect(actions.networkCalls).To(Equal(5))

			// After the default recovery timeout the breaker admits a probe.
			now = now.Add(61 * time.Second)
			actions.result = true

			Expect(d.Step()).To(BeTrue())
			Expect(actions.networkCalls).To(Equal(6))
		})

		It("should keep other strategies available when one breaker is open", func() {
			actions.result = false

			for i := 0; i < 5; i++ {
				d.HandleEvent(eventbus.Event{Type: eventbus.TypeNetworkLost})
				d.Step()
			}

			actions.result = true
			d.HandleEvent(eventbus.Event{Type: eventbus.TypeAudioError})

			Expect(d.Step()).To(BeTrue())
			Expect(actions.audioCalls).To(Equal(1))
		})
	})
})
