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

package backoff

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Policy", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("Delay progression without jitter", func() {
		It("should double the delay on each failure starting at the minimum", func() {
			p := NewPolicy(time.Second, 60*time.Second, 0)

			d1 := p.RecordFailure(now)
			d2 := p.RecordFailure(now)
			d3 := p.RecordFailure(now)

			Expect(d1).To(Equal(1 * time.Second))
			Expect(d2).To(Equal(2 * time.Second))
			Expect(d3).To(Equal(4 * time.Second))
		})

		It("should cap the delay at the maximum", func() {
			p := NewPolicy(time.Second, 4*time.Second, 0)

			p.RecordFailure(now)
			p.RecordFailure(now)
			p.RecordFailure(now)
			d := p.RecordFailure(now)

			Expect(d).To(Equal(4 * time.Second))
			Expect(p.CurrentDelay()).To(Equal(4 * time.Second))
		})
	})

	Describe("Jitter", func() {
		It("should keep every jittered delay within the configured bounds", func() {
			p := NewPolicy(time.Second, 60*time.Second, 20)

			for i := 0; i < 50; i++ {
				d := p.RecordFailure(now)
				Expect(d).To(BeNumerically(">=", time.Second))
				Expect(d).To(BeNumerically("<=", 60*time.Second))
			}
		})

		It("should keep the jittered first delay within 20 percent of the base", func() {
			for i := 0; i < 20; i++ {
				p := NewPolicy(time.Second, 60*time.Second, 20)
				d := p.RecordFailure(now)

				Expect(d).To(BeNumerically(">=", 1*time.Second))
				Expect(d).To(BeNumerically("<=", 1200*time.Millisecond))
			}
		})
	})

	Describe("Retry gate", func() {
		It("should block retries until the delay has elapsed", func() {
			p := NewPolicy(time.Second, 60*time.Second, 0)

			d := p.RecordFailure(now)

			Expect(p.ShouldRetry(now)).To(BeFalse())
			Expect(p.ShouldRetry(now.Add(d - time.Millisecond))).To(BeFalse())
			Expect(p.ShouldRetry(now.Add(d))).To(BeTrue())
		})

		It("should report the time remaining until the next attempt", func() {
			p := NewPolicy(time.Second, 60*time.Second, 0)

			p.RecordFailure(now)

			Expect(p.NextRetryIn(now)).To(Equal(time.Second))
			Expect(p.NextRetryIn(now.Add(2 * time.Second))).To(BeZero())
		})

		It("should allow an immediate attempt before any failure", func() {
			p := NewPolicy(time.Second, 60*time.Second, 0)

			Expect(p.ShouldRetry(now)).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("should restart the progression from the minimum delay", func() {
			p := NewPolicy(time.Second, 60*time.Second, 0)

			p.RecordFailure(now)
			p.RecordFailure(now)
			Expect(p.ConsecutiveFailures()).To(Equal(uint32(2)))

			p.RecordSuccess()

			Expect(p.ConsecutiveFailures()).To(BeZero())
			Expect(p.ShouldRetry(now)).To(BeTrue())
			Expect(p.RecordFailure(now)).To(Equal(time.Second))
		})
	})
})
