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

package degradation

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
)

var _ = Describe("Controller", func() {
	var (
		c   *Controller
		now time.Time
	)

	clock := func() time.Time { return now }

	// advance moves past the dwell time so the next Update may change mode.
	advance := func() {
		now = now.Add(constants.DegradationDwellTime + time.Second)
	}

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		c = NewController(nil, WithClock(clock))
	})

	Describe("Mode selection", func() {
		It("should start in normal mode", func() {
			Expect(c.Mode()).To(Equal(ModeNormal))
		})

		It("should stay normal while the score is at or above the degrade threshold", func() {
			advance()
			c.Update(90)

			Expect(c.Mode()).To(Equal(ModeNormal))
		})

		It("should enter reduced quality below the degrade threshold", func() {
			advance()
			c.Update(78)

			Expect(c.Mode()).To(Equal(ModeReducedQuality))
		})

		It("should enter safe mode below the safe threshold", func() {
			advance()
			c.Update(55)

			Expect(c.Mode()).To(Equal(ModeSafe))
		})
	})

	Describe("Hysteresis", func() {
		It("should not return to normal until the score clears the restore threshold", func() {
			advance()
			c.Update(78)
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			// 83 sits above the degrade threshold but below restore.
			advance()
			c.Update(83)
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			advance()
			c.Update(86)
			Expect(c.Mode()).To(Equal(ModeNormal))
		})

		It("should step safe mode up through reduced quality, not straight to normal", func() {
			advance()
			c.Update(50)
			Expect(c.Mode()).To(Equal(ModeSafe))

			advance()
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			advance()
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeNormal))
		})
	})

	Describe("Dwell time", func() {
		It("should refuse a mode change before the dwell time elapses", func() {
			advance()
			c.Update(78)
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			// Inside the dwell window nothing changes, whatever the score.
			now = now.Add(time.Second)
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			advance()
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeNormal))
		})
	})

	Describe("Failure streak", func() {
		It("should force recovery mode after three consecutive failures", func() {
			c.RecordFailure()
			c.RecordFailure()
			Expect(c.Mode()).To(Equal(ModeNormal))

			c.RecordFailure()
			Expect(c.Mode()).To(Equal(ModeRecovery))
		})

		It("should bypass the dwell time when forcing recovery", func() {
			// No clock advance at all: the streak still forces the mode.
			c.RecordFailure()
			c.RecordFailure()
			c.RecordFailure()

			Expect(c.Mode()).To(Equal(ModeRecovery))
		})

		It("should reset the streak on success", func() {
			c.RecordFailure()
			c.RecordFailure()
			c.RecordSuccess()
			c.RecordFailure()

			Expect(c.Mode()).To(Equal(ModeNormal))
			Expect(c.FailureStreak()).To(Equal(uint32(1)))
		})

		It("should only leave recovery once the streak is cleared and the score restored", func() {
			c.RecordFailure()
			c.RecordFailure()
			c.RecordFailure()
			Expect(c.Mode()).To(Equal(ModeRecovery))

			advance()
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeRecovery))

			c.RecordSuccess()
			advance()
			c.Update(95)
			Expect(c.Mode()).To(Equal(ModeNormal))
		})
	})

	Describe("ForceDegrade", func() {
		It("should step down one level per call until safe", func() {
			Expect(c.ForceDegrade()).To(BeTrue())
			Expect(c.Mode()).To(Equal(ModeReducedQuality))

			Expect(c.ForceDegrade()).To(BeTrue())
			Expect(c.Mode()).To(Equal(ModeSafe))

			Expect(c.ForceDegrade()).To(BeFalse())
			Expect(c.Mode()).To(Equal(ModeSafe))
		})
	})

	Describe("Feature gates", func() {
		It("should enable everything in normal mode", func() {
			Expect(c.IsFeatureEnabled(FeatureAudioStreaming)).To(BeTrue())
			Expect(c.IsFeatureEnabled(FeatureHighQualityAudio)).To(BeTrue())
			Expect(c.IsFeatureEnabled(FeatureTelemetry)).To(BeTrue())
			Expect(c.IsFeatureEnabled(FeatureAdvancedMonitoring)).To(BeTrue())
		})

		It("should drop the expensive features in reduced quality", func() {
			advance()
			c.Update(78)

			Expect(c.IsFeatureEnabled(FeatureAudioStreaming)).To(BeTrue())
			Expect(c.IsFeatureEnabled(FeatureHighQualityAudio)).To(BeFalse())
			Expect(c.IsFeatureEnabled(FeatureAdvancedMonitoring)).To(BeFalse())
		})

		It("should disable everything in safe mode", func() {
			advance()
			c.Update(50)

			Expect(c.IsFeatureEnabled(FeatureAudioStreaming)).To(BeFalse())
			Expect(c.IsFeatureEnabled(FeatureTelemetry)).To(BeFalse())
		})

		It("should disable unknown features in every mode", func() {
			Expect(c.IsFeatureEnabled("made_up_feature")).To(BeFalse())
		})
	})
})
