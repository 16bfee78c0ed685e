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
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BackoffManager", func() {
	var (
		m   *BackoffManager
		now time.Time
	)

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		m = NewBackoffManager(Config{
			Name:          "test-op",
			MinDelay:      time.Second,
			MaxDelay:      60 * time.Second,
			JitterPercent: 0,
			MaxRetries:    3,
		})
	})

	Describe("Error categories", func() {
		It("should drop ignored errors without arming the backoff", func() {
			permanent := m.SetError(NewIgnoredError(errors.New("probe while link down")), now)

			Expect(permanent).To(BeFalse())
			Expect(m.ShouldSkipOperation(now)).To(BeFalse())
			Expect(m.GetLastError()).To(BeNil())
		})

		It("should escalate permanent errors immediately", func() {
			permanent := m.SetError(NewPermanentError(errors.New("hardware gone")), now)

			Expect(permanent).To(BeTrue())
			Expect(m.IsPermanentlyFailed()).To(BeTrue())
			Expect(m.ShouldSkipOperation(now)).To(BeTrue())
		})

		It("should treat uncategorized errors as transient", func() {
			permanent := m.SetError(errors.New("something broke"), now)

			Expect(permanent).To(BeFalse())
			Expect(m.IsPermanentlyFailed()).To(BeFalse())
			Expect(m.ShouldSkipOperation(now)).To(BeTrue())
			Expect(IsTransientError(m.GetLastError())).To(BeTrue())
		})
	})

	Describe("Transient failures", func() {
		It("should suspend the operation until the delay elapses", func() {
			m.SetError(NewTransientError(errors.New("flaky")), now)

			Expect(m.ShouldSkipOperation(now)).To(BeTrue())
			Expect(m.ShouldSkipOperation(now.Add(time.Second))).To(BeFalse())
		})

		It("should return a temporary backoff error while suspended", func() {
			m.SetError(NewTransientError(errors.New("flaky")), now)

			err := m.GetBackoffError(now)
			Expect(err).To(HaveOccurred())
			Expect(IsBackoffError(err)).To(BeTrue())
			Expect(IsTemporaryBackoffError(err)).To(BeTrue())
			Expect(IsPermanentFailureError(err)).To(BeFalse())
		})

		It("should surface the original cause through the backoff wrapper", func() {
			cause := errors.New("dial tcp: connection refused")
			m.SetError(NewTransientError(cause), now)

			Expect(ExtractOriginalError(m.GetBackoffError(now))).To(MatchError(cause))
		})

		It("should escalate after the retry budget is exhausted", func() {
			flaky := NewTransientError(errors.New("flaky"))

			Expect(m.SetError(flaky, now)).To(BeFalse())
			Expect(m.SetError(flaky, now)).To(BeFalse())
			Expect(m.SetError(flaky, now)).To(BeTrue())

			Expect(m.IsPermanentlyFailed()).To(BeTrue())
			Expect(IsPermanentFailureError(m.GetBackoffError(now))).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("should clear errors and allow the operation again", func() {
			m.SetError(NewTransientError(errors.New("flaky")), now)
			m.Reset()

			Expect(m.ShouldSkipOperation(now)).To(BeFalse())
			Expect(m.GetLastError()).To(BeNil())
			Expect(m.GetBackoffError(now)).To(BeNil())
		})

		It("should clear a permanent failure", func() {
			m.SetError(NewPermanentError(errors.New("dead")), now)
			m.Reset()

			Expect(m.IsPermanentlyFailed()).To(BeFalse())
			Expect(m.ShouldSkipOperation(now)).To(BeFalse())
		})
	})
})
