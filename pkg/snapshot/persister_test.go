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

package snapshot

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	data   []byte
	saves  int
	failed bool
}

func (m *memStore) Save(data []byte) error {
	if m.failed {
		return errors.New("store failed")
	}

	m.data = append([]byte(nil), data...)
	m.saves++

	return nil
}

func (m *memStore) Load() ([]byte, error) {
	if m.data == nil {
		return nil, errors.New("nothing stored")
	}

	return m.data, nil
}

var _ = Describe("Manager", func() {
	It("should hand out copies, not shared state", func() {
		m := NewManager()

		orig := Snapshot{SystemState: "streaming", Tick: 7}
		Expect(m.Update(orig)).To(Succeed())

		got, ok := m.Latest()
		Expect(ok).To(BeTrue())
		Expect(got.SystemState).To(Equal("streaming"))
		Expect(got.Tick).To(Equal(uint64(7)))

		got.SystemState = "mutated"

		again, _ := m.Latest()
		Expect(again.SystemState).To(Equal("streaming"))
	})

	It("should report nothing before the first update", func() {
		m := NewManager()

		_, ok := m.Latest()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Persister", func() {
	var (
		store *memStore
		p     *Persister
		now   time.Time
	)

	clock := func() time.Time { return now }

	BeforeEach(func() {
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store = &memStore{}
		p = NewPersister(store, WithClock(clock), WithMinInterval(time.Minute))
	})

	Describe("Rate limiting", func() {
		It("should persist the first snapshot immediately", func() {
			Expect(p.MaybePersist(Snapshot{Tick: 1})).To(BeTrue())
			Expect(store.saves).To(Equal(1))
		})

		It("should suppress writes inside the minimum interval", func() {
			p.MaybePersist(Snapshot{Tick: 1})

			now = now.Add(30 * time.Second)
			Expect(p.MaybePersist(Snapshot{Tick: 2})).To(BeFalse())
			Expect(store.saves).To(Equal(1))

			now = now.Add(31 * time.Second)
			Expect(p.MaybePersist(Snapshot{Tick: 3})).To(BeTrue())
			Expect(store.saves).To(Equal(2))
		})

		It("should write immediately through Persist, bypassing the limit", func() {
			p.MaybePersist(Snapshot{Tick: 1})

			Expect(p.Persist(Snapshot{Tick: 2})).To(Succeed())
			Expect(store.saves).To(Equal(2))
		})
	})

	Describe("Restore", func() {
		It("should round-trip a snapshot", func() {
			orig := Snapshot{
				SystemState:     "streaming",
				ConnectionState: "established",
				DegradationMode: "normal",
				HealthScore:     97,
				Tick:            42,
				Timestamp:       now,
			}

			Expect(p.Persist(orig)).To(Succeed())

			got, ok := p.Restore()
			Expect(ok).To(BeTrue())
			Expect(got.SystemState).To(Equal("streaming"))
			Expect(got.Tick).To(Equal(uint64(42)))
			Expect(got.HealthScore).To(Equal(97))
		})

		It("should discard a corrupt snapshot", func() {
			store.data = []byte("{not json")

			_, ok := p.Restore()
			Expect(ok).To(BeFalse())
		})

		It("should report nothing when the store is empty", func() {
			_, ok := p.Restore()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Store failures", func() {
		It("should report a failed MaybePersist without arming the rate limit", func() {
			store.failed = true
			Expect(p.MaybePersist(Snapshot{Tick: 1})).To(BeFalse())

			store.failed = false
			Expect(p.MaybePersist(Snapshot{Tick: 2})).To(BeTrue())
		})
	})
})
