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

package system

// historyRing is a fixed-capacity ring of the most recent transitions.
// The backing array is allocated once; old entries are overwritten in place.
type historyRing struct {
	buf   []Transition
	next  int
	count int
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{buf: make([]Transition, capacity)}
}

// push appends a transition, overwriting the oldest when full.
func (h *historyRing) push(t Transition) {
	h.buf[h.next] = t
	h.next = (h.next + 1) % len(h.buf)

	if h.count < len(h.buf) {
		h.count++
	}
}

// len returns the number of retained transitions.
func (h *historyRing) len() int {
	return h.count
}

// last returns the most recent transition; ok is false when empty.
func (h *historyRing) last() (Transition, bool) {
	if h.count == 0 {
		return Transition{}, false
	}

	idx := (h.next - 1 + len(h.buf)) % len(h.buf)

	return h.buf[idx], true
}

// snapshot returns the retained transitions oldest-first.
func (h *historyRing) snapshot() []Transition {
	out := make([]Transition, 0, h.count)

	start := h.next - h.count
	if start < 0 {
		start += len(h.buf)
	}

	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}

	return out
}

// clear drops all retained transitions.
func (h *historyRing) clear() {
	h.next = 0
	h.count = 0
}
