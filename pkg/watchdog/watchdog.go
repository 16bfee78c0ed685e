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

// Package watchdog feeds the platform watchdog and detects control loop
// starvation. The contract with the scheduler is strict: the watchdog is fed
// at the start of every tick, before any other work, so a wedged tick is the
// only thing that can starve it.
package watchdog

// Feeder abstracts the platform watchdog. Feed must be cheap and must never
// block; the platform resets the device if feeds stop arriving.
type Feeder interface {
	Feed()
}

// MockFeeder counts feeds for tests.
type MockFeeder struct {
	Feeds int
}

// Feed implements Feeder.
func (m *MockFeeder) Feed() {
	m.Feeds++
}

// NopFeeder is used when the platform has no hardware watchdog.
type NopFeeder struct{}

// Feed implements Feeder.
func (NopFeeder) Feed() {}
