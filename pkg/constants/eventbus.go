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

package constants

import "time"

const (
	// EventQueueCapacity is the maximum number of queued events. Publishing
	// to a full queue drops the event and bumps the drop counter.
	EventQueueCapacity = 100

	// EventStalenessBudget is the maximum age an event may reach before it
	// is discarded at dequeue instead of being delivered.
	EventStalenessBudget = 5 * time.Second

	// DefaultEventProcessBudget bounds a single Process call when the
	// caller does not pass its own budget.
	DefaultEventProcessBudget = 50 * time.Millisecond
)
