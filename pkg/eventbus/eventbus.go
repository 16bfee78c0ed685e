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

package eventbus

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// subscription binds a handler to an event type with a priority filter:
// maxPriority is the most urgent class the handler takes; events more urgent
// than it are withheld, events at or below its urgency are delivered.
type subscription struct {
	handler     Handler
	maxPriority Priority
	owner       string
}

// Stats carries the bus counters. All counters are cumulative.
type Stats struct {
	Published     uint32
	Processed     uint32
	Dropped       uint32
	HandlerErrors uint32
}

// Bus is a bounded, priority-tagged publish/subscribe channel. Events are
// queued FIFO and drained by Process within a time budget; production and
// consumption both happen on the single tick goroutine, so the bus needs no
// locking. A multi-threaded port must add a lock around the queue only.
type Bus struct {
	subscriptions map[Type][]subscription

	queue []Event

	capacity        int
	stalenessBudget time.Duration

	stats Stats

	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// WithCapacity overrides the queue capacity.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithStalenessBudget overrides the maximum event age.
func WithStalenessBudget(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.stalenessBudget = d
		}
	}
}

// New creates an event bus with the default capacity and staleness budget.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions:   make(map[Type][]subscription),
		queue:           make([]Event, 0, constants.EventQueueCapacity),
		capacity:        constants.EventQueueCapacity,
		stalenessBudget: constants.EventStalenessBudget,
		logger:          logger.For(logger.ComponentEventBus),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers handler for eventType. maxPriority caps the urgency
// the handler receives: events more urgent than maxPriority are withheld,
// so PriorityCritical subscribes to every priority and PriorityLow to low
// events only. Returns false if the handler is nil.
func (b *Bus) Subscribe(eventType Type, handler Handler, maxPriority Priority, owner string) bool {
	if handler == nil {
		return false
	}

	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		handler:     handler,
		maxPriority: maxPriority,
		owner:       owner,
	})

	b.logger.Debugf("Subscribed %s to %s (max priority %s)", owner, eventType, maxPriority)

	return true
}

// Publish enqueues an event. It returns false (and counts a drop) when the
// queue is full; the caller is never handed an error beyond the boolean.
func (b *Bus) Publish(eventType Type, payload any, priority Priority, source string) bool {
	if len(b.queue) >= b.capacity {
		b.stats.Dropped++
		metrics.RecordEventDropped("queue_full")
		b.logger.Warnf("Event queue full, dropping %s from %s", eventType, source)

		return false
	}

	b.queue = append(b.queue, Event{
		ID:        uuid.New(),
		Type:      eventType,
		Priority:  priority,
		Timestamp: b.now(),
		Payload:   payload,
		Source:    source,
	})

	b.stats.Published++
	metrics.RecordEventPublished()

	return true
}

// PublishImmediate dispatches an event synchronously, bypassing the queue.
// Reserved for critical and emergency signals that must not wait for the
// next Process call.
func (b *Bus) PublishImmediate(eventType Type, payload any, priority Priority, source string) bool {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Priority:  priority,
		Timestamp: b.now(),
		Payload:   payload,
		Source:    source,
	}

	b.stats.Published++
	metrics.RecordEventPublished()

	b.dispatch(event)

	return true
}

// Process drains the queue FIFO until it is empty or the time budget is
// exhausted. Events older than the staleness budget are dropped, not
// delivered. Returns the number of events dispatched.
func (b *Bus) Process(budget time.Duration) int {
	start := b.now()
	processed := 0

	for len(b.queue) > 0 {
		if budget > 0 && b.now().Sub(start) >= budget {
			break
		}

		event := b.queue[0]
		b.queue = b.queue[1:]

		if b.now().Sub(event.Timestamp) > b.stalenessBudget {
			b.stats.Dropped++
			metrics.RecordEventDropped("stale")
			b.logger.Debugf("Dropping stale %s from %s", event.Type, event.Source)

			continue
		}

		b.dispatch(event)
		processed++
	}

	return processed
}

// dispatch delivers an event to every matching subscription. A misbehaving
// handler is counted and skipped; it never blocks delivery to the rest.
func (b *Bus) dispatch(event Event) {
	for _, sub := range b.subscriptions[event.Type] {
		if event.Priority < sub.maxPriority {
			continue
		}

		b.invoke(sub, event)
	}

	b.stats.Processed++
}

// invoke runs a single handler with panic isolation.
func (b *Bus) invoke(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.stats.HandlerErrors++
			metrics.RecordEventDropped("handler_panic")
			b.logger.Errorf("Handler %s panicked on %s: %v", sub.owner, event.Type, r)
		}
	}()

	if err := sub.handler.HandleEvent(event); err != nil {
		b.stats.HandlerErrors++
		b.logger.Warnf("Handler %s failed on %s: %v", sub.owner, event.Type, err)
	}
}

// QueueLen returns the number of queued events.
func (b *Bus) QueueLen() int {
	return len(b.queue)
}

// Stats returns a copy of the bus counters.
func (b *Bus) Stats() Stats {
	return b.stats
}

// Clear drops all queued events without delivering them.
func (b *Bus) Clear() {
	b.queue = b.queue[:0]
}
