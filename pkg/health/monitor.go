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

// Package health condenses link quality, memory pressure and audio error
// rate into a single 0-100 score that drives the degradation controller.
package health

import (
	"go.uber.org/zap"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
)

// Memory pressure thresholds in percent of used memory.
const (
	memoryLowWatermark      = 85.0
	memoryCriticalWatermark = 95.0
)

// Score component weights. The score starts at 100 and penalties are
// subtracted, clamped to [0, 100].
const (
	penaltyLinkDown       = 40
	penaltyPerAudioError  = 5
	maxAudioErrorPenalty  = 30
	penaltyMemoryLow      = 20
	penaltyMemoryCritical = 50
)

// autoRecoverFloor is the minimum score at which automatic recovery actions
// are still considered safe to run.
const autoRecoverFloor = 20

// MemoryUsedPercent reports the fraction of memory in use. Injectable so
// tests do not depend on the host.
type MemoryUsedPercent func() (float64, error)

// DefaultMemoryUsedPercent reads host memory usage.
func DefaultMemoryUsedPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}

	return vm.UsedPercent, nil
}

// Monitor computes the device health score. Collect is called once per tick;
// everything else is bookkeeping.
type Monitor struct {
	link transport.Link
	bus  *eventbus.Bus

	memUsed MemoryUsedPercent

	audioErrors    uint32
	score          int
	memoryCritical bool
	memoryLow      bool

	logger *zap.SugaredLogger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMemoryProbe overrides the memory usage source, for tests.
func WithMemoryProbe(f MemoryUsedPercent) Option {
	return func(m *Monitor) {
		if f != nil {
			m.memUsed = f
		}
	}
}

// NewMonitor creates a monitor with a full initial score. bus may be nil in
// tests.
func NewMonitor(link transport.Link, bus *eventbus.Bus, opts ...Option) *Monitor {
	m := &Monitor{
		link:    link,
		bus:     bus,
		memUsed: DefaultMemoryUsedPercent,
		score:   100,
		logger:  logger.For(logger.ComponentHealthMonitor),
	}

	for _, opt := range opts {
		opt(m)
	}

	metrics.SetHealthScore(m.score)

	return m
}

// Score returns the most recently computed health score.
func (m *Monitor) Score() int {
	return m.score
}

// RecordAudioError counts a failed audio read. Decays on RecordAudioOK.
func (m *Monitor) RecordAudioError() {
	m.audioErrors++
}

// RecordAudioOK decays the audio error count after a successful read.
func (m *Monitor) RecordAudioOK() {
	if m.audioErrors > 0 {
		m.audioErrors--
	}
}

// ResetAudioErrors clears the audio error count, for recovery actions that
// reinitialize the pipeline wholesale.
func (m *Monitor) ResetAudioErrors() {
	m.audioErrors = 0
}

// AudioErrors returns the current decayed audio error count.
func (m *Monitor) AudioErrors() uint32 {
	return m.audioErrors
}

// CanAutoRecover reports whether automatic recovery actions may run. Under
// critical memory pressure or a collapsed score, recovery is left to the
// safe-mode path instead.
func (m *Monitor) CanAutoRecover() bool {
	return !m.memoryCritical && m.score >= autoRecoverFloor
}

// Collect recomputes the score from the current inputs, updates metrics and
// publishes threshold crossings. Returns the new score.
func (m *Monitor) Collect() int {
	score := 100

	if m.link == nil || !m.link.IsUp() {
		score -= penaltyLinkDown
	} else {
		// A weak link shaves up to 20 points proportionally.
		q := m.link.Quality()
		if q.Strength < 100 {
			score -= (100 - q.Strength) / 5
		}
	}

	audioPenalty := int(m.audioErrors) * penaltyPerAudioError
	if audioPenalty > maxAudioErrorPenalty {
		audioPenalty = maxAudioErrorPenalty
	}
	score -= audioPenalty

	usedPercent, err := m.memUsed()
	if err != nil {
		m.logger.Warnf("Memory probe failed: %v", err)
		usedPercent = 0
	}

	wasLow, wasCritical := m.memoryLow, m.memoryCritical
	m.memoryLow = usedPercent >= memoryLowWatermark
	m.memoryCritical = usedPercent >= memoryCriticalWatermark

	switch {
	case m.memoryCritical:
		score -= penaltyMemoryCritical
	case m.memoryLow:
		score -= penaltyMemoryLow
	}

	if m.memoryCritical && !wasCritical {
		m.publish(eventbus.TypeMemoryCritical, usedPercent, eventbus.PriorityCritical)
	} else if m.memoryLow && !wasLow {
		m.publish(eventbus.TypeMemoryLow, usedPercent, eventbus.PriorityHigh)
	}

	if score < 0 {
		score = 0
	}

	if score > 100 {
		score = 100
	}

	if score != m.score {
		m.publish(eventbus.TypeHealthChanged, score, eventbus.PriorityNormal)
	}

	m.score = score
	metrics.SetHealthScore(score)

	return score
}

func (m *Monitor) publish(t eventbus.Type, payload any, prio eventbus.Priority) {
	if m.bus == nil {
		return
	}

	m.bus.Publish(t, payload, prio, "health")
}
