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

// Package degradation decides which features stay enabled as device health
// drops. Mode changes are rate-limited by a dwell time and guarded by
// hysteresis so a health score oscillating around a threshold cannot flap
// the mode.
package degradation

import (
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/eventbus"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// Mode is the current degradation level.
type Mode int

const (
	// ModeNormal runs every feature.
	ModeNormal Mode = iota
	// ModeReducedQuality keeps streaming but drops the expensive extras.
	ModeReducedQuality
	// ModeSafe suspends streaming and keeps only the control plane alive.
	ModeSafe
	// ModeRecovery is entered after repeated operation failures while
	// recovery actions run; streaming continues at reduced quality.
	ModeRecovery
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeReducedQuality:
		return "reduced_quality"
	case ModeSafe:
		return "safe"
	case ModeRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Feature names gated by the controller.
const (
	FeatureAudioStreaming     = "audio_streaming"
	FeatureHighQualityAudio   = "high_quality_audio"
	FeatureTelemetry          = "telemetry"
	FeatureAdvancedMonitoring = "advanced_monitoring"
)

// featureMatrix maps each mode to its enabled features.
var featureMatrix = map[Mode]map[string]bool{
	ModeNormal: {
		FeatureAudioStreaming:     true,
		FeatureHighQualityAudio:   true,
		FeatureTelemetry:          true,
		FeatureAdvancedMonitoring: true,
	},
	ModeReducedQuality: {
		FeatureAudioStreaming: true,
		FeatureTelemetry:      true,
	},
	ModeSafe: {},
	ModeRecovery: {
		FeatureAudioStreaming: true,
	},
}

// Controller owns the degradation mode. All decisions happen in Update,
// called once per tick with the current health score.
type Controller struct {
	mode           Mode
	lastModeChange time.Time

	degradeThreshold int
	safeThreshold    int
	restoreThreshold int
	dwell            time.Duration

	failureStreak uint32

	bus    *eventbus.Bus
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithThresholds overrides the health-score thresholds. restore must sit
// above degrade; values are taken as given.
func WithThresholds(degrade, safe, restore int) Option {
	return func(c *Controller) {
		c.degradeThreshold = degrade
		c.safeThreshold = safe
		c.restoreThreshold = restore
	}
}

// WithDwell overrides the minimum time between mode changes.
func WithDwell(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.dwell = d
		}
	}
}

// NewController creates a controller in ModeNormal. bus may be nil in tests.
func NewController(bus *eventbus.Bus, opts ...Option) *Controller {
	c := &Controller{
		mode:             ModeNormal,
		degradeThreshold: constants.DegradeThreshold,
		safeThreshold:    constants.SafeThreshold,
		restoreThreshold: constants.RestoreThreshold,
		dwell:            constants.DegradationDwellTime,
		bus:              bus,
		logger:           logger.For(logger.ComponentDegradation),
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.lastModeChange = c.now()
	metrics.SetDegradationMode(int(ModeNormal))

	return c
}

// Mode returns the current degradation mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// IsFeatureEnabled reports whether the named feature runs in the current mode.
// Unknown features are disabled.
func (c *Controller) IsFeatureEnabled(feature string) bool {
	return featureMatrix[c.mode][feature]
}

// FailureStreak returns the current consecutive-failure count.
func (c *Controller) FailureStreak() uint32 {
	return c.failureStreak
}

// RecordFailure counts a failed critical operation. Reaching the streak
// limit forces ModeRecovery immediately, dwell time notwithstanding.
func (c *Controller) RecordFailure() {
	c.failureStreak++

	if c.failureStreak >= constants.DegradationFailureStreak && c.mode != ModeRecovery && c.mode != ModeSafe {
		c.logger.Warnf("%d consecutive failures, forcing recovery mode", c.failureStreak)
		c.setMode(ModeRecovery, "failure streak")
	}
}

// RecordSuccess resets the consecutive-failure count.
func (c *Controller) RecordSuccess() {
	c.failureStreak = 0
}

// ForceDegrade steps the mode down one level immediately, dwell time
// notwithstanding. Used by the recovery dispatcher when degrading is the
// chosen recovery action. Returns false when already in safe mode.
func (c *Controller) ForceDegrade() bool {
	switch c.mode {
	case ModeNormal:
		c.setMode(ModeReducedQuality, "forced degrade")

		return true
	case ModeReducedQuality, ModeRecovery:
		c.setMode(ModeSafe, "forced degrade")

		return true
	default:
		return false
	}
}

// Update folds the current health score into the mode. At most one mode step
// happens per call, and none before the dwell time since the last change has
// elapsed. Hysteresis: a degraded mode is only left upward once the score
// clears the restore threshold, not the degrade threshold it fell through.
func (c *Controller) Update(healthScore int) {
	if c.now().Sub(c.lastModeChange) < c.dwell {
		return
	}

	target := c.targetMode(healthScore)
	if target == c.mode {
		return
	}

	c.setMode(target, "health score")
}

// targetMode picks the mode the current score calls for, honoring hysteresis
// relative to the mode currently held.
func (c *Controller) targetMode(score int) Mode {
	switch c.mode {
	case ModeNormal:
		if score < c.safeThreshold {
			return ModeSafe
		}

		if score < c.degradeThreshold {
			return ModeReducedQuality
		}

		return ModeNormal

	case ModeReducedQuality:
		if score < c.safeThreshold {
			return ModeSafe
		}

		if score > c.restoreThreshold {
			return ModeNormal
		}

		return ModeReducedQuality

	case ModeSafe:
		// Leaving safe mode requires a fully restored score.
		if score > c.restoreThreshold {
			return ModeReducedQuality
		}

		return ModeSafe

	case ModeRecovery:
		if score < c.safeThreshold {
			return ModeSafe
		}

		if c.failureStreak == 0 && score > c.restoreThreshold {
			return ModeNormal
		}

		return ModeRecovery

	default:
		return c.mode
	}
}

// setMode performs the mode change and publishes it.
func (c *Controller) setMode(target Mode, cause string) {
	old := c.mode
	c.mode = target
	c.lastModeChange = c.now()

	metrics.SetDegradationMode(int(target))
	c.logger.Infof("Degradation mode: %s -> %s (%s)", old, target, cause)

	if c.bus != nil {
		c.bus.Publish(eventbus.TypeDegradationMode, target.String(), eventbus.PriorityHigh, "degradation")
	}
}
