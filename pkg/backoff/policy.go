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
	"math/rand"
	"time"

	expbackoff "github.com/cenkalti/backoff/v4"
)

// Policy computes jittered exponential retry delays for a repeatedly failing
// operation and gates the next attempt behind a deadline that the caller
// polls. Nothing in here sleeps: ShouldRetry answers "not yet" until the
// delay has elapsed and the caller checks again on a later tick.
//
// The un-jittered delay doubles on every failure, starting at the minimum
// delay and capped at the maximum. Jitter is a bounded random perturbation
// (± jitterPercent) applied per call; the returned delay is always clamped
// back into [minDelay, maxDelay].
type Policy struct {
	minDelay      time.Duration
	maxDelay      time.Duration
	jitterPercent int

	// engine produces the deterministic doubling sequence; randomization is
	// disabled there because the clamped jitter is applied on top.
	engine *expbackoff.ExponentialBackOff

	failures     uint32
	currentDelay time.Duration
	nextAttempt  time.Time

	rng *rand.Rand
}

// NewPolicy creates a retry policy with the given delay bounds and jitter
// percentage. A jitterPercent of 20 perturbs each delay by up to ±20%.
func NewPolicy(minDelay, maxDelay time.Duration, jitterPercent int) *Policy {
	if minDelay <= 0 {
		minDelay = time.Millisecond
	}

	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	if jitterPercent < 0 || jitterPercent > 100 {
		jitterPercent = 0
	}

	engine := expbackoff.NewExponentialBackOff()
	engine.InitialInterval = minDelay
	engine.MaxInterval = maxDelay
	engine.Multiplier = 2.0
	engine.RandomizationFactor = 0
	// The retry budget is owned by the caller, not by elapsed time.
	engine.MaxElapsedTime = 0
	engine.Reset()

	return &Policy{
		minDelay:      minDelay,
		maxDelay:      maxDelay,
		jitterPercent: jitterPercent,
		engine:        engine,
		currentDelay:  minDelay,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordFailure advances the backoff sequence and arms the retry gate.
// It returns the jittered delay until the next attempt is allowed.
func (p *Policy) RecordFailure(now time.Time) time.Duration {
	p.failures++

	d := p.engine.NextBackOff()
	if d == expbackoff.Stop || d <= 0 {
		d = p.maxDelay
	}

	p.currentDelay = p.clamp(d)

	jittered := p.clamp(p.jitter(p.currentDelay))
	p.nextAttempt = now.Add(jittered)

	return jittered
}

// RecordSuccess resets the backoff sequence; the next attempt is allowed
// immediately.
func (p *Policy) RecordSuccess() {
	p.Reset()
}

// Reset returns the policy to its initial state.
func (p *Policy) Reset() {
	p.failures = 0
	p.currentDelay = p.minDelay
	p.nextAttempt = time.Time{}
	p.engine.Reset()
}

// ShouldRetry reports whether the retry gate has elapsed.
func (p *Policy) ShouldRetry(now time.Time) bool {
	return !now.Before(p.nextAttempt)
}

// NextRetryIn returns how long until the next attempt is allowed,
// or zero if an attempt is allowed now.
func (p *Policy) NextRetryIn(now time.Time) time.Duration {
	if !now.Before(p.nextAttempt) {
		return 0
	}

	return p.nextAttempt.Sub(now)
}

// CurrentDelay returns the un-jittered delay of the current backoff step.
func (p *Policy) CurrentDelay() time.Duration {
	return p.currentDelay
}

// ConsecutiveFailures returns the number of failures since the last success.
func (p *Policy) ConsecutiveFailures() uint32 {
	return p.failures
}

// MinDelay returns the configured lower delay bound.
func (p *Policy) MinDelay() time.Duration {
	return p.minDelay
}

// MaxDelay returns the configured upper delay bound.
func (p *Policy) MaxDelay() time.Duration {
	return p.maxDelay
}

// jitter perturbs d by a random amount within ±jitterPercent.
func (p *Policy) jitter(d time.Duration) time.Duration {
	if p.jitterPercent == 0 {
		return d
	}

	// Random percentage in [-jitterPercent, +jitterPercent].
	pct := p.rng.Intn(2*p.jitterPercent+1) - p.jitterPercent

	return d + d*time.Duration(pct)/100
}

// clamp bounds d into [minDelay, maxDelay].
func (p *Policy) clamp(d time.Duration) time.Duration {
	if d < p.minDelay {
		return p.minDelay
	}

	if d > p.maxDelay {
		return p.maxDelay
	}

	return d
}
