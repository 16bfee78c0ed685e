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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
)

// Config holds parameters for a BackoffManager.
type Config struct {
	Name          string
	MinDelay      time.Duration
	MaxDelay      time.Duration
	JitterPercent int
	// MaxRetries is the number of consecutive transient failures after
	// which the operation is escalated to a permanent failure. 0 disables
	// the escalation.
	MaxRetries uint32
	Logger     *zap.SugaredLogger
}

// DefaultConfig returns the backoff configuration used for connection and
// recovery operations.
func DefaultConfig(name string, logger *zap.SugaredLogger) Config {
	return Config{
		Name:          name,
		MinDelay:      constants.DefaultBackoffMinDelay,
		MaxDelay:      constants.DefaultBackoffMaxDelay,
		JitterPercent: constants.DefaultBackoffJitterPercent,
		MaxRetries:    constants.DefaultBackoffMaxRetries,
		Logger:        logger,
	}
}

// BackoffManager combines the retry policy with error bookkeeping: repeated
// transient errors suspend the operation for the backoff delay, and too many
// of them escalate to a permanent failure. All checks are polls; the manager
// never sleeps.
type BackoffManager struct {
	cfg    Config
	policy *Policy

	lastError         error
	permanentlyFailed bool
}

// NewBackoffManager creates a manager from cfg.
func NewBackoffManager(cfg Config) *BackoffManager {
	return &BackoffManager{
		cfg:    cfg,
		policy: NewPolicy(cfg.MinDelay, cfg.MaxDelay, cfg.JitterPercent),
	}
}

// SetError records a failed operation and returns true if the failure is now
// considered permanent. Ignored errors are dropped without touching the
// backoff state; permanent errors escalate immediately.
func (m *BackoffManager) SetError(err error, now time.Time) bool {
	err = CategorizeError(err)

	if IsIgnoredError(err) {
		return false
	}

	m.lastError = err

	if IsPermanentError(err) {
		m.permanentlyFailed = true
		return true
	}

	delay := m.policy.RecordFailure(now)

	if m.cfg.MaxRetries > 0 && m.policy.ConsecutiveFailures() >= m.cfg.MaxRetries {
		m.permanentlyFailed = true

		if m.cfg.Logger != nil {
			m.cfg.Logger.Errorf("%s: %d consecutive failures, escalating to permanent failure: %v",
				m.cfg.Name, m.policy.ConsecutiveFailures(), err)
		}

		return true
	}

	if m.cfg.Logger != nil {
		m.cfg.Logger.Debugf("%s: failure %d, next attempt in %s: %v",
			m.cfg.Name, m.policy.ConsecutiveFailures(), delay, err)
	}

	return false
}

// ShouldSkipOperation reports whether the operation is suspended, either
// because the backoff delay has not elapsed or because the operation has
// permanently failed.
func (m *BackoffManager) ShouldSkipOperation(now time.Time) bool {
	if m.permanentlyFailed {
		return true
	}

	return !m.policy.ShouldRetry(now)
}

// GetBackoffError returns a structured error describing the suspension, or
// nil if the operation may be attempted.
func (m *BackoffManager) GetBackoffError(now time.Time) error {
	if m.permanentlyFailed {
		return fmt.Errorf("%s for %s after %d retries: %w",
			PermanentFailureError, m.cfg.Name, m.policy.ConsecutiveFailures(), m.lastError)
	}

	if !m.policy.ShouldRetry(now) {
		return fmt.Errorf("%s for %s: retry in %s: %w",
			TemporaryBackoffError, m.cfg.Name, m.policy.NextRetryIn(now), m.lastError)
	}

	return nil
}

// Reset clears the error state and the backoff sequence after a success.
func (m *BackoffManager) Reset() {
	m.lastError = nil
	m.permanentlyFailed = false
	m.policy.Reset()
}

// GetLastError returns the most recent recorded error.
func (m *BackoffManager) GetLastError() error {
	return m.lastError
}

// IsPermanentlyFailed returns true once the retry budget has been exhausted.
func (m *BackoffManager) IsPermanentlyFailed() bool {
	return m.permanentlyFailed
}

// Policy exposes the underlying retry policy for state snapshots.
func (m *BackoffManager) Policy() *Policy {
	return m.policy
}
