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
	// DefaultBackoffMinDelay is the first retry delay after a failed
	// connection attempt.
	DefaultBackoffMinDelay = 1 * time.Second

	// DefaultBackoffMaxDelay caps the exponential retry delay.
	DefaultBackoffMaxDelay = 60 * time.Second

	// DefaultBackoffJitterPercent is the bounded random perturbation applied
	// to every computed delay to avoid thundering-herd reconnects.
	DefaultBackoffJitterPercent = 20

	// DefaultBackoffMaxRetries is the number of consecutive transient
	// failures after which an operation is escalated to a permanent failure.
	DefaultBackoffMaxRetries = 10
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// trips a circuit breaker open.
	DefaultFailureThreshold = 5

	// DefaultSuccessThreshold is the number of consecutive half-open probe
	// successes required to close a circuit breaker again.
	DefaultSuccessThreshold = 2

	// DefaultRecoveryTimeout is how long an open circuit breaker rejects
	// attempts before allowing a half-open probe.
	DefaultRecoveryTimeout = 60 * time.Second
)
