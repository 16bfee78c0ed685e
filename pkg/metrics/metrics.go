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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/logger"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "cradlecast"
	subsystem = "core"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component"},
	)

	// Tick timing.
	tickTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_milliseconds",
			Help:      "Time taken by one scheduler tick (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.95: 0.01,
				0.99: 0.01,
			},
		},
		[]string{"component"},
	)

	// Starvation timer.
	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_starved_total_seconds",
			Help:      "Total seconds the scheduler loop was starved",
		},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total number of system state transitions by source, target and reason",
		},
		[]string{"from", "to", "reason"},
	)

	currentState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "system_state",
			Help:      "Current system state (0=Initializing, 1=JoiningNetwork, 2=ReachingEndpoint, 3=Streaming, 4=Disconnected, 5=Error, 6=Maintenance)",
		},
	)

	eventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Total number of events accepted by the event bus",
		},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped by the event bus, by cause",
		},
		[]string{"cause"},
	)

	degradationMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "degradation_mode",
			Help:      "Current degradation mode (0=Normal, 1=ReducedQuality, 2=Safe, 3=Recovery)",
		},
	)

	healthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_score",
			Help:      "Rolling system health score (0-100)",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=Closed, 1=Open, 2=HalfOpen)",
		},
		[]string{"name"},
	)

	recoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recovery_attempts_total",
			Help:      "Total number of recovery actions executed, by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
)

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.For("metrics").Errorf("Metrics endpoint failed: %v", err)
		}
	}()

	return server
}

// IncErrorCountAndLog increments the error counter for a component and logs a debug message if a logger is provided.
func IncErrorCountAndLog(component string, err error, log *zap.SugaredLogger) {
	IncErrorCount(component)

	if log != nil {
		log.Debugf("Component %s failed: %v", component, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component string) {
	errorCounter.WithLabelValues(component).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component string) {
	errorCounter.WithLabelValues(component).Add(0)
}

// ObserveTickTime records the time taken by one tick of a component.
func ObserveTickTime(component string, duration time.Duration) {
	tickTime.WithLabelValues(component).Observe(float64(duration.Milliseconds()))
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}

// RecordStateTransition counts one system state transition.
func RecordStateTransition(from, to, reason string) {
	stateTransitions.WithLabelValues(from, to, reason).Inc()
}

// SetCurrentState publishes the numeric value of the current system state.
func SetCurrentState(state int) {
	currentState.Set(float64(state))
}

// RecordEventPublished counts one accepted event.
func RecordEventPublished() {
	eventsPublished.Inc()
}

// RecordEventDropped counts one dropped event with its cause
// (queue_full, stale or handler_panic).
func RecordEventDropped(cause string) {
	eventsDropped.WithLabelValues(cause).Inc()
}

// SetDegradationMode publishes the numeric value of the degradation mode.
func SetDegradationMode(mode int) {
	degradationMode.Set(float64(mode))
}

// SetHealthScore publishes the rolling health score.
func SetHealthScore(score int) {
	healthScore.Set(float64(score))
}

// SetBreakerState publishes the state of a named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRecoveryAttempt counts one executed recovery action.
func RecordRecoveryAttempt(strategy string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}

	recoveryAttempts.WithLabelValues(strategy, outcome).Inc()
}
