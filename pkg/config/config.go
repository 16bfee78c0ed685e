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

// Package config loads the YAML device configuration. Every field has a
// compiled-in default; an empty file is a valid configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
)

// EndpointConfig identifies the remote streaming endpoint.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackoffConfig tunes connection retry pacing.
type BackoffConfig struct {
	MinDelay      time.Duration `yaml:"minDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	JitterPercent int           `yaml:"jitterPercent"`
	MaxRetries    uint32        `yaml:"maxRetries"`
}

// BreakerConfig tunes the recovery circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failureThreshold"`
	SuccessThreshold uint32        `yaml:"successThreshold"`
	RecoveryTimeout  time.Duration `yaml:"recoveryTimeout"`
}

// DegradationConfig tunes the health-score thresholds.
type DegradationConfig struct {
	DegradeThreshold int           `yaml:"degradeThreshold"`
	SafeThreshold    int           `yaml:"safeThreshold"`
	RestoreThreshold int           `yaml:"restoreThreshold"`
	DwellTime        time.Duration `yaml:"dwellTime"`
}

// StateDurationsConfig overrides per-state maximum durations. Zero keeps the
// compiled-in default; an explicit negative disables the timeout.
type StateDurationsConfig struct {
	Initializing     time.Duration `yaml:"initializing"`
	JoiningNetwork   time.Duration `yaml:"joiningNetwork"`
	ReachingEndpoint time.Duration `yaml:"reachingEndpoint"`
	Disconnected     time.Duration `yaml:"disconnected"`
	Error            time.Duration `yaml:"error"`
}

// Config is the full device configuration.
type Config struct {
	Endpoint       EndpointConfig       `yaml:"endpoint"`
	TickInterval   time.Duration        `yaml:"tickInterval"`
	Backoff        BackoffConfig        `yaml:"backoff"`
	Breaker        BreakerConfig        `yaml:"breaker"`
	Degradation    DegradationConfig    `yaml:"degradation"`
	StateDurations StateDurationsConfig `yaml:"stateDurations"`

	MetricsAddress string `yaml:"metricsAddress"`
	SnapshotPath   string `yaml:"snapshotPath"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// DefaultConfig returns the compiled-in configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: EndpointConfig{
			Host: "stream.cradlecast.local",
			Port: 9000,
		},
		TickInterval: constants.DefaultTickInterval,
		Backoff: BackoffConfig{
			MinDelay:      constants.DefaultBackoffMinDelay,
			MaxDelay:      constants.DefaultBackoffMaxDelay,
			JitterPercent: constants.DefaultBackoffJitterPercent,
			MaxRetries:    constants.DefaultBackoffMaxRetries,
		},
		Breaker: BreakerConfig{
			FailureThreshold: constants.DefaultFailureThreshold,
			SuccessThreshold: constants.DefaultSuccessThreshold,
			RecoveryTimeout:  constants.DefaultRecoveryTimeout,
		},
		Degradation: DegradationConfig{
			DegradeThreshold: constants.DegradeThreshold,
			SafeThreshold:    constants.SafeThreshold,
			RestoreThreshold: constants.RestoreThreshold,
			DwellTime:        constants.DegradationDwellTime,
		},
		MetricsAddress: ":8081",
		SnapshotPath:   "/var/lib/cradlecast/snapshot.json",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads the configuration from path. A missing file returns the
// defaults; a present but invalid file is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.For(logger.ComponentConfig).Infof("Config file %s not found, using defaults", path)

			return cfg, nil
		}

		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects configurations the control loop cannot run with.
func (c *Config) Validate() error {
	if c.Endpoint.Host == "" {
		return fmt.Errorf("endpoint.host must not be empty")
	}

	if c.Endpoint.Port <= 0 || c.Endpoint.Port > 65535 {
		return fmt.Errorf("endpoint.port %d out of range", c.Endpoint.Port)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tickInterval must be positive")
	}

	if c.Backoff.MinDelay <= 0 || c.Backoff.MaxDelay < c.Backoff.MinDelay {
		return fmt.Errorf("backoff delays invalid: min %s, max %s", c.Backoff.MinDelay, c.Backoff.MaxDelay)
	}

	if c.Backoff.JitterPercent < 0 || c.Backoff.JitterPercent > 100 {
		return fmt.Errorf("backoff.jitterPercent %d out of range", c.Backoff.JitterPercent)
	}

	if c.Degradation.RestoreThreshold <= c.Degradation.DegradeThreshold {
		return fmt.Errorf("degradation.restoreThreshold %d must sit above degradeThreshold %d",
			c.Degradation.RestoreThreshold, c.Degradation.DegradeThreshold)
	}

	if c.Degradation.SafeThreshold >= c.Degradation.DegradeThreshold {
		return fmt.Errorf("degradation.safeThreshold %d must sit below degradeThreshold %d",
			c.Degradation.SafeThreshold, c.Degradation.DegradeThreshold)
	}

	return nil
}
