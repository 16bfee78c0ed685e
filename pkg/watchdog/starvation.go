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

package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
)

// StarvationChecker detects periods when the tick loop stops running. It is
// the one component with its own goroutine: a fully wedged loop cannot report
// its own starvation.
//
// The loop calls MarkTick once per tick; the background goroutine compares
// the last mark against the threshold every second and reports starvation
// through metrics and logs.
type StarvationChecker struct {
	lastTickTime time.Time
	threshold    time.Duration

	ctx    context.Context //nolint:containedctx // background service lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mutex  sync.RWMutex

	logger *zap.SugaredLogger
}

// NewStarvationChecker creates a checker and starts its background goroutine.
// Call Stop during shutdown.
func NewStarvationChecker(threshold time.Duration) *StarvationChecker {
	ctx, cancel := context.WithCancel(context.Background())

	s := &StarvationChecker{
		lastTickTime: time.Now(),
		threshold:    threshold,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.For(logger.ComponentStarvationChecker),
	}

	s.wg.Add(1)

	go s.checkLoop()

	s.logger.Infof("Starvation checker started with threshold %s", threshold)

	return s
}

func (s *StarvationChecker) checkLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mutex.RLock()
			sinceLastTick := time.Since(s.lastTickTime)
			s.mutex.RUnlock()

			if sinceLastTick > s.threshold {
				starved := sinceLastTick.Seconds()
				metrics.AddStarvationTime(starved)
				s.logger.Warnf("Control loop starvation detected: %.2f seconds since last tick", starved)
			}
		}
	}
}

// MarkTick records that the tick loop is alive. Called once per tick.
func (s *StarvationChecker) MarkTick() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastTickTime = time.Now()
}

// LastTickTime returns the time of the most recent mark.
func (s *StarvationChecker) LastTickTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastTickTime
}

// Stop terminates the background goroutine and waits for it to exit.
func (s *StarvationChecker) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Starvation checker stopped")
}
