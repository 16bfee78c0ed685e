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

package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
)

// Store persists encoded snapshots. Implementations must tolerate frequent
// small writes; flash-backed stores should write atomically.
type Store interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// FileStore persists snapshots to a single file, written atomically via a
// temp file and rename.
type FileStore struct {
	Path string
}

// Save implements Store.
func (f *FileStore) Save(data []byte) error {
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replacing snapshot file: %w", err)
	}

	return nil
}

// Load implements Store.
func (f *FileStore) Load() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// NewFileStore creates a file-backed store, creating the parent directory if
// needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	return &FileStore{Path: path}, nil
}

// Persister rate-limits snapshot writes to the store. Flash wear is the
// constraint: at most one write per minimum interval, whatever the tick rate.
type Persister struct {
	store       Store
	minInterval time.Duration
	lastPersist time.Time

	logger *zap.SugaredLogger
	now    func() time.Time
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) PersisterOption {
	return func(p *Persister) {
		p.now = now
	}
}

// WithMinInterval overrides the minimum time between writes.
func WithMinInterval(d time.Duration) PersisterOption {
	return func(p *Persister) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

// NewPersister creates a persister writing to store.
func NewPersister(store Store, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:       store,
		minInterval: constants.SnapshotMinInterval,
		logger:      logger.For(logger.ComponentSnapshot),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// MaybePersist writes s if the minimum interval since the last write has
// elapsed. Returns true when a write happened.
func (p *Persister) MaybePersist(s Snapshot) bool {
	now := p.now()
	if !p.lastPersist.IsZero() && now.Sub(p.lastPersist) < p.minInterval {
		return false
	}

	if err := p.Persist(s); err != nil {
		p.logger.Warnf("Persisting snapshot: %v", err)

		return false
	}

	p.lastPersist = now

	return true
}

// Persist writes s to the store immediately, bypassing the rate limit. Used
// on shutdown.
func (p *Persister) Persist(s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	return p.store.Save(data)
}

// Restore loads the last persisted snapshot; ok is false when nothing valid
// has been stored. A corrupt snapshot is discarded, never trusted.
func (p *Persister) Restore() (Snapshot, bool) {
	data, err := p.store.Load()
	if err != nil {
		return Snapshot{}, false
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		p.logger.Warnf("Discarding corrupt snapshot: %v", err)

		return Snapshot{}, false
	}

	return s, true
}
