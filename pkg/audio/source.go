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

// Package audio declares the capture-side collaborator interface. The
// control plane never inspects sample content; it only tracks read
// success/failure for health scoring.
package audio

import "errors"

// ErrMockReadFailed is returned by MockSource.ReadSamples when failure is
// injected.
var ErrMockReadFailed = errors.New("mock audio read failed")

// Source delivers captured audio samples.
type Source interface {
	// ReadSamples fills buf with captured samples and returns the number of
	// bytes written. It never blocks; a short read means no more data is
	// available this tick.
	ReadSamples(buf []byte) (int, error)
}

// MockSource is a controllable Source for tests and simulation runs.
type MockSource struct {
	// ChunkSize is the number of bytes returned per read.
	ChunkSize int
	// FailReads makes ReadSamples return ErrMockReadFailed.
	FailReads bool

	Reads int
}

// NewMockSource returns a source that produces 512-byte chunks.
func NewMockSource() *MockSource {
	return &MockSource{ChunkSize: 512}
}

// ReadSamples implements Source.
func (m *MockSource) ReadSamples(buf []byte) (int, error) {
	m.Reads++

	if m.FailReads {
		return 0, ErrMockReadFailed
	}

	n := m.ChunkSize
	if n > len(buf) {
		n = len(buf)
	}

	return n, nil
}
