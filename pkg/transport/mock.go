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

package transport

import "errors"

// ErrMockSendFailed is returned by MockSocket.Send when failure is injected.
var ErrMockSendFailed = errors.New("mock send failed")

// MockLink is a controllable Link for tests and simulation runs.
type MockLink struct {
	Up          bool
	LinkQuality LinkQuality
}

// NewMockLink returns a link that is down with zero quality.
func NewMockLink() *MockLink {
	return &MockLink{}
}

// IsUp implements Link.
func (m *MockLink) IsUp() bool {
	return m.Up
}

// Quality implements Link.
func (m *MockLink) Quality() LinkQuality {
	return m.LinkQuality
}

// MockSocket is a controllable Socket for tests and simulation runs.
type MockSocket struct {
	// ConnectResult is returned by the next Connect call.
	ConnectResult bool
	// Connected is the state reported by IsConnected. Connect sets it on
	// success; tests may flip it directly to simulate a dead peer.
	Connected bool
	// FailSends makes Send return ErrMockSendFailed.
	FailSends bool

	ConnectAttempts int
	BytesSent       int

	Host string
	Port int
}

// NewMockSocket returns a disconnected socket whose attempts fail.
func NewMockSocket() *MockSocket {
	return &MockSocket{}
}

// Connect implements Socket.
func (m *MockSocket) Connect(host string, port int) bool {
	m.ConnectAttempts++
	m.Host = host
	m.Port = port

	if m.ConnectResult {
		m.Connected = true
	}

	return m.ConnectResult
}

// IsConnected implements Socket.
func (m *MockSocket) IsConnected() bool {
	return m.Connected
}

// Send implements Socket.
func (m *MockSocket) Send(b []byte) (int, error) {
	if !m.Connected {
		return 0, ErrMockSendFailed
	}

	if m.FailSends {
		return 0, ErrMockSendFailed
	}

	m.BytesSent += len(b)

	return len(b), nil
}

// Close implements Socket.
func (m *MockSocket) Close() error {
	m.Connected = false
	return nil
}
