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

// Package transport declares the narrow interfaces through which the control
// plane talks to the radio/link and socket drivers. The drivers themselves
// live outside this repository; everything here is non-blocking by contract.
package transport

import "time"

// LinkQuality describes the current radio link.
type LinkQuality struct {
	// Strength is a normalized signal strength, 0-100.
	Strength int
	// LatencyEstimate is the driver's current round-trip estimate.
	LatencyEstimate time.Duration
}

// Link reports the state of the wireless link.
type Link interface {
	// IsUp reports whether the device has joined a network.
	IsUp() bool

	// Quality returns the current link quality. Only meaningful while the
	// link is up.
	Quality() LinkQuality
}

// Socket is a single non-blocking stream connection to the remote endpoint.
type Socket interface {
	// Connect performs exactly one non-blocking connection attempt and
	// reports whether it succeeded. It never retries internally.
	Connect(host string, port int) bool

	// IsConnected reports the actual state of the underlying socket.
	IsConnected() bool

	// Send writes as much of b as the socket accepts and returns the number
	// of bytes written. Partial writes are expected; chunking is the
	// caller's job.
	Send(b []byte) (int, error)

	// Close tears the connection down.
	Close() error
}
