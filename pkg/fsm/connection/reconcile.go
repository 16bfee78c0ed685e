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

package connection

import (
	"context"
	"time"
)

// Reconcile compares the machine's claimed state against the observed socket
// state and performs at most one corrective step. It returns true when a
// divergence was found and corrected. Called once per tick by the scheduler.
func (i *Instance) Reconcile(ctx context.Context, now time.Time) bool {
	switch {
	case i.fsm.Is(StateEstablished) && !i.socket.IsConnected():
		// The socket died underneath us without a send failing first.
		i.logger.Warnf("Divergence: established but socket is down, marking lost")
		i.MarkLost(ctx, now)

		return true

	case i.fsm.Is(StateIdle) && i.socket.IsConnected():
		// A stale socket from before a close. The machine is authoritative:
		// tear the socket down rather than adopting the connection.
		i.logger.Warnf("Divergence: idle but socket is connected, closing socket")

		if err := i.socket.Close(); err != nil {
			i.logger.Errorf("Closing stale socket: %v", err)
		}

		return true
	}

	return false
}
