/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hal

import (
	"time"

	"github.com/satcat5/satnet/polling"
)

// HostClock is a polling.TimeRef backed by the host's own monotonic
// clock, for daemons that run under a real OS scheduler rather than on
// embedded hardware with a fixed tick source. It ticks in microseconds,
// which comfortably satisfies the [1kHz, 1GHz] range polling.TimeRef
// requires.
type HostClock struct {
	start time.Time
}

// NewHostClock builds a HostClock with its epoch at the current instant.
func NewHostClock() *HostClock {
	return &HostClock{start: time.Now()}
}

// Now implements polling.TimeRef.
func (h *HostClock) Now() uint32 {
	return uint32(time.Since(h.start).Microseconds())
}

// TicksPerSecond implements polling.TimeRef.
func (h *HostClock) TicksPerSecond() uint32 { return 1_000_000 }

var _ polling.TimeRef = (*HostClock)(nil)
