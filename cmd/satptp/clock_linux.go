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

//go:build linux

package main

import (
	"golang.org/x/sys/unix"

	"github.com/satcat5/satnet/hal"
	"github.com/satcat5/satnet/ptp"
)

// newTrackingClock disciplines the host's own CLOCK_REALTIME on Linux,
// unless phcIface names a network interface with a PTP Hardware Clock,
// in which case that hardware clock is disciplined instead.
func newTrackingClock(phcIface string) (ptp.TrackingClock, error) {
	if phcIface != "" {
		return hal.NewPHCClock(phcIface)
	}
	return hal.NewPosixClock(unix.CLOCK_REALTIME), nil
}
