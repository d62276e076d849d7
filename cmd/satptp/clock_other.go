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

//go:build !linux

package main

import (
	"fmt"
	"time"

	"github.com/satcat5/satnet/ptp"
)

// newTrackingClock falls back to a SimClock tied to the host's wall
// clock on platforms with no clock_adjtime(2) equivalent wired up yet.
// Its ClockAdjust/ClockRate calls are recorded but never applied to any
// real oscillator, so tracking runs open-loop off whatever the OS clock
// already reads. phcIface is accepted only to match the linux build's
// signature; hardware PHC access isn't available here.
func newTrackingClock(phcIface string) (ptp.TrackingClock, error) {
	return ptp.NewSimClock(func() ptp.Time {
		now := time.Now()
		return ptp.Time{Sec: now.Unix(), Nanosec: uint32(now.Nanosecond())}
	}), fmt.Errorf("no hardware clock discipline available on this platform")
}
