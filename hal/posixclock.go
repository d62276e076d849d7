//go:build linux

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

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/satcat5/satnet/clock"
	"github.com/satcat5/satnet/ptp"
)

// PosixClock drives a real adjustable POSIX clock (unix.CLOCK_REALTIME, or
// a PHC's dynamic clock id from phc.FDToClockID) through clock_adjtime(2),
// built on this codebase's own clock package, and implements
// ptp.TrackingClock so a ptp.TrackingController can discipline real
// hardware instead of ptp.SimClock. Available only on linux, where
// clock_adjtime is defined; every other platform uses SimClock.
type PosixClock struct {
	id   int32
	rate int64
}

// NewPosixClock builds a PosixClock for the given clock id.
func NewPosixClock(id int32) *PosixClock { return &PosixClock{id: id} }

// ClockNow implements ptp.TrackingClock.
func (c *PosixClock) ClockNow() ptp.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(c.id, &ts); err != nil {
		log.WithField("err", err.Error()).Debug("hal: clock_gettime failed")
		return ptp.Time{}
	}
	return ptp.Time{Sec: int64(ts.Sec), Nanosec: uint32(ts.Nsec)}
}

// ClockAdjust implements ptp.TrackingClock: steps the clock by amount
// nanoseconds via clock.Step, which always applies the whole requested
// offset, so the residual is zero unless the adjtime syscall itself fails
// — in which case the full amount is reported back as unapplied.
func (c *PosixClock) ClockAdjust(amount int64) int64 {
	if _, err := clock.Step(c.id, time.Duration(amount)); err != nil {
		log.WithField("err", err.Error()).Debug("hal: clock step failed")
		return amount
	}
	return 0
}

// ClockRate implements ptp.TrackingClock. offset is in the
// ptp.RateOnePPB scale; clock.AdjFreqPPB takes plain parts-per-billion.
func (c *PosixClock) ClockRate(offset int64) {
	ppb := float64(offset) / float64(ptp.RateOnePPB)
	if _, err := clock.AdjFreqPPB(c.id, ppb); err != nil {
		log.WithField("err", err.Error()).Debug("hal: clock frequency adjust failed")
		return
	}
	c.rate = offset
}

// GetRate implements ptp.TrackingClock.
func (c *PosixClock) GetRate() int64 { return c.rate }
