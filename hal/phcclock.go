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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/phc"
	"github.com/satcat5/satnet/ptp"
)

// PHCClock disciplines a network interface's PTP Hardware Clock (PHC)
// instead of the host's CLOCK_REALTIME, so a NIC with hardware
// timestamping can be the reference a ptp.TrackingController steers.
// It reuses PosixClock's clock_adjtime(2) plumbing against the PHC's
// dynamic clock id, overriding only ClockNow to read the PHC device
// directly rather than through clock_gettime on that id.
type PHCClock struct {
	*PosixClock
	dev *phc.Device
}

// NewPHCClock opens the PHC device backing iface and returns a
// PHCClock wrapping it. The returned clock keeps the device file open
// for its lifetime; call Close when done, since the dynamic clock id
// stops resolving once the file descriptor is gone.
func NewPHCClock(iface string) (*PHCClock, error) {
	device, err := phc.IfaceToPHCDevice(iface)
	if err != nil {
		return nil, fmt.Errorf("resolving PHC for %s: %w", iface, err)
	}
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	dev := phc.FromFile(f)
	return &PHCClock{PosixClock: NewPosixClock(dev.ClockID()), dev: dev}, nil
}

// ClockNow implements ptp.TrackingClock, reading the PHC device's own
// clock_gettime result rather than going back through the dynamic
// clock id PosixClock holds.
func (c *PHCClock) ClockNow() ptp.Time {
	t, err := c.dev.Time()
	if err != nil {
		log.WithField("err", err.Error()).Debug("hal: phc read failed")
		return ptp.Time{}
	}
	return ptp.Time{Sec: t.Unix(), Nanosec: uint32(t.Nanosecond())}
}

// Close releases the underlying PHC device file.
func (c *PHCClock) Close() error { return c.dev.File().Close() }
