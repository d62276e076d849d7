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

package main

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satcat5/satnet/config"
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/hal"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/ptp"
)

var runDevice string
var runBaud int
var runPHCIface string

// supportedProfileRange bounds the PTP profile/edition versions this
// daemon understands, following the Calnex firmware upgrader's
// version-gating pattern (compare a parsed version against a
// constraint before proceeding) rather than a bare string-equality check.
const supportedProfileRange = ">= 2.0, < 3.0"

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the PTP client in the foreground",
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&runDevice, "device", "", "serial device carrying the PTP link (overrides config iface)")
	cmd.Flags().IntVar(&runBaud, "baud", 115200, "baud rate for the serial port")
	cmd.Flags().StringVar(&runPHCIface, "phc-iface", "", "network interface whose PTP Hardware Clock should be disciplined (default: host CLOCK_REALTIME)")
	RootCmd.AddCommand(cmd)
}

func validateProfile(profile string) error {
	if profile == "" {
		return nil
	}
	v, err := version.NewVersion(profile)
	if err != nil {
		return fmt.Errorf("profile %q is not a version string: %w", profile, err)
	}
	constraints, err := version.NewConstraint(supportedProfileRange)
	if err != nil {
		return err
	}
	if !constraints.Check(v) {
		return fmt.Errorf("profile %q does not satisfy %s", profile, supportedProfileRange)
	}
	return nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	cfg, err := config.ReadPtpNodeConfig(rootConfigFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl, lerr := log.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(lvl)
	}
	if err := validateProfile(cfg.PTP.Profile); err != nil {
		return err
	}

	device := cfg.PTP.Iface
	if runDevice != "" {
		device = runDevice
	}
	selfMAC, err := cfg.PTP.ResolveMAC()
	if err != nil {
		return fmt.Errorf("ptp self_mac: %w", err)
	}

	serial, err := hal.OpenSerialPort(device, runBaud)
	if err != nil {
		return fmt.Errorf("opening %s: %w", device, err)
	}
	sp := hal.NewSlipPort(serial, 1<<16, 1600)
	ed := eth.NewDispatch(selfMAC, sp.Rx(), sp)

	pollClk := hal.NewHostClock()
	trackClk, clockErr := newTrackingClock(runPHCIface)
	if clockErr != nil {
		log.WithError(clockErr).Warn("falling back to a simulated tracking clock")
	}

	tc := ptp.NewTrackingController(trackClk)

	// NewEthPort needs a recv callback before the Client it feeds exists,
	// and Client needs the Port NewEthPort returns: close the loop with
	// an indirection that only has to be valid once frames start
	// arriving, well after client is assigned below.
	var client *ptp.Client
	port := ptp.NewEthPort(ed, eth.VlanNone, func(hdr ptp.Header, raw []byte) {
		client.HandleFrame(hdr, raw)
	})
	client = ptp.NewClient(port, trackClk, tc, pollClk, delayIntervalOrDefault(cfg.PTP.DelayReqMs))

	loop := polling.NewLoop()
	loop.AddAlways(&ethPoller{src: sp.Rx(), disp: ed})
	loop.AddAlways(sp)
	loop.AddAlways(client)

	if supported, serr := daemon.SdNotify(false, daemon.SdNotifyReady); serr != nil {
		log.WithError(serr).Warn("sd_notify failed")
	} else if !supported {
		log.Debug("sd_notify not supported (NOTIFY_SOCKET unset)")
	}

	log.Infof("satptp running on %s, domain %d", device, cfg.PTP.Domain)
	loop.Run(nil)
	return nil
}

func delayIntervalOrDefault(msec uint32) uint32 {
	if msec == 0 {
		return 1000
	}
	return msec
}

// ethPoller drains one eth.Dispatch against a polling.Loop, mirroring
// satrt's own adapter: Dispatch.DataRcvd processes a single frame per
// call rather than self-scheduling.
type ethPoller struct {
	src  interface{ GetReadReady() int }
	disp *eth.Dispatch
}

func (p *ethPoller) PollAlways() {
	for p.src.GetReadReady() > 0 {
		p.disp.DataRcvd()
	}
}
