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
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satcat5/satnet/config"
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/hal"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/router2"
)

var runBaud int
var runMaxEphemeral int

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the router daemon in the foreground",
		RunE:  runRun,
	}
	cmd.Flags().IntVar(&runBaud, "baud", 115200, "baud rate for every configured serial port")
	cmd.Flags().IntVar(&runMaxEphemeral, "max-ephemeral-routes", 64, "bound on ARP-learned routing table entries")
	RootCmd.AddCommand(cmd)
}

// ethPoller drains one eth.Dispatch against a polling.Loop, since
// Dispatch.DataRcvd processes a single frame per call rather than
// self-scheduling.
type ethPoller struct {
	src  interface{ GetReadReady() int }
	disp *eth.Dispatch
}

func (p *ethPoller) PollAlways() {
	for p.src.GetReadReady() > 0 {
		p.disp.DataRcvd()
	}
}

func buildRouter(cfg *config.RouterConfig, open func(device string, baud int) (*hal.SerialPort, error), baud int) (*router2.Dispatch, []polling.Always, error) {
	clk := hal.NewHostClock()
	table := ipv4.NewTable(runMaxEphemeral)
	for _, rc := range cfg.Routes {
		route, err := rc.Resolve()
		if err != nil {
			return nil, nil, err
		}
		table.AddStatic(route)
	}

	rtr := router2.NewDispatch(table, clk)
	var always []polling.Always

	for _, pc := range cfg.Ports {
		selfIP, subnet, selfMAC, err := pc.Resolve()
		if err != nil {
			return nil, nil, err
		}
		serial, err := open(pc.Name, baud)
		if err != nil {
			return nil, nil, fmt.Errorf("opening port %s: %w", pc.Name, err)
		}
		sp := hal.NewSlipPort(serial, 1<<16, 1600)
		always = append(always, sp)

		ed := eth.NewDispatch(selfMAC, sp.Rx(), sp)
		port := router2.NewPort(pc.Index, ed, selfIP, subnet, clk)
		port.Disabled = pc.Disabled
		rtr.AddPort(port)

		always = append(always, &ethPoller{src: sp.Rx(), disp: ed})
	}

	return rtr, always, nil
}

func openRealSerial(device string, baud int) (*hal.SerialPort, error) {
	return hal.OpenSerialPort(device, baud)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	cfg, err := config.ReadRouterConfig(rootConfigFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl, lerr := log.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(lvl)
	}

	rtr, always, err := buildRouter(cfg, openRealSerial, runBaud)
	if err != nil {
		return err
	}

	loop := polling.NewLoop()
	loop.AddAlways(rtr)
	for _, a := range always {
		loop.AddAlways(a)
	}

	if supported, serr := daemon.SdNotify(false, daemon.SdNotifyReady); serr != nil {
		log.WithError(serr).Warn("sd_notify failed")
	} else if !supported {
		log.Debug("sd_notify not supported (NOTIFY_SOCKET unset)")
	}

	log.Infof("satrt running with %d ports", len(cfg.Ports))
	loop.Run(nil)
	return nil
}
