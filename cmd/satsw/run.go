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
	"net/http"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satcat5/satnet/config"
	"github.com/satcat5/satnet/hal"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/switchcore"
)

var runMonitoringPort int
var runBaud int

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the switch daemon in the foreground",
		RunE:  runRun,
	}
	cmd.Flags().IntVar(&runMonitoringPort, "monitoring-port", 9101, "port to serve Prometheus /metrics on")
	cmd.Flags().IntVar(&runBaud, "baud", 115200, "baud rate for every configured serial port")
	RootCmd.AddCommand(cmd)
}

// buildSwitch constructs a SwitchCore and its backing SlipPorts from cfg.
// Split out from runRun so it can be exercised without opening real
// serial devices in tests (via an injected port opener).
func buildSwitch(cfg *config.SwitchConfig, open func(device string, baud int) (*hal.SerialPort, error), baud int) (*switchcore.SwitchCore, []*hal.SlipPort, error) {
	core := switchcore.NewSwitchCore()
	core.SetLogWriter(switchcore.NewLogWriter(256))

	slipPorts := make([]*hal.SlipPort, 0, len(cfg.Ports))
	for _, pc := range cfg.Ports {
		serial, err := open(pc.Name, baud)
		if err != nil {
			return nil, nil, fmt.Errorf("opening port %s (%s): %w", pc.Name, pc.Name, err)
		}
		sp := hal.NewSlipPort(serial, 1<<16, 1600)
		slipPorts = append(slipPorts, sp)

		port := switchcore.NewPort(pc.Index, sp.Rx(), sp)
		port.Disabled = pc.Disabled
		core.AddPort(port)
		core.VlanSetPVID(pc.Index, pc.NativeVlan)
		core.VlanSetPriority(pc.Index, pc.Priority)
	}

	if len(cfg.Vlans) > 0 {
		for _, vc := range cfg.Vlans {
			var mask switchcore.PortMask
			for _, idx := range vc.MemberPorts {
				mask |= switchcore.Bit(idx)
			}
			core.VlanSetMember(vc.ID, mask)
		}
	}

	return core, slipPorts, nil
}

func openRealSerial(device string, baud int) (*hal.SerialPort, error) {
	return hal.OpenSerialPort(device, baud)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	cfg, err := config.ReadSwitchConfig(rootConfigFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl, lerr := log.ParseLevel(cfg.LogLevel); lerr == nil {
		log.SetLevel(lvl)
	}

	core, slipPorts, err := buildSwitch(cfg, openRealSerial, runBaud)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	for _, c := range core.Stats().Collectors() {
		registry.MustRegister(c)
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", runMonitoringPort)
		log.Infof("serving metrics on %s/metrics", addr)
		if serr := http.ListenAndServe(addr, mux); serr != nil {
			log.WithError(serr).Error("metrics server exited")
		}
	}()

	loop := polling.NewLoop()
	loop.AddAlways(core)
	for _, sp := range slipPorts {
		loop.AddAlways(sp)
	}

	if supported, serr := daemon.SdNotify(false, daemon.SdNotifyReady); serr != nil {
		log.WithError(serr).Warn("sd_notify failed")
	} else if !supported {
		log.Debug("sd_notify not supported (NOTIFY_SOCKET unset)")
	}

	log.Infof("satsw running with %d ports", len(cfg.Ports))
	loop.Run(nil)
	return nil
}
