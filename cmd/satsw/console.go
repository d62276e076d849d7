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
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/satcat5/satnet/hal"
)

var consoleBaudFlag int

func init() {
	cmd := &cobra.Command{
		Use:   "console <device>",
		Short: "Open a raw passthrough terminal to a switch port's serial console",
		Args:  cobra.ExactArgs(1),
		RunE:  runConsole,
	}
	cmd.Flags().IntVar(&consoleBaudFlag, "baud", 115200, "baud rate")
	RootCmd.AddCommand(cmd)
}

// runConsole bridges stdin/stdout to a raw serial device. It does not
// touch a running satsw daemon's state; the device must not be in use
// by a configured switch port at the same time.
func runConsole(cmd *cobra.Command, args []string) error {
	device := args[0]

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	port, err := hal.OpenSerialPort(device, consoleBaudFlag)
	if err != nil {
		return fmt.Errorf("opening %s: %w", device, err)
	}
	defer port.Close()

	fmt.Fprintf(os.Stderr, "connected to %s, press ctrl-] to exit\r\n", device)

	done := make(chan struct{})
	go consoleInputLoop(port, done)
	consoleOutputLoop(port, done)
	return nil
}

func consoleInputLoop(port *hal.SerialPort, done chan struct{}) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			close(done)
			return
		}
		if n == 0 {
			continue
		}
		if buf[0] == 0x1d { // ctrl-]
			close(done)
			return
		}
		if port.GetWriteSpace() > 0 {
			port.WriteBytes(buf[:n])
			port.WriteFinalize()
		}
	}
}

func consoleOutputLoop(port *hal.SerialPort, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		n := port.GetReadReady()
		if n == 0 {
			continue
		}
		buf := make([]byte, n)
		port.ReadBytes(buf)
		port.ReadFinalize()
		if _, err := os.Stdout.Write(buf); err != nil {
			return
		}
	}
}
