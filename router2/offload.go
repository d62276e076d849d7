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

package router2

import (
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
)

// Offload is implemented by a gateware router's register-mapped packet
// I/O, letting the same Dispatch pipeline be fed by hardware ports
// instead of (or alongside) software Ports. No implementation ships in
// this module — see DESIGN.md — since nothing in this environment
// exposes a memory-mapped packet engine to drive one against.
type Offload interface {
	// ReadRegister returns the value of a hardware register at addr.
	ReadRegister(addr uint32) (uint32, error)
	// WriteRegister writes val to the hardware register at addr.
	WriteRegister(addr uint32, val uint32) error
}

// HWTable mirrors the software routing table into a memory-mapped
// hardware table, so a gateware router's own forwarding fast path stays
// consistent with ip::Table.
type HWTable interface {
	// SyncRoute pushes one route down to the hardware table.
	SyncRoute(r ipv4.Route) error
	// SyncFlush clears the hardware table's learned (non-static) entries.
	SyncFlush() error
}

// TableSync keeps a HWTable's contents mirroring a software ip::Table by
// replaying every RouteCache/SetGateway/RouteFlush call made through it.
// Embed *ipv4.Table access through this wrapper wherever a hardware
// mirror must stay current; callers that don't need hardware sync can
// keep using *ipv4.Table directly.
type TableSync struct {
	sw *ipv4.Table
	hw HWTable
}

// NewTableSync pairs a software table with its hardware mirror.
func NewTableSync(sw *ipv4.Table, hw HWTable) *TableSync {
	return &TableSync{sw: sw, hw: hw}
}

// RouteCache updates the software table and mirrors the result to
// hardware for the one route now covering gateway, if any.
func (t *TableSync) RouteCache(gateway ipv4.Address, mac eth.MACAddr) {
	t.sw.RouteCache(gateway, mac)
	if r, ok := t.sw.RouteLookup(gateway); ok {
		t.hw.SyncRoute(r)
	}
}

// Flush clears the software table's MAC cache and the hardware mirror.
func (t *TableSync) Flush() {
	t.sw.RouteFlush()
	t.hw.SyncFlush()
}
