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

// Package router2 implements a software IPv4 router: one Dispatch
// serving several Ports, each its own Ethernet interface with a locally
// attached subnet, routing transit traffic through a shared ip::Table.
package router2

import (
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
)

// Port is one routed interface: an Ethernet link with its own address,
// locally attached subnet, and ARP resolver.
type Port struct {
	Index    int
	Eth      *eth.Dispatch
	Arp      *eth.ProtoArp
	SelfIP   ipv4.Address
	Subnet   ipv4.Subnet
	Disabled bool
}

// NewPort builds a Port bound to e, answering ARP as selfIP, within the
// attached subnet. The caller must separately register the returned
// Port's Arp with e for EtherTypeARP, and the Dispatch registers itself
// for EtherTypeIPv4 via AddPort.
func NewPort(index int, e *eth.Dispatch, selfIP ipv4.Address, subnet ipv4.Subnet, clk polling.TimeRef) *Port {
	arp := eth.NewProtoArp(e, uint32(selfIP), clk)
	e.Register(eth.Type{Etype: eth.EtherTypeARP}, arp)
	return &Port{Index: index, Eth: e, Arp: arp, SelfIP: selfIP, Subnet: subnet}
}
