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

// Package switchcore implements a managed L2 Ethernet switch: a set of
// ports bound to Readable/Writeable adapters, a chain of plugins that
// classify each ingress frame (MAC learning, VLAN policy), and a
// forwarding step that copies the frame to every port in the resulting
// destination mask.
package switchcore

import "github.com/satcat5/satnet/eth"

// PortMask is a bitmask over the switch's ports; bit i corresponds to
// port index i. A SwitchCore supports up to 32 ports.
type PortMask uint32

// Bit returns the mask bit for port index i.
func Bit(i int) PortMask { return PortMask(1) << uint(i) }

// MaskAll is every bit up to n ports set.
func MaskAll(n int) PortMask {
	if n >= 32 {
		return ^PortMask(0)
	}
	return PortMask(1)<<uint(n) - 1
}

// Reason is the per-frame disposition recorded in a LogMessage.
type Reason uint8

const (
	ReasonKeep           Reason = iota // forwarded per DstMask
	ReasonDropPortDown                 // ingress or all egress ports disabled
	ReasonDropVlan                     // no VLAN member ports remain after masking
	ReasonDropNoDst                    // DstMask empty after all plugins ran
	ReasonDropSwitchCtrl               // reserved 01:80:C2:00:00:00/40 destination
	ReasonDropRateLimit                // rate-limit plugin rejected the frame
	ReasonDropMalformed                // header too short / truncated frame
)

func (r Reason) String() string {
	switch r {
	case ReasonKeep:
		return "KEEP"
	case ReasonDropPortDown:
		return "DROP_PORT_DOWN"
	case ReasonDropVlan:
		return "DROP_VLAN"
	case ReasonDropNoDst:
		return "DROP_NO_DST"
	case ReasonDropSwitchCtrl:
		return "DROP_SWITCH_CTRL"
	case ReasonDropRateLimit:
		return "DROP_RATE_LIMIT"
	case ReasonDropMalformed:
		return "DROP_MALFORMED"
	default:
		return "DROP_UNKNOWN"
	}
}

// FrameContext is the mutable classification state threaded through the
// plugin chain for one ingress frame. Plugins narrow DstMask (never
// widen it beyond what an earlier plugin allowed) and may adjust VLAN
// tag or priority before the frame is re-emitted.
type FrameContext struct {
	SrcPort  int
	Header   eth.Header
	DstMask  PortMask
	Reason   Reason
	Hairpin  bool // forward back out the ingress port too (rare; default false)
}

// PluginCore is implemented by anything in a SwitchCore's ingress
// pipeline. Ingress is called once per frame, in registration order;
// a plugin signals "drop" by zeroing ctx.DstMask and setting ctx.Reason.
type PluginCore interface {
	Ingress(ctx *FrameContext, payload []byte)
}

// PluginFunc adapts a function to PluginCore.
type PluginFunc func(ctx *FrameContext, payload []byte)

// Ingress implements PluginCore.
func (f PluginFunc) Ingress(ctx *FrameContext, payload []byte) { f(ctx, payload) }
