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

package switchcore

import (
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
)

// SwitchCore is a managed L2 Ethernet switch: a set of Ports, each polled
// for ingress frames, which are classified by a chain of PluginCores and
// then forwarded to every port set in the resulting DstMask.
type SwitchCore struct {
	ports   []*Port
	plugins []PluginCore

	vlanMembers map[uint16]PortMask // VID -> member port mask
	portPVID    map[int]uint16      // untagged-ingress VLAN per port
	permissive  bool                // true: no VLAN filtering at all

	log   *LogWriter
	stats *LogStats
}

// NewSwitchCore builds an empty switch in permissive VLAN mode (every
// port a member of every VLAN, matching a freshly reset managed switch).
func NewSwitchCore() *SwitchCore {
	return &SwitchCore{
		vlanMembers: make(map[uint16]PortMask),
		portPVID:    make(map[int]uint16),
		permissive:  true,
		stats:       NewLogStats(),
	}
}

// AddPort registers p with the switch. Ports must be added before any
// frame is processed; index collisions are the caller's error.
func (s *SwitchCore) AddPort(p *Port) {
	s.ports = append(s.ports, p)
	s.stats.ensurePort(p.Index)
}

// Use appends a plugin to the ingress classification chain, run in the
// order added. SwitchCache (MAC learning) is typically added first so
// later plugins (VLAN policy, ACLs) can see its dst_mask proposal.
func (s *SwitchCore) Use(p PluginCore) {
	s.plugins = append(s.plugins, p)
}

// SetLogWriter attaches a LogWriter that receives a LogMessage for every
// frame processed (kept or dropped). Pass nil to disable logging.
func (s *SwitchCore) SetLogWriter(w *LogWriter) { s.log = w }

// Stats returns the per-port counters accumulated so far.
func (s *SwitchCore) Stats() *LogStats { return s.stats }

// VlanReset restores permissive mode: VLAN membership is no longer
// enforced and every port can reach every other port.
func (s *SwitchCore) VlanReset() {
	s.permissive = true
	s.vlanMembers = make(map[uint16]PortMask)
	s.portPVID = make(map[int]uint16)
}

// VlanSetMember sets the member-port mask for vid, switching the switch
// out of permissive mode on first call.
func (s *SwitchCore) VlanSetMember(vid uint16, mask PortMask) {
	s.permissive = false
	s.vlanMembers[vid] = mask
}

// VlanSetPVID sets the default VLAN assigned to untagged ingress frames
// on a given port.
func (s *SwitchCore) VlanSetPVID(port int, vid uint16) {
	s.portPVID[port] = vid
}

// VlanSetPriority sets the 802.1p priority this port's own traffic is
// tagged with when it requires a VLAN tag it didn't already carry.
func (s *SwitchCore) VlanSetPriority(port int, priority uint8) {
	for _, p := range s.ports {
		if p.Index == port {
			p.priority = priority
			return
		}
	}
}

// PollAlways drains every port's pending ingress frames once. Intended
// to be registered with the cooperative scheduler's "always" poll class.
func (s *SwitchCore) PollAlways() {
	for _, p := range s.ports {
		if p.Disabled {
			continue
		}
		for p.Src.GetReadReady() > 0 {
			s.rcvd(p)
		}
	}
}

func (s *SwitchCore) pvid(port int) uint16 {
	if v, ok := s.portPVID[port]; ok {
		return v
	}
	return 0
}

func (s *SwitchCore) rcvd(p *Port) {
	raw := make([]byte, p.Src.GetReadReady())
	n := p.Src.ReadBytes(raw)
	p.Src.ReadFinalize()
	raw = raw[:n]

	s.stats.rcvd(p.Index)

	hdr, _, ok := eth.ParseHeader(raw)
	if !ok {
		s.emitLog(p.Index, eth.Header{}, ReasonDropMalformed, 0)
		s.stats.errPkt(p.Index)
		return
	}

	if hdr.Dst.IsSwitchControl() {
		s.emitLog(p.Index, hdr, ReasonDropSwitchCtrl, 0)
		return
	}

	var enabled PortMask
	for _, out := range s.ports {
		if !out.Disabled {
			enabled |= out.Mask()
		}
	}
	ctx := &FrameContext{SrcPort: p.Index, Header: hdr, DstMask: enabled}
	payload := raw[hdr.HeaderLen():]
	for _, plug := range s.plugins {
		plug.Ingress(ctx, payload)
		if ctx.DstMask == 0 {
			break
		}
	}

	if !s.permissive {
		vid := hdr.Vtag.VID
		if vid == 0 {
			vid = s.pvid(p.Index)
		}
		ctx.DstMask &= s.vlanMembers[vid]
	}

	// Never reflect a frame back out its own ingress port unless a
	// plugin explicitly asked for hairpin forwarding.
	if !ctx.Hairpin {
		ctx.DstMask &^= p.Mask()
	}

	if ctx.DstMask == 0 {
		switch {
		case enabled == 0:
			ctx.Reason = ReasonDropPortDown
		case ctx.Reason == ReasonKeep && !s.permissive:
			ctx.Reason = ReasonDropVlan
		case ctx.Reason == ReasonKeep:
			ctx.Reason = ReasonDropNoDst
		}
		s.emitLog(p.Index, hdr, ctx.Reason, 0)
		return
	}

	for _, out := range s.ports {
		if ctx.DstMask&out.Mask() == 0 || out.Disabled {
			continue
		}
		if forwardFrame(out.Dst, raw) {
			s.stats.sent(out.Index)
			if hdr.Dst.IsMulticast() {
				s.stats.bcast(out.Index)
			}
		} else {
			s.stats.errOvr(out.Index)
		}
	}
	s.emitLog(p.Index, hdr, ReasonKeep, ctx.DstMask)
}

func forwardFrame(dst stream.Writeable, raw []byte) bool {
	if dst.GetWriteSpace() < len(raw) {
		return false
	}
	dst.WriteBytes(raw)
	return dst.WriteFinalize()
}

func (s *SwitchCore) emitLog(srcPort int, hdr eth.Header, reason Reason, dstMask PortMask) {
	if s.log == nil {
		return
	}
	s.log.Record(LogMessage{
		SrcPort: srcPort,
		Header:  hdr,
		Reason:  reason,
		DstMask: dstMask,
	})
}
