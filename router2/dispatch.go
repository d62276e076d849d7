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
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

// ICMP type/code pairs this router emits, duplicated from ipv4/icmp.go's
// RFC 792 constants (that package's icmpCode type is unexported, and
// these errors originate here rather than from a Dispatch that owns the
// failing datagram's own interface).
const (
	icmpUnreachable  uint8 = 3
	icmpRedirect     uint8 = 5
	icmpTimeExceeded uint8 = 11

	icmpUnreachNet  uint8 = 0
	icmpUnreachHost uint8 = 1
	icmpRedirectNet uint8 = 0
	icmpTTLExpired  uint8 = 0
)

// arenaSize bounds how many packets DeferFwd may hold awaiting ARP
// resolution at once; the spec's "large shared byte pool" becomes, in
// software, a small fixed arena indexed by slot rather than a true
// unbounded heap, since an embedded router's memory is itself bounded.
const arenaSize = 8

// deferFwdTimeoutMsec bounds how long a packet waits in the arena for
// ARP to resolve the next hop before this router gives up and reports
// host-unreachable back to the sender.
const deferFwdTimeoutMsec = 3000

type deferredPacket struct {
	raw      []byte
	ingress  int
	egress   int
	nextHop  ipv4.Address
	deadline polling.TimeVal
}

// Dispatch is the router's single processing context: it owns every
// routed Port, the shared ip::Table, and the packet arena backing
// DeferFwd. Exactly one packet is worked on at a time, matching the
// spec's single-working-context design.
type Dispatch struct {
	ports []*Port
	table *ipv4.Table
	clk   polling.TimeRef

	deferred []deferredPacket

	nextIdent uint16
}

// NewDispatch builds a router Dispatch over a shared routing table.
func NewDispatch(table *ipv4.Table, clk polling.TimeRef) *Dispatch {
	return &Dispatch{table: table, clk: clk}
}

// AddPort registers port with the router: its Ethernet interface starts
// receiving transit IPv4 traffic, and its ARP resolver's replies feed
// back into the shared routing table and any packets DeferFwd is
// holding for this port.
func (d *Dispatch) AddPort(port *Port) {
	d.ports = append(d.ports, port)
	idx := len(d.ports) - 1
	port.Eth.Register(eth.Type{Etype: eth.EtherTypeIPv4}, eth.ProtocolFunc(func(src stream.Readable) {
		d.frameRcvd(d.ports[idx], src)
	}))
	port.Arp.AddListener(eth.ArpListenerFunc(func(ip uint32, mac eth.MACAddr) {
		d.arpReceived(port, ipv4.Address(ip), mac)
	}))
}

// PollAlways services pending DeferFwd entries, retiring any that have
// exceeded deferFwdTimeoutMsec with an ICMP host-unreachable reply.
func (d *Dispatch) PollAlways() {
	kept := d.deferred[:0]
	for _, e := range d.deferred {
		if e.deadline.ElapsedMsec() < deferFwdTimeoutMsec {
			kept = append(kept, e)
			continue
		}
		hdr, _, ok := ipv4.ParseHeader(e.raw)
		if ok {
			d.sendError(d.ports[e.ingress], hdr, icmpUnreachable, icmpUnreachHost)
		}
	}
	d.deferred = kept
}

func (d *Dispatch) frameRcvd(in *Port, src stream.Readable) {
	raw := stream.ReadBytesExact(src, src.GetReadReady())
	if raw == nil || len(raw) < 20 {
		return
	}
	d.route(in, raw)
}

// route runs one packet through the full forwarding pipeline. raw is the
// complete IPv4 datagram (header + payload), owned by this call.
func (d *Dispatch) route(in *Port, raw []byte) {
	hdr, ihl, ok := ipv4.ParseHeader(raw)
	if !ok {
		log.Debug("router2: malformed ipv4 header")
		return
	}
	if !ipv4.VerifyChecksum(raw, ihl) {
		log.Debug("router2: bad ipv4 checksum")
		return
	}
	if hdr.TTL == 0 {
		return // already dead on arrival; no ICMP per RFC1812 5.3.1 exception
	}

	route, ok := d.table.RouteLookup(hdr.Dst)
	if !ok {
		d.sendError(in, hdr, icmpUnreachable, icmpUnreachNet)
		return
	}
	nextHop := route.Gateway
	if nextHop == ipv4.AddrBroadcast {
		nextHop = hdr.Dst // directly connected: the destination IS the next hop
	}

	out, ok := d.portFor(nextHop)
	if !ok || out.Disabled {
		d.sendError(in, hdr, icmpUnreachable, icmpUnreachNet)
		return
	}

	if in.Subnet.Contains(hdr.Dst) && in.Subnet.Contains(hdr.Src) {
		d.sendRedirect(in, hdr, nextHop)
		// Still forward it — a redirect informs the sender for next time,
		// it doesn't replace delivering this packet.
	}

	newTTL := hdr.TTL - 1
	if newTTL == 0 {
		d.sendError(in, hdr, icmpTimeExceeded, icmpTTLExpired)
		return
	}
	newChecksum := ipv4.DecrementTTLChecksum(hdr.Checksum, hdr.TTL)

	if route.MAC.IsNull() {
		d.deferFwd(in, out, raw, nextHop, newTTL, newChecksum)
		return
	}
	d.forward(out, raw, ihl, route.MAC, newTTL, newChecksum)
}

// portFor returns the router's own Port whose attached subnet contains
// addr, i.e. the interface a directly-connected next hop lives behind.
func (d *Dispatch) portFor(addr ipv4.Address) (*Port, bool) {
	for _, p := range d.ports {
		if p.Subnet.Contains(addr) {
			return p, true
		}
	}
	return nil, false
}

func (d *Dispatch) forward(out *Port, raw []byte, ihl int, dstMAC eth.MACAddr, newTTL uint8, newChecksum uint16) {
	fixed := make([]byte, len(raw))
	copy(fixed, raw)
	fixed[8] = newTTL
	fixed[10] = byte(newChecksum >> 8)
	fixed[11] = byte(newChecksum)

	w := out.Eth.OpenWrite(dstMAC, eth.VlanNone, eth.EtherTypeIPv4, len(fixed))
	if w == nil {
		return
	}
	w.WriteBytes(fixed)
	w.WriteFinalize()
}

// deferFwd holds raw in the packet arena and issues an ARP request for
// nextHop on the egress port, to be completed by arpReceived or expired
// by PollAlways.
func (d *Dispatch) deferFwd(in, out *Port, raw []byte, nextHop ipv4.Address, newTTL byte, newChecksum uint16) {
	if len(d.deferred) >= arenaSize {
		log.Debug("router2: defer arena full, dropping packet")
		return
	}
	stored := make([]byte, len(raw))
	copy(stored, raw)
	stored[8] = newTTL
	stored[10] = byte(newChecksum >> 8)
	stored[11] = byte(newChecksum)

	d.deferred = append(d.deferred, deferredPacket{
		raw:      stored,
		ingress:  in.Index,
		egress:   out.Index,
		nextHop:  nextHop,
		deadline: polling.NewTimeVal(d.clk),
	})
	out.Arp.SendRequest(uint32(nextHop))
}

func (d *Dispatch) arpReceived(port *Port, ip ipv4.Address, mac eth.MACAddr) {
	d.table.RouteCache(ip, mac)

	kept := d.deferred[:0]
	for _, e := range d.deferred {
		if e.egress != port.Index || e.nextHop != ip {
			kept = append(kept, e)
			continue
		}
		hdr, ihl, ok := ipv4.ParseHeader(e.raw)
		if ok {
			d.forward(port, e.raw, ihl, mac, hdr.TTL, hdr.Checksum)
		}
	}
	d.deferred = kept
}

func (d *Dispatch) nextIdentifier() uint16 {
	d.nextIdent++
	return d.nextIdent
}

// sendError emits an ICMP error back through the ingress interface to
// the original sender, enclosing the failed header plus its next 8
// bytes of payload (RFC 792). The sender of a packet a router forwards
// is always link-local to the interface it arrived on, so the reply
// only ever needs that one interface's own ARP/MAC state, not a second
// routing decision.
func (d *Dispatch) sendError(in *Port, failedHdr ipv4.Header, typ, code uint8) {
	var failedRaw [20]byte
	ipv4.Emit(failedRaw[:], failedHdr)
	enclosed := append(failedRaw[:], make([]byte, 8)...)
	d.emitICMP(in, failedHdr.Src, typ, code, enclosed)
}

// sendRedirect tells failedHdr's sender to use newGateway directly.
func (d *Dispatch) sendRedirect(in *Port, failedHdr ipv4.Header, newGateway ipv4.Address) {
	var origRaw [20]byte
	ipv4.Emit(origRaw[:], failedHdr)
	body := make([]byte, 4)
	body[0], body[1], body[2], body[3] = byte(newGateway>>24), byte(newGateway>>16), byte(newGateway>>8), byte(newGateway)
	body = append(body, origRaw[:]...)
	body = append(body, make([]byte, 8)...)
	d.emitICMP(in, failedHdr.Src, icmpRedirect, icmpRedirectNet, body)
}

func (d *Dispatch) emitICMP(in *Port, dst ipv4.Address, typ, code uint8, rest []byte) {
	icmpBody := make([]byte, 4, 4+len(rest))
	icmpBody[0], icmpBody[1] = typ, code
	icmpBody = append(icmpBody, rest...)
	csum := framing.IPChecksum(icmpBody)
	icmpBody[2], icmpBody[3] = byte(csum>>8), byte(csum)

	ipHdr := ipv4.Header{
		TotalLen: uint16(20 + len(icmpBody)),
		Ident:    d.nextIdentifier(),
		TTL:      64,
		Protocol: ipv4.ProtoICMP,
		Src:      in.SelfIP,
		Dst:      dst,
	}
	var ipRaw [20]byte
	ipv4.Emit(ipRaw[:], ipHdr)

	w := in.Eth.OpenReply(eth.EtherTypeIPv4, len(ipRaw)+len(icmpBody))
	if w == nil {
		return
	}
	w.WriteBytes(ipRaw[:])
	w.WriteBytes(icmpBody)
	w.WriteFinalize()
}
