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

package ipv4

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
)

// Protocol is implemented by anything registered with a Dispatch to
// receive datagrams matching a given IP protocol number.
type Protocol interface {
	FrameRcvd(src stream.Readable)
}

// ProtocolFunc adapts a function to Protocol.
type ProtocolFunc func(src stream.Readable)

// FrameRcvd implements Protocol.
func (f ProtocolFunc) FrameRcvd(src stream.Readable) { f(src) }

type registration struct {
	proto uint8
	hdl   Protocol
}

// Dispatch registers for eth.EtherTypeIPv4 on an eth.Dispatch and fans
// parsed datagrams out to registered Protocol handlers by protocol
// number (ICMP has a built-in handler via icmp.go).
type Dispatch struct {
	eth    *eth.Dispatch
	selfIP Address
	table  *Table
	protos []registration

	reply     Header
	icmp      *ICMPHandler
	nextIdent uint16
}

// NewDispatch constructs a Dispatch bound to an underlying eth.Dispatch,
// this host's own IP address, and the shared routing table.
func NewDispatch(e *eth.Dispatch, selfIP Address, table *Table) *Dispatch {
	d := &Dispatch{eth: e, selfIP: selfIP, table: table}
	d.icmp = NewICMPHandler(d)
	d.Register(ProtoICMP, d.icmp)
	e.Register(ethtype(), d)
	return d
}

func ethtype() eth.Type { return eth.Type{Etype: eth.EtherTypeIPv4} }

// Register adds a Protocol to receive datagrams for the given IP
// protocol number.
func (d *Dispatch) Register(proto uint8, p Protocol) {
	d.protos = append(d.protos, registration{proto: proto, hdl: p})
}

// FrameRcvd implements eth.Protocol: parses the IPv4 header, validates
// it, and either forwards the payload locally or (if dst doesn't match
// this host) silently drops it — forwarding to another host is the
// router's job (router2.Dispatch), not this layer's.
func (d *Dispatch) FrameRcvd(src stream.Readable) {
	raw := stream.ReadBytesExact(src, 20)
	if raw == nil {
		return
	}
	hdr, ihl, ok := ParseHeader(raw)
	if !ok {
		log.Debug("ipv4: malformed header")
		return
	}
	if ihl > 5 {
		// Options present: skip them; this stack does not interpret IP
		// options.
		opts := stream.ReadBytesExact(src, (ihl-5)*4)
		if opts == nil {
			return
		}
		raw = append(raw, opts...)
	}
	if !VerifyChecksum(raw, ihl) {
		log.Debug("ipv4: bad checksum")
		return
	}
	if hdr.Dst != d.selfIP && !hdr.Dst.IsBroadcast() && !hdr.Dst.IsMulticast() {
		return
	}

	d.reply = hdr
	payloadLen := int(hdr.TotalLen) - ihl*4
	limited := stream.NewLimitedRead(src, payloadLen)
	for _, r := range d.protos {
		if r.proto == hdr.Protocol {
			r.hdl.FrameRcvd(limited)
			return
		}
	}
	d.icmp.SendError(hdr, icmpErrUnreachProto)
}

// Reply returns the header captured during the most recent FrameRcvd.
func (d *Dispatch) Reply() Header { return d.reply }

// Eth returns the underlying eth.Dispatch, for protocols layered above
// this one (udp.DhcpClient needs the interface's own MAC address).
func (d *Dispatch) Eth() *eth.Dispatch { return d.eth }

// SelfIP returns this host's own IPv4 address as known to this Dispatch.
func (d *Dispatch) SelfIP() Address { return d.selfIP }

// NextHeader constructs an outgoing header addressed to dst with an
// auto-incrementing identifier, TTL 64, and a length computed from
// innerLen (the post-IP payload length); the checksum is filled in by
// Emit.
func (d *Dispatch) NextHeader(proto uint8, dst Address, innerLen int) Header {
	d.nextIdent++
	return Header{
		TotalLen: uint16(20 + innerLen),
		Ident:    d.nextIdent,
		TTL:      64,
		Protocol: proto,
		Src:      d.selfIP,
		Dst:      dst,
	}
}

// OpenReply begins an outgoing datagram back to the source of the last
// received frame, with protocol proto and payload length innerLen.
func (d *Dispatch) OpenReply(proto uint8, innerLen int) stream.Writeable {
	hdr := d.NextHeader(proto, d.reply.Src, innerLen)
	return d.openWrite(hdr)
}

// OpenWrite begins an outgoing datagram to dst.
func (d *Dispatch) OpenWrite(proto uint8, dst Address, innerLen int) stream.Writeable {
	hdr := d.NextHeader(proto, dst, innerLen)
	return d.openWrite(hdr)
}

func (d *Dispatch) openWrite(hdr Header) stream.Writeable {
	destMAC, destMACKnown := d.resolveMAC(hdr.Dst)
	if !destMACKnown {
		return nil
	}
	w := d.eth.OpenWrite(destMAC, eth.VlanNone, eth.EtherTypeIPv4, int(hdr.TotalLen))
	if w == nil {
		return nil
	}
	var buf [20]byte
	Emit(buf[:], hdr)
	w.WriteBytes(buf[:])
	return w
}

func (d *Dispatch) resolveMAC(dst Address) (eth.MACAddr, bool) {
	if dst.IsBroadcast() {
		return eth.BroadcastMAC, true
	}
	if dst.IsMulticast() {
		return eth.BroadcastMAC, true
	}
	route, ok := d.table.RouteLookup(dst)
	if !ok {
		return eth.MACAddr{}, false
	}
	if route.Gateway == AddrBroadcast {
		if route.MAC.IsNull() {
			return eth.MACAddr{}, false
		}
		return route.MAC, true
	}
	if route.MAC.IsNull() {
		return eth.MACAddr{}, false
	}
	return route.MAC, true
}

// ArpReceived implements eth.ArpListener: a resolved address updates the
// routing table's MAC cache. (ICMP redirects go through Table.SetGateway
// instead.)
func (d *Dispatch) ArpReceived(ip uint32, mac eth.MACAddr) {
	d.table.RouteCache(Address(ip), mac)
}
