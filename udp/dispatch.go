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

package udp

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
)

// Protocol is implemented by anything registered with a Dispatch to
// receive datagrams addressed to a given destination port.
type Protocol interface {
	FrameRcvd(src stream.Readable)
}

// ProtocolFunc adapts a function to Protocol.
type ProtocolFunc func(src stream.Readable)

// FrameRcvd implements Protocol.
func (f ProtocolFunc) FrameRcvd(src stream.Readable) { f(src) }

type registration struct {
	port uint16
	hdl  Protocol
}

// Dispatch registers as ip protocol 17 (UDP) on an ipv4.Dispatch and
// fans parsed datagrams out to registered Protocol handlers by
// destination port.
type Dispatch struct {
	ip     *ipv4.Dispatch
	protos []registration

	reply Header
}

// NewDispatch constructs a Dispatch bound to ip and registers it.
func NewDispatch(ip *ipv4.Dispatch) *Dispatch {
	d := &Dispatch{ip: ip}
	ip.Register(ipv4.ProtoUDP, d)
	return d
}

// Register adds a Protocol to receive datagrams for the given
// destination port. A later call for the same port replaces the
// earlier registration (bind semantics, not a registration list).
func (d *Dispatch) Register(port uint16, p Protocol) {
	for i, r := range d.protos {
		if r.port == port {
			d.protos[i].hdl = p
			return
		}
	}
	d.protos = append(d.protos, registration{port: port, hdl: p})
}

// Unregister removes any registration bound to port.
func (d *Dispatch) Unregister(port uint16) {
	for i, r := range d.protos {
		if r.port == port {
			d.protos = append(d.protos[:i], d.protos[i+1:]...)
			return
		}
	}
}

// FrameRcvd implements ipv4.Protocol: parses the 8-byte UDP header,
// optionally verifies the checksum against the IPv4 pseudo-header, and
// dispatches the payload to any Protocol bound to the destination port.
func (d *Dispatch) FrameRcvd(src stream.Readable) {
	ready := src.GetReadReady()
	raw := stream.ReadBytesExact(src, 8)
	if raw == nil {
		return
	}
	hdr, ok := ParseHeader(raw)
	if !ok {
		return
	}
	payloadLen := int(hdr.Length) - 8
	if payloadLen < 0 || payloadLen > ready-8 {
		log.Debug("udp: length field inconsistent with datagram")
		return
	}

	if hdr.Checksum != 0 {
		ipReply := d.ip.Reply()
		body := make([]byte, 8, 8+payloadLen)
		Emit(body, hdr)
		body = append(body, stream.ReadBytesExact(src, payloadLen)...)
		if !pseudoChecksumOK(ipReply.Src, ipReply.Dst, body) {
			log.Debug("udp: bad checksum")
			return
		}
		d.reply = hdr
		for _, r := range d.protos {
			if r.port == hdr.DstPort {
				r.hdl.FrameRcvd(stream.NewArrayRead(body[8:]))
				return
			}
		}
		return
	}

	d.reply = hdr
	limited := stream.NewLimitedRead(src, payloadLen)
	for _, r := range d.protos {
		if r.port == hdr.DstPort {
			r.hdl.FrameRcvd(limited)
			return
		}
	}
}

// Reply returns the header captured during the most recent FrameRcvd.
func (d *Dispatch) Reply() Header { return d.reply }

// IP returns the underlying ipv4.Dispatch, for callers (like tpipe) that
// need the sender's IP address alongside the UDP header.
func (d *Dispatch) IP() *ipv4.Dispatch { return d.ip }

// OpenReply begins an outgoing datagram back to the source of the last
// received frame, swapping source and destination ports.
func (d *Dispatch) OpenReply(innerLen int) stream.Writeable {
	ip := d.ip.Reply()
	return d.openWrite(ip.Src, d.reply.DstPort, d.reply.SrcPort, innerLen)
}

// OpenWrite begins an outgoing datagram to dst:dstPort from srcPort.
func (d *Dispatch) OpenWrite(dst ipv4.Address, srcPort, dstPort uint16, innerLen int) stream.Writeable {
	return d.openWrite(dst, srcPort, dstPort, innerLen)
}

func (d *Dispatch) openWrite(dst ipv4.Address, srcPort, dstPort uint16, innerLen int) stream.Writeable {
	w := d.ip.OpenWrite(ipv4.ProtoUDP, dst, 8+innerLen)
	if w == nil {
		return nil
	}
	var buf [8]byte
	Emit(buf[:], Header{SrcPort: srcPort, DstPort: dstPort, Length: uint16(8 + innerLen)})
	w.WriteBytes(buf[:])
	return w
}

// pseudoChecksumOK verifies udpWithPayload (the 8-byte UDP header,
// checksum field included as received, followed by the payload) against
// the IPv4 pseudo-header per RFC 768.
func pseudoChecksumOK(src, dst ipv4.Address, udpWithPayload []byte) bool {
	pseudo := make([]byte, 12, 12+len(udpWithPayload))
	pseudo[0], pseudo[1], pseudo[2], pseudo[3] = byte(src>>24), byte(src>>16), byte(src>>8), byte(src)
	pseudo[4], pseudo[5], pseudo[6], pseudo[7] = byte(dst>>24), byte(dst>>16), byte(dst>>8), byte(dst)
	pseudo[8] = 0
	pseudo[9] = ipv4.ProtoUDP
	pseudo[10], pseudo[11] = byte(len(udpWithPayload)>>8), byte(len(udpWithPayload))
	pseudo = append(pseudo, udpWithPayload...)
	return framing.IPChecksumVerify(pseudo)
}
