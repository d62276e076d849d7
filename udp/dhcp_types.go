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
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
)

const (
	DhcpClientPort uint16 = 68
	DhcpServerPort uint16 = 67
)

const dhcpMagicCookie uint32 = 0x63825363

// BOOTP message op codes.
const (
	bootpRequest uint8 = 1
	bootpReply   uint8 = 2
)

// DHCP message types (option 53).
const (
	dhcpDiscover uint8 = 1
	dhcpOffer    uint8 = 2
	dhcpRequest  uint8 = 3
	dhcpDecline  uint8 = 4
	dhcpAck      uint8 = 5
	dhcpNak      uint8 = 6
	dhcpRelease  uint8 = 7
	dhcpInform   uint8 = 8
)

// DHCP option codes used by this stack.
const (
	optPad          uint8 = 0
	optSubnetMask   uint8 = 1
	optRouter       uint8 = 3
	optDNS          uint8 = 6
	optDomainName   uint8 = 15
	optReqIP        uint8 = 50
	optLeaseTime    uint8 = 51
	optMsgType      uint8 = 53
	optServerID     uint8 = 54
	optParamReqList uint8 = 55
	optEnd          uint8 = 255
)

// dhcpOptions is a decoded view of the variable option list following
// the fixed 236-byte BOOTP body and the 4-byte magic cookie.
type dhcpOptions struct {
	msgType    uint8
	serverID   ipv4.Address
	reqIP      ipv4.Address
	leaseSec   uint32
	subnet     ipv4.Address
	router     ipv4.Address
	dns        ipv4.Address
	domainName string
}

func parseOptions(raw []byte) dhcpOptions {
	var o dhcpOptions
	i := 0
	for i < len(raw) {
		code := raw[i]
		i++
		if code == optPad {
			continue
		}
		if code == optEnd || i >= len(raw) {
			break
		}
		length := int(raw[i])
		i++
		if i+length > len(raw) {
			break
		}
		val := raw[i : i+length]
		i += length
		switch code {
		case optMsgType:
			if length >= 1 {
				o.msgType = val[0]
			}
		case optServerID:
			if length >= 4 {
				o.serverID = be32(val)
			}
		case optReqIP:
			if length >= 4 {
				o.reqIP = be32(val)
			}
		case optLeaseTime:
			if length >= 4 {
				o.leaseSec = uint32(be32(val))
			}
		case optSubnetMask:
			if length >= 4 {
				o.subnet = be32(val)
			}
		case optRouter:
			if length >= 4 {
				o.router = be32(val)
			}
		case optDNS:
			if length >= 4 {
				o.dns = be32(val)
			}
		case optDomainName:
			o.domainName = string(val)
		}
	}
	return o
}

func be32(b []byte) ipv4.Address {
	return ipv4.Address(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// dhcpMessage is the fixed-format BOOTP body shared by client and server.
type dhcpMessage struct {
	op     uint8
	xid    uint32
	secs   uint16
	flags  uint16
	ciaddr ipv4.Address
	yiaddr ipv4.Address
	siaddr ipv4.Address
	chaddr eth.MACAddr
	opts   dhcpOptions
}

func parseDhcpMessage(src stream.Readable) (dhcpMessage, bool) {
	var m dhcpMessage
	ready := src.GetReadReady()
	if ready < 236+4 {
		return m, false
	}
	m.op = stream.ReadU8(src)
	stream.ReadU8(src) // htype
	stream.ReadU8(src) // hlen
	stream.ReadU8(src) // hops
	m.xid = stream.ReadU32(src)
	m.secs = stream.ReadU16(src)
	m.flags = stream.ReadU16(src)
	m.ciaddr = be32(stream.ReadBytesExact(src, 4))
	m.yiaddr = be32(stream.ReadBytesExact(src, 4))
	m.siaddr = be32(stream.ReadBytesExact(src, 4))
	stream.ReadBytesExact(src, 4) // giaddr
	chaddrRaw := stream.ReadBytesExact(src, 16)
	if chaddrRaw == nil {
		return m, false
	}
	copy(m.chaddr[:], chaddrRaw[:6])
	stream.ReadBytesExact(src, 64)  // sname
	stream.ReadBytesExact(src, 128) // file
	cookie := stream.ReadU32(src)
	if cookie != dhcpMagicCookie {
		return m, false
	}
	rest := src.GetReadReady()
	optRaw := stream.ReadBytesExact(src, rest)
	if optRaw == nil {
		return m, false
	}
	m.opts = parseOptions(optRaw)
	return m, true
}

// emitDhcpMessage writes the fixed BOOTP body, magic cookie, and the
// option TLVs supplied in opts (each a {code, value} pair; optEnd is
// appended automatically).
func emitDhcpMessage(w stream.Writeable, m dhcpMessage, opts [][]byte) {
	stream.WriteU8(w, m.op)
	stream.WriteU8(w, 1) // htype: Ethernet
	stream.WriteU8(w, 6) // hlen
	stream.WriteU8(w, 0) // hops
	stream.WriteU32(w, m.xid)
	stream.WriteU16(w, m.secs)
	stream.WriteU16(w, m.flags)
	writeAddr(w, m.ciaddr)
	writeAddr(w, m.yiaddr)
	writeAddr(w, m.siaddr)
	writeAddr(w, ipv4.AddrNone) // giaddr
	w.WriteBytes(m.chaddr[:])
	w.WriteBytes(make([]byte, 10)) // pad chaddr to 16 bytes
	w.WriteBytes(make([]byte, 64)) // sname
	w.WriteBytes(make([]byte, 128))
	stream.WriteU32(w, dhcpMagicCookie)
	for _, o := range opts {
		w.WriteBytes(o)
	}
	stream.WriteU8(w, optEnd)
}

func writeAddr(w stream.Writeable, a ipv4.Address) {
	stream.WriteU32(w, uint32(a))
}

func optByte(code, val uint8) []byte { return []byte{code, 1, val} }

func optU32(code uint8, val uint32) []byte {
	return []byte{code, 4, byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}
}

func optAddr(code uint8, a ipv4.Address) []byte { return optU32(code, uint32(a)) }

// dhcpMsgLen is the fixed 236-byte BOOTP body plus the 4-byte cookie,
// used by callers sizing an OpenWrite payload (options are additional).
const dhcpMsgLen = 236 + 4
