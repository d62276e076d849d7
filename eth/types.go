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

// Package eth implements the Ethernet dispatch layer: header parsing,
// VLAN-tag handling, protocol fan-out by EtherType, and ARP.
package eth

import "fmt"

// MACAddr is a 48-bit Ethernet hardware address.
type MACAddr [6]byte

// BroadcastMAC is the all-ones destination used for broadcast frames.
var BroadcastMAC = MACAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// NullMAC is the all-zeros address, used to mean "no address yet known".
var NullMAC = MACAddr{}

func (m MACAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the all-ones address.
func (m MACAddr) IsBroadcast() bool { return m == BroadcastMAC }

// IsMulticast reports whether m has the I/G bit set (LSB of the first
// octet), which covers both broadcast and multicast addresses.
func (m MACAddr) IsMulticast() bool { return m[0]&0x01 != 0 }

// IsNull reports whether m is the all-zeros address.
func (m MACAddr) IsNull() bool { return m == NullMAC }

// IsSwitchControl reports whether m falls in the reserved link-local
// block 01:80:C2:00:00:00/40 used for bridge/switch control protocols;
// such frames are never forwarded by a conformant bridge.
func (m MACAddr) IsSwitchControl() bool {
	return m[0] == 0x01 && m[1] == 0x80 && m[2] == 0xC2 && m[3] == 0x00 && m[4] == 0x00
}

// EtherType identifies the payload protocol of an Ethernet frame.
type EtherType uint16

// Well-known EtherType values used by this stack.
const (
	EtherTypeIPv4   EtherType = 0x0800
	EtherTypeARP    EtherType = 0x0806
	EtherTypeVLAN   EtherType = 0x8100
	EtherTypePTP    EtherType = 0x88F7
	EtherTypeCTRL   EtherType = 0x5C01 // internal switch-control frames
	EtherTypeMACsec EtherType = 0x88E5
)

// VlanTag packs the 12-bit VID and 3-bit priority of an 802.1Q tag.
type VlanTag struct {
	VID      uint16
	Priority uint8
}

// VlanNone is the zero value meaning "no VLAN tag present".
var VlanNone = VlanTag{}

// Present reports whether this tag should be emitted/was detected on the
// wire (VID 0 with default priority is treated as "untagged").
func (v VlanTag) Present() bool { return v.VID != 0 || v.Priority != 0 }

func (v VlanTag) pack() uint16 {
	return (uint16(v.Priority&0x7) << 13) | (v.VID & 0x0FFF)
}

func unpackVlan(raw uint16) VlanTag {
	return VlanTag{VID: raw & 0x0FFF, Priority: uint8(raw >> 13)}
}

// Pack returns the on-wire 16-bit encoding of v, for callers outside
// this package that need to re-tag a frame (switchcore's VLAN rewrite).
func (v VlanTag) Pack() uint16 { return v.pack() }

// UnpackVlan decodes a raw 16-bit 802.1Q tag value.
func UnpackVlan(raw uint16) VlanTag { return unpackVlan(raw) }

// ParseHeader parses an Ethernet header (dst, src, optional 802.1Q tag,
// EtherType) from the front of raw, returning the header and the number
// of bytes consumed, or ok=false if raw is too short.
func ParseHeader(raw []byte) (hdr Header, consumed int, ok bool) {
	if len(raw) < 14 {
		return Header{}, 0, false
	}
	copy(hdr.Dst[:], raw[0:6])
	copy(hdr.Src[:], raw[6:12])
	etype := EtherType(uint16(raw[12])<<8 | uint16(raw[13]))
	off := 14
	if etype == EtherTypeVLAN {
		if len(raw) < 18 {
			return Header{}, 0, false
		}
		hdr.Vtag = unpackVlan(uint16(raw[14])<<8 | uint16(raw[15]))
		etype = EtherType(uint16(raw[16])<<8 | uint16(raw[17]))
		off = 18
	}
	hdr.Etype = etype
	return hdr, off, true
}

// EmitHeader writes dst, src, and, if vtag.Present(), an 802.1Q tag,
// followed by etype, returning the encoded header.
func EmitHeader(dst, src MACAddr, vtag VlanTag, etype EtherType) []byte {
	buf := make([]byte, 0, 18)
	buf = append(buf, dst[:]...)
	buf = append(buf, src[:]...)
	if vtag.Present() {
		buf = append(buf, byte(EtherTypeVLAN>>8), byte(EtherTypeVLAN))
		raw := vtag.pack()
		buf = append(buf, byte(raw>>8), byte(raw))
	}
	buf = append(buf, byte(etype>>8), byte(etype))
	return buf
}

// Type is the registration key used by Protocol handlers: a VLAN ID (0
// for "any"/untagged) paired with an EtherType.
type Type struct {
	VID   uint16
	Etype EtherType
}

// Header is the parsed reply context captured for the duration of one
// dispatch call: source/destination MAC, optional VLAN tag, and the
// inner EtherType.
type Header struct {
	Dst   MACAddr
	Src   MACAddr
	Vtag  VlanTag
	Etype EtherType
}

// HeaderLen returns the on-wire length of this header, including the
// 4-byte VLAN tag if present.
func (h Header) HeaderLen() int {
	if h.Vtag.Present() {
		return 18
	}
	return 14
}
