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

package eth

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/stream"
)

// Protocol is implemented by anything registered with a Dispatch to
// receive frames matching a given Type.
type Protocol interface {
	// FrameRcvd is called with a Readable bounded to the remaining frame
	// length. The header for this call is available via Dispatch.Reply.
	FrameRcvd(src stream.Readable)
}

// ProtocolFunc adapts a plain function to the Protocol interface.
type ProtocolFunc func(src stream.Readable)

// FrameRcvd implements Protocol.
func (f ProtocolFunc) FrameRcvd(src stream.Readable) { f(src) }

type registration struct {
	typ Type
	hdl Protocol
}

// Dispatch wraps one Ethernet interface's Readable/Writeable pair,
// parsing headers on receipt and fanning payloads out to registered
// Protocol handlers by {VLAN, EtherType}.
type Dispatch struct {
	src  stream.Readable
	dst  stream.Writeable
	self MACAddr

	protos []registration
	reply  Header
}

// NewDispatch constructs a Dispatch for one interface. self is this
// interface's own MAC address, used to populate open_write/open_reply.
func NewDispatch(self MACAddr, src stream.Readable, dst stream.Writeable) *Dispatch {
	return &Dispatch{self: self, src: src, dst: dst}
}

// Register adds a Protocol to receive frames matching typ. Etype 0 with
// VID 0 matches nothing; registrations are scanned in the order added,
// and the first match wins (mirrors the teacher's linked-list dispatch).
func (d *Dispatch) Register(typ Type, p Protocol) {
	d.protos = append(d.protos, registration{typ: typ, hdl: p})
}

// Unregister removes the first registration matching p by identity. Rare
// in practice (interfaces in this stack bind for their whole lifetime)
// but used by tests and by dynamic protocol teardown.
func (d *Dispatch) Unregister(p Protocol) {
	for i, r := range d.protos {
		if r.hdl == p {
			d.protos = append(d.protos[:i], d.protos[i+1:]...)
			return
		}
	}
}

// UnregisterType removes the first registration matching typ exactly,
// for callers (like tpipe) whose handler is a closure and so has no
// identity Unregister can compare against.
func (d *Dispatch) UnregisterType(typ Type) {
	for i, r := range d.protos {
		if r.typ == typ {
			d.protos = append(d.protos[:i], d.protos[i+1:]...)
			return
		}
	}
}

// DataRcvd parses one frame from src and dispatches it to the first
// registered Protocol whose Type matches, then unconditionally finalizes
// the read to release the underlying buffer.
func (d *Dispatch) DataRcvd() {
	defer d.src.ReadFinalize()

	if d.src.GetReadReady() < 12 {
		return
	}
	var raw [18]byte
	d.src.ReadBytes(raw[0:12])
	hdr := Header{}
	copy(hdr.Dst[:], raw[0:6])
	copy(hdr.Src[:], raw[6:12])

	var etypeBuf [2]byte
	if d.src.ReadBytes(etypeBuf[:]) != 2 {
		return
	}
	etype := EtherType(uint16(etypeBuf[0])<<8 | uint16(etypeBuf[1]))
	if etype == EtherTypeVLAN {
		var tagBuf [2]byte
		if d.src.ReadBytes(tagBuf[:]) != 2 {
			return
		}
		hdr.Vtag = unpackVlan(uint16(tagBuf[0])<<8 | uint16(tagBuf[1]))
		if d.src.ReadBytes(etypeBuf[:]) != 2 {
			return
		}
		etype = EtherType(uint16(etypeBuf[0])<<8 | uint16(etypeBuf[1]))
	}
	hdr.Etype = etype
	d.reply = hdr

	for _, r := range d.protos {
		if r.typ.Etype != etype {
			continue
		}
		if r.typ.VID != 0 && r.typ.VID != hdr.Vtag.VID {
			continue
		}
		limited := stream.NewLimitedRead(d.src, d.src.GetReadReady())
		r.hdl.FrameRcvd(limited)
		return
	}
	log.WithField("etype", etype).Debug("eth: no protocol registered")
}

// Reply returns the header captured during the most recent DataRcvd call.
func (d *Dispatch) Reply() Header { return d.reply }

// Self returns this interface's own MAC address.
func (d *Dispatch) Self() MACAddr { return d.self }

// OpenWrite begins a new outgoing frame to dst with the given inner
// EtherType and VLAN tag, returning a Writeable positioned after the
// header. length is advisory (used only to presize callers' buffers).
func (d *Dispatch) OpenWrite(dst MACAddr, vtag VlanTag, etype EtherType, length int) stream.Writeable {
	return d.writeHeader(dst, d.self, vtag, etype)
}

// OpenReply begins a frame addressed back to the source of the last
// received frame (src/dst swapped), preserving its VLAN tag, with a new
// inner EtherType.
func (d *Dispatch) OpenReply(etype EtherType, length int) stream.Writeable {
	return d.writeHeader(d.reply.Src, d.self, d.reply.Vtag, etype)
}

func (d *Dispatch) writeHeader(dst, src MACAddr, vtag VlanTag, etype EtherType) stream.Writeable {
	if d.dst.GetWriteSpace() < 14 {
		return nil
	}
	d.dst.WriteBytes(dst[:])
	d.dst.WriteBytes(src[:])
	if vtag.Present() {
		raw := vtag.pack()
		d.dst.WriteBytes([]byte{byte(EtherTypeVLAN >> 8), byte(EtherTypeVLAN)})
		d.dst.WriteBytes([]byte{byte(raw >> 8), byte(raw)})
	}
	d.dst.WriteBytes([]byte{byte(etype >> 8), byte(etype)})
	return d.dst
}
