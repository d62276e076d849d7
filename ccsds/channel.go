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

package ccsds

import "github.com/satcat5/satnet/stream"

// Mode selects how a Channel's AOS data field is interpreted.
type Mode int

const (
	// ModeBytes is B_PDU mode: the data field is a raw, zero-padded byte
	// stream with no further structure. This package does not attempt to
	// strip idle filler bytes from a B_PDU stream; every byte delivered
	// in the data field, including trailing padding, reaches the sink.
	ModeBytes Mode = iota
	// ModePacket is M_PDU mode: the first two bytes of the data field are
	// a First Header Pointer, and the remainder is a stream of
	// self-delimiting SPP packets that may span frame boundaries.
	ModePacket
)

// M_PDU First Header Pointer sentinels (CCSDS 732.0-B-4 Section 4.1.4.3).
const (
	mpduFhpMask  = 0x07FF
	mpduNoHeader = 0x7FF
	mpduIdle     = 0x7FE
)

// VcKey identifies one AOS virtual channel by spacecraft ID and virtual
// channel ID, the (svid, vcid) pair a Dispatch demultiplexes frames by.
type VcKey struct {
	Svid uint8
	Vcid uint8
}

// SppHandler receives one fully reassembled SPP packet from a ModePacket
// Channel: hdr is the packet's primary header, payload is its user data
// (the bytes following the 6-byte primary header).
type SppHandler func(hdr SppHeader, payload []byte)

// Channel is one AOS virtual channel: an independent, monotonically
// counted sequence of transfer frames carrying either a raw byte stream
// or a reassembled SPP packet stream. Each Channel owns its own frame
// counter — unlike the physical Dispatch, which is shared by every
// virtual channel multiplexed onto it.
type Channel struct {
	Key  VcKey
	Mode Mode

	txHdr AosHeader

	rxHdr     AosHeader
	rxSynced  bool
	rxAligned bool
	errCount  int

	sink       stream.Writeable
	sppHandler SppHandler

	rxBuf        []byte
	txQueue      []byte
	txBoundaries []int
}

// NewChannel creates a Channel for the given spacecraft/virtual channel
// ID pair in the given mode, with its own frame counter starting at zero.
func NewChannel(svid, vcid uint8, mode Mode) *Channel {
	return &Channel{
		Key:   VcKey{Svid: svid, Vcid: vcid},
		Mode:  mode,
		txHdr: NewAosHeader(svid, vcid),
	}
}

// SetSink configures the destination for reassembled B_PDU byte-stream
// data. Only meaningful for ModeBytes channels.
func (c *Channel) SetSink(w stream.Writeable) { c.sink = w }

// SetSppHandler configures the callback invoked once per reassembled SPP
// packet. Only meaningful for ModePacket channels.
func (c *Channel) SetSppHandler(h SppHandler) { c.sppHandler = h }

// ErrorCount returns the number of frame-count discontinuities (dropped
// or reordered frames) observed on this channel.
func (c *Channel) ErrorCount() int { return c.errCount }

// SendPacket queues an SPP packet for transmission on a ModePacket
// channel. Packets are drained into M_PDU data zones by the owning
// Dispatch as frames are sent.
func (c *Channel) SendPacket(hdr SppHeader, payload []byte) {
	c.txBoundaries = append(c.txBoundaries, len(c.txQueue))
	buf := make([]byte, SppHeaderLen)
	EmitSppHeader(buf, hdr, len(payload))
	c.txQueue = append(c.txQueue, buf...)
	c.txQueue = append(c.txQueue, payload...)
}

// Pending reports whether this channel has queued SPP data awaiting
// transmission. An idle ModePacket channel sends idle frames instead of
// consuming a dispatch slot for empty data.
func (c *Channel) Pending() bool { return len(c.txQueue) > 0 }

// nextTxHeader returns the header to stamp on the next frame sent on
// this channel, then advances the channel's own frame counter.
func (c *Channel) nextTxHeader() AosHeader {
	h := c.txHdr
	c.txHdr = c.txHdr.Next()
	return h
}

// nextMpduZone drains up to zoneSize bytes of queued SPP data, returning
// the zone content (zero-padded to zoneSize if the queue runs dry) and
// the First Header Pointer for the frame carrying it.
func (c *Channel) nextMpduZone(zoneSize int) ([]byte, uint16) {
	if len(c.txQueue) == 0 {
		return make([]byte, zoneSize), mpduIdle
	}
	n := zoneSize
	if n > len(c.txQueue) {
		n = len(c.txQueue)
	}
	zone := make([]byte, zoneSize)
	copy(zone, c.txQueue[:n])

	fhp := uint16(mpduNoHeader)
	if len(c.txBoundaries) > 0 && c.txBoundaries[0] < n {
		fhp = uint16(c.txBoundaries[0])
	}
	c.txQueue = c.txQueue[n:]
	for len(c.txBoundaries) > 0 && c.txBoundaries[0] < n {
		c.txBoundaries = c.txBoundaries[1:]
	}
	for i := range c.txBoundaries {
		c.txBoundaries[i] -= n
	}
	return zone, fhp
}

// frameRcvd is called by the owning Dispatch with one demultiplexed
// frame's header and data field. It checks frame-count continuity,
// counting (and resyncing past) any gap, then dispatches the data field
// by mode.
func (c *Channel) frameRcvd(hdr AosHeader, data []byte) {
	if c.rxSynced {
		want := c.rxHdr.Next()
		if hdr.Count != want.Count {
			c.errCount++
			c.rxAligned = false
		}
	}
	c.rxHdr = hdr
	c.rxSynced = true

	switch c.Mode {
	case ModeBytes:
		if c.sink != nil {
			c.sink.WriteBytes(data)
			c.sink.WriteFinalize()
		}
	case ModePacket:
		c.vcPacketRcvd(data)
	}
}

// vcPacketRcvd reassembles SPP packets out of one frame's M_PDU data
// field, realigning on the First Header Pointer after any discontinuity
// flagged by frameRcvd.
func (c *Channel) vcPacketRcvd(data []byte) {
	if len(data) < 2 {
		return
	}
	fhp := int(be16(data[0:2]) & mpduFhpMask)
	zone := data[2:]
	if fhp == mpduIdle {
		return
	}
	if !c.rxAligned {
		if fhp == mpduNoHeader {
			return
		}
		if fhp > len(zone) {
			fhp = len(zone)
		}
		zone = zone[fhp:]
		c.rxBuf = c.rxBuf[:0]
		c.rxAligned = true
	}
	c.rxBuf = append(c.rxBuf, zone...)
	for {
		hdr, dataLen, ok := ParseSppHeader(c.rxBuf)
		if !ok {
			return
		}
		total := SppHeaderLen + dataLen
		if len(c.rxBuf) < total {
			return
		}
		pkt := append([]byte(nil), c.rxBuf[SppHeaderLen:total]...)
		c.rxBuf = c.rxBuf[total:]
		if c.sppHandler != nil {
			c.sppHandler(hdr, pkt)
		}
	}
}
