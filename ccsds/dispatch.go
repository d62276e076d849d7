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

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/stream"
)

// Dispatch wraps one physical link's raw byte stream, framing and
// demultiplexing CCSDS AOS transfer frames of a fixed data-field size
// into virtual channels, keyed by {spacecraft ID, virtual channel ID} —
// the same Register-by-key, first-match-wins shape eth.Dispatch uses for
// {VLAN, EtherType} demultiplexing.
type Dispatch struct {
	src stream.Readable
	dst stream.Writeable

	dsize      int
	insertSync bool

	channels map[VcKey]*Channel
	rxHdr    AosHeader
	errCount int
	frmCount int
}

// NewDispatch constructs a Dispatch framing fixed-size transfer frames
// with dsize bytes of data field. insertSync selects whether a 4-byte
// attached sync marker precedes each frame on the wire (true for an
// over-the-air or serial link; false when the link already delivers
// frame-aligned chunks, e.g. a packetized transport).
func NewDispatch(src stream.Readable, dst stream.Writeable, dsize int, insertSync bool) *Dispatch {
	return &Dispatch{
		src:        src,
		dst:        dst,
		dsize:      dsize,
		insertSync: insertSync,
		channels:   make(map[VcKey]*Channel),
	}
}

// tsize is the on-wire size of one transfer frame, excluding the sync
// marker: primary header, data field, and the 2-byte FECF trailer.
func (d *Dispatch) tsize() int { return AosHeaderLen + d.dsize + 2 }

// Register binds ch to receive frames addressed to its virtual channel.
func (d *Dispatch) Register(ch *Channel) { d.channels[ch.Key] = ch }

// Unregister removes ch's binding.
func (d *Dispatch) Unregister(ch *Channel) { delete(d.channels, ch.Key) }

// ErrorCount returns the number of frames dropped for a failed sync or
// FECF check at the physical-framing layer (channel-level frame-count
// discontinuities are counted separately, on the Channel itself).
func (d *Dispatch) ErrorCount() int { return d.errCount }

// FrameCount returns the number of frames successfully demultiplexed.
func (d *Dispatch) FrameCount() int { return d.frmCount }

// RcvdHdr returns the primary header of the most recently demultiplexed
// frame.
func (d *Dispatch) RcvdHdr() AosHeader { return d.rxHdr }

// FrameRcvd consumes exactly one transfer frame from src: if insertSync
// is set, it first scans for (and resynchronizes on) the attached sync
// marker, then reads tsize bytes, verifies the FECF, parses the primary
// header, and hands the data field to the channel registered for its
// {svid, vcid}. A lost sync increments ErrorCount once and the frame
// after the recovered marker is still processed; an FECF failure
// increments ErrorCount and drops the frame. The caller is expected to
// call FrameRcvd again once more bytes are available.
func (d *Dispatch) FrameRcvd() {
	if d.insertSync && !d.syncTo(framing.CcsdsSyncMarker[:]) {
		return
	}
	body := stream.ReadBytesExact(d.src, d.tsize())
	if body == nil {
		return
	}
	if !framing.CRC16CCSDSVerify(body) {
		d.errCount++
		log.Debug("ccsds: frame dropped, FECF mismatch")
		return
	}
	hdr, ok := ParseAosHeader(body, true)
	if !ok {
		d.errCount++
		return
	}
	data := body[AosHeaderLen : len(body)-2]
	d.rxHdr = hdr
	d.frmCount++

	key := VcKey{Svid: hdr.Svid(), Vcid: hdr.Vcid()}
	ch, found := d.channels[key]
	if !found {
		log.WithField("vcid", key.Vcid).Debug("ccsds: no channel registered")
		return
	}
	ch.frameRcvd(hdr, data)
}

// syncTo consumes bytes from d.src up to and including the next
// occurrence of marker, discarding everything before it. If any bytes
// are discarded before the first match on a given call, that counts as
// one error in total (a lost sync), mirroring the original's RESYNC state.
func (d *Dispatch) syncTo(marker []byte) bool {
	window := stream.ReadBytesExact(d.src, len(marker))
	if window == nil {
		return false
	}
	lost := false
	for !bytesEqual(window, marker) {
		lost = true
		copy(window, window[1:])
		var next [1]byte
		if d.src.ReadBytes(next[:]) != 1 {
			return false
		}
		window[len(window)-1] = next[0]
	}
	if lost {
		d.errCount++
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SendFrame transmits one transfer frame on ch: for a ModeBytes channel,
// data is the raw (zero-padded) payload; for a ModePacket channel, data
// is ignored and the next M_PDU zone is drained from ch's queued SPP
// packets instead. Returns false if the destination has no room for a
// full frame.
func (d *Dispatch) SendFrame(ch *Channel, data []byte) bool {
	tsize := d.tsize()
	if d.insertSync {
		tsize += len(framing.CcsdsSyncMarker)
	}
	if d.dst.GetWriteSpace() < tsize {
		return false
	}

	var zone []byte
	switch ch.Mode {
	case ModePacket:
		z, fhp := ch.nextMpduZone(d.dsize - 2)
		zone = make([]byte, d.dsize)
		putBe16(zone[0:2], fhp)
		copy(zone[2:], z)
	default:
		zone = make([]byte, d.dsize)
		copy(zone, data)
	}

	hdr := ch.nextTxHeader()
	buf := make([]byte, d.tsize())
	Emit(buf, hdr)
	copy(buf[AosHeaderLen:], zone)
	fecf := framing.CRC16CCSDS(buf[:len(buf)-2])
	buf[len(buf)-2] = byte(fecf >> 8)
	buf[len(buf)-1] = byte(fecf)

	if d.insertSync {
		d.dst.WriteBytes(framing.CcsdsSyncMarker[:])
	}
	d.dst.WriteBytes(buf)
	return d.dst.WriteFinalize()
}
