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

package hal

import (
	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/stream"
)

// rawLink is the byte-level transport a SlipPort frames: a SerialPort in
// production, a loopback buffer pair in tests.
type rawLink interface {
	stream.Readable
	stream.Writeable
}

// SlipPort layers framing.SLIP over a raw byte link, presenting whole
// Ethernet frames instead of an escaped byte stream: Rx() is the Readable
// side for switchcore.Port.Src, and SlipPort itself is the Writeable side
// for switchcore.Port.Dst. This is the piece that turns a SerialPort (or
// any other rawLink) into the "physical port" a switchcore.SwitchCore or
// router2 interface binds to.
type SlipPort struct {
	raw     rawLink
	enc     *framing.SlipEncoder
	dec     *framing.SlipDecoder
	decoded *stream.PacketBuffer
	txBuf   []byte
}

// NewSlipPort wraps raw, buffering up to bufSize bytes of decoded frames
// (at most maxPkt frames queued at once) before a consumer drains Rx().
func NewSlipPort(raw rawLink, bufSize, maxPkt int) *SlipPort {
	decoded := stream.NewPacketBuffer(make([]byte, bufSize), maxPkt)
	return &SlipPort{
		raw:     raw,
		enc:     framing.NewSlipEncoder(raw),
		dec:     framing.NewSlipDecoder(decoded),
		decoded: decoded,
	}
}

// Rx is the decoded-frame Readable side, suitable for switchcore.Port.Src
// or router2's equivalent interface binding.
func (p *SlipPort) Rx() stream.Readable { return p.decoded }

// PollAlways drains raw's pending bytes through the SLIP decoder, queuing
// whole frames into Rx(). Register with a polling.Loop as an Always task.
func (p *SlipPort) PollAlways() {
	n := p.raw.GetReadReady()
	if n == 0 {
		return
	}
	buf := make([]byte, n)
	p.raw.ReadBytes(buf)
	p.dec.Feed(buf)
}

// GetWriteSpace implements stream.Writeable.
func (p *SlipPort) GetWriteSpace() int { return p.raw.GetWriteSpace() }

// WriteBytes implements stream.Writeable, accumulating one frame's bytes
// until WriteFinalize hands them to the SLIP encoder as a unit.
func (p *SlipPort) WriteBytes(b []byte) { p.txBuf = append(p.txBuf, b...) }

// WriteFinalize implements stream.Writeable.
func (p *SlipPort) WriteFinalize() bool {
	p.enc.Encode(p.txBuf)
	p.txBuf = p.txBuf[:0]
	return true
}

// WriteAbort implements stream.Writeable.
func (p *SlipPort) WriteAbort() { p.txBuf = p.txBuf[:0] }
