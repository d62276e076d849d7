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

package macsec

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
)

// Decoder registers on an outer eth.Dispatch for eth.EtherTypeMACsec,
// decrypts each arriving frame, and writes the recovered plaintext frame
// into innerRx for an inner eth.Dispatch to process — the same
// buffer-mediated handoff tpipe and the switch pipeline use between
// stages, rather than a method call straight into the inner Dispatch.
type Decoder struct {
	outer   *eth.Dispatch
	codec   *Codec
	innerRx *stream.PacketBuffer
	lastPN  uint64

	// Dropped counts frames that failed authentication or parsing, for
	// callers that want a cheap health signal without wiring telemetry.
	Dropped uint32
}

// NewDecoder builds a Decoder and registers it on outer for
// eth.EtherTypeMACsec. innerRx is the rx buffer of the inner eth.Dispatch
// that should receive decrypted frames; it may be nil if the caller only
// wants DecryptFrame's side effects (PN tracking) without re-injection.
func NewDecoder(outer *eth.Dispatch, codec *Codec, innerRx *stream.PacketBuffer) *Decoder {
	d := &Decoder{outer: outer, codec: codec, innerRx: innerRx}
	outer.Register(eth.Type{Etype: eth.EtherTypeMACsec}, d)
	return d
}

// FrameRcvd implements eth.Protocol.
func (d *Decoder) FrameRcvd(src stream.Readable) {
	hdr := d.outer.Reply()
	rest := make([]byte, src.GetReadReady())
	src.ReadBytes(rest)

	frame := make([]byte, 0, 14+len(rest))
	frame = append(frame, hdr.Dst[:]...)
	frame = append(frame, hdr.Src[:]...)
	frame = append(frame, byte(eth.EtherTypeMACsec>>8), byte(eth.EtherTypeMACsec))
	frame = append(frame, rest...)

	plain, nextPN, err := d.codec.DecryptFrame(frame, d.lastPN)
	if err != nil {
		d.Dropped++
		log.WithField("err", err.Error()).Debug("macsec: dropped frame")
		return
	}
	d.lastPN = nextPN

	if d.innerRx == nil || d.innerRx.GetWriteSpace() < len(plain) {
		return
	}
	d.innerRx.WriteBytes(plain)
	d.innerRx.WriteFinalize()
}

// Encoder encrypts plaintext frames written to it (by an inner
// eth.Dispatch's OpenWrite/OpenReply path) and emits them as
// eth.EtherTypeMACsec frames on an outer eth.Dispatch.
type Encoder struct {
	outer *eth.Dispatch
	codec *Codec
	pn    uint64
}

// NewEncoder builds an Encoder that sends encrypted frames on outer.
func NewEncoder(outer *eth.Dispatch, codec *Codec) *Encoder {
	return &Encoder{outer: outer, codec: codec}
}

// Send encrypts plain (dst MAC, src MAC, inner EtherType, payload) and
// transmits it as a single MACsec frame on the outer interface, addressed
// to the same destination MAC and carrying the same VLAN tag vtag.
func (e *Encoder) Send(plain []byte, vtag eth.VlanTag) error {
	if len(plain) < 14 {
		return ErrMalformed
	}
	var dst eth.MACAddr
	copy(dst[:], plain[0:6])

	e.pn++
	sealed, err := e.codec.EncryptFrame(plain, e.pn)
	if err != nil {
		e.pn--
		return err
	}

	// OpenWrite regenerates dst/src/etype itself (src = outer.Self()), so
	// only the SecTag onward is written from sealed. This is only wire-
	// faithful for codecs without the end-station flag, which replace the
	// emitted source MAC with an SCI-derived value OpenWrite can't produce;
	// Send is not used for that mode.
	w := e.outer.OpenWrite(dst, vtag, eth.EtherTypeMACsec, len(sealed)-14)
	if w == nil {
		e.pn--
		return ErrTooLong
	}
	w.WriteBytes(sealed[14:])
	w.WriteFinalize()
	return nil
}
