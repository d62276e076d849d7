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

// Package framing holds the byte-level codecs shared by every protocol
// layer above it: SLIP serial framing, Ethernet FCS, the IPv4 header
// checksum, and the CCSDS CRC-16 trailer.
package framing

import "github.com/satcat5/satnet/stream"

const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// SlipEncoder wraps a Writeable, escaping END/ESC bytes per RFC 1055 and
// writing a leading END delimiter before each frame after the first.
type SlipEncoder struct {
	dst      stream.Writeable
	wroteAny bool
}

// NewSlipEncoder wraps dst.
func NewSlipEncoder(dst stream.Writeable) *SlipEncoder { return &SlipEncoder{dst: dst} }

// Encode writes one SLIP-framed copy of pkt to the destination.
func (s *SlipEncoder) Encode(pkt []byte) {
	if s.wroteAny {
		s.dst.WriteBytes([]byte{slipEnd})
	}
	s.wroteAny = true
	for _, b := range pkt {
		switch b {
		case slipEnd:
			s.dst.WriteBytes([]byte{slipEsc, slipEscEnd})
		case slipEsc:
			s.dst.WriteBytes([]byte{slipEsc, slipEscEsc})
		default:
			s.dst.WriteBytes([]byte{b})
		}
	}
	s.dst.WriteBytes([]byte{slipEnd})
	s.dst.WriteFinalize()
}

// SlipDecoder reassembles SLIP-framed bytes from a serial byte stream into
// whole packets, written one per END delimiter to dst. Empty frames
// (two END delimiters in a row, or a leading END before the first real
// frame) are discarded rather than delivered as zero-length packets.
type SlipDecoder struct {
	dst     stream.Writeable
	escNext bool
	any     bool
}

// NewSlipDecoder wraps dst, which should be in packet mode so each
// decoded frame becomes one queued packet.
func NewSlipDecoder(dst stream.Writeable) *SlipDecoder { return &SlipDecoder{dst: dst} }

// Feed processes raw serial bytes, emitting zero or more decoded packets
// to dst as END delimiters are encountered.
func (s *SlipDecoder) Feed(raw []byte) {
	for _, b := range raw {
		switch {
		case s.escNext:
			s.escNext = false
			switch b {
			case slipEscEnd:
				s.dst.WriteBytes([]byte{slipEnd})
				s.any = true
			case slipEscEsc:
				s.dst.WriteBytes([]byte{slipEsc})
				s.any = true
			default:
				// Malformed escape: pass the byte through verbatim.
				s.dst.WriteBytes([]byte{b})
				s.any = true
			}
		case b == slipEsc:
			s.escNext = true
		case b == slipEnd:
			if s.any {
				s.dst.WriteFinalize()
			} else {
				s.dst.WriteAbort()
			}
			s.any = false
		default:
			s.dst.WriteBytes([]byte{b})
			s.any = true
		}
	}
}
