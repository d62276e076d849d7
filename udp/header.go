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

// Package udp implements UDP datagram dispatch, bind/connect sockets,
// and the DHCP client and server built on top of them.
package udp

// Header is the 8-byte UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// ParseHeader parses the 8-byte UDP header prefix from raw.
func ParseHeader(raw []byte) (Header, bool) {
	if len(raw) < 8 {
		return Header{}, false
	}
	return Header{
		SrcPort:  uint16(raw[0])<<8 | uint16(raw[1]),
		DstPort:  uint16(raw[2])<<8 | uint16(raw[3]),
		Length:   uint16(raw[4])<<8 | uint16(raw[5]),
		Checksum: uint16(raw[6])<<8 | uint16(raw[7]),
	}, true
}

// Emit writes an 8-byte UDP header (checksum left as given; callers that
// want a computed checksum call FillChecksum after writing the payload).
func Emit(buf []byte, h Header) {
	buf[0], buf[1] = byte(h.SrcPort>>8), byte(h.SrcPort)
	buf[2], buf[3] = byte(h.DstPort>>8), byte(h.DstPort)
	buf[4], buf[5] = byte(h.Length>>8), byte(h.Length)
	buf[6], buf[7] = byte(h.Checksum>>8), byte(h.Checksum)
}
