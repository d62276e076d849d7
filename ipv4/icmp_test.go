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

package ipv4

import (
	"testing"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICMPEchoRequestProducesEchoReply(t *testing.T) {
	ed, id, rx, tx := newTestStack(t)
	selfMAC := ed.Self()

	hdr := Header{TTL: 64, Protocol: ProtoICMP, Src: 0xC0A80102, Dst: 0xC0A80101}
	echoBody := []byte{8, 0, 0, 0, 0x12, 0x34, 0, 1, 'p', 'i', 'n', 'g'}
	csum := func(b []byte) uint16 {
		full := make([]byte, len(b))
		copy(full, b)
		full[2], full[3] = 0, 0
		return echoChecksum(full)
	}
	c := csum(echoBody)
	echoBody[2], echoBody[3] = byte(c>>8), byte(c)

	frame := buildIPFrame(t, selfMAC, eth.MACAddr{1, 2, 3, 4, 5, 6}, hdr, echoBody)
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	ed.DataRcvd()

	require.Greater(t, tx.GetReadReady(), 0)
	out := make([]byte, tx.GetReadReady())
	tx.ReadBytes(out)
	// type byte sits right after the 14-byte eth header + 20-byte IP header.
	assert.Equal(t, uint8(icmpEchoReply), out[34])
}

func TestICMPUnreachableSentForUnknownProtocol(t *testing.T) {
	ed, _, rx, tx := newTestStack(t)
	selfMAC := ed.Self()

	hdr := Header{TTL: 64, Protocol: 253, Src: 0xC0A80102, Dst: 0xC0A80101} // unassigned protocol
	frame := buildIPFrame(t, selfMAC, eth.MACAddr{1, 2, 3, 4, 5, 6}, hdr, []byte("xx"))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	ed.DataRcvd()

	require.Greater(t, tx.GetReadReady(), 0)
	out := make([]byte, tx.GetReadReady())
	tx.ReadBytes(out)
	assert.Equal(t, uint8(icmpUnreachable), out[34])
	assert.Equal(t, uint8(icmpUnreachProtocol), out[35])
}

func TestICMPRedirectUpdatesGateway(t *testing.T) {
	_, id, _, _ := newTestStack(t)

	origHdr := Header{TTL: 64, Protocol: ProtoUDP, Src: 0xC0A80101, Dst: 0x08080808}
	var origRaw [20]byte
	Emit(origRaw[:], origHdr)

	body := make([]byte, 8)
	body[0], body[1] = icmpRedirect, icmpRedirectHost
	newGateway := Address(0xC0A80150)
	body[4] = byte(newGateway >> 24)
	body[5] = byte(newGateway >> 16)
	body[6] = byte(newGateway >> 8)
	body[7] = byte(newGateway)
	body = append(body, origRaw[:]...)

	id.icmp.FrameRcvd(stream.NewArrayRead(body))

	r, ok := id.table.RouteLookup(0x08080808)
	require.True(t, ok)
	assert.Equal(t, Address(0xC0A80150), r.Gateway)
}

// echoChecksum is a tiny local helper mirroring writeICMP's checksum step,
// kept separate so the test can build a correctly checksummed echo request
// without depending on unexported wire-writing internals.
func echoChecksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n&1 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
