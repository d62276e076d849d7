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
	"testing"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) (*eth.Dispatch, *ipv4.Dispatch, *Dispatch, *stream.PacketBuffer, *stream.PacketBuffer) {
	rx := stream.NewPacketBuffer(make([]byte, 1024), 4)
	tx := stream.NewPacketBuffer(make([]byte, 1024), 4)
	selfMAC := eth.MACAddr{0x02, 0, 0, 0, 0, 1}
	ed := eth.NewDispatch(selfMAC, rx, tx)
	tbl := ipv4.NewTable(8)
	tbl.AddStatic(ipv4.Route{Dst: ipv4.Subnet{Base: 0xC0A80100, Mask: 0xFFFFFF00}, Gateway: ipv4.AddrBroadcast, MAC: eth.MACAddr{9, 9, 9, 9, 9, 9}})
	id := ipv4.NewDispatch(ed, 0xC0A80101, tbl)
	ud := NewDispatch(id)
	return ed, id, ud, rx, tx
}

func buildUDPFrame(t *testing.T, dstMAC, srcMAC eth.MACAddr, ipHdr ipv4.Header, udpHdr Header, payload []byte) []byte {
	udpHdr.Length = uint16(8 + len(payload))
	var udpBuf [8]byte
	Emit(udpBuf[:], udpHdr)

	ipHdr.Protocol = ipv4.ProtoUDP
	ipHdr.TotalLen = uint16(20 + 8 + len(payload))
	var ipBuf [20]byte
	ipv4.Emit(ipBuf[:], ipHdr)

	var out []byte
	out = append(out, dstMAC[:]...)
	out = append(out, srcMAC[:]...)
	out = append(out, byte(eth.EtherTypeIPv4>>8), byte(eth.EtherTypeIPv4))
	out = append(out, ipBuf[:]...)
	out = append(out, udpBuf[:]...)
	out = append(out, payload...)
	return out
}

func TestUDPDispatchDeliversByPort(t *testing.T) {
	ed, _, ud, rx, _ := newTestStack(t)
	var got []byte
	ud.Register(5000, ProtocolFunc(func(src stream.Readable) {
		got = make([]byte, src.GetReadReady())
		src.ReadBytes(got)
	}))

	ipHdr := ipv4.Header{TTL: 64, Src: 0xC0A80102, Dst: 0xC0A80101}
	udpHdr := Header{SrcPort: 4000, DstPort: 5000}
	frame := buildUDPFrame(t, ed.Self(), eth.MACAddr{1, 2, 3, 4, 5, 6}, ipHdr, udpHdr, []byte("payload"))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	ed.DataRcvd()

	assert.Equal(t, "payload", string(got))
}

func TestUDPDispatchDropsUnknownPort(t *testing.T) {
	ed, _, ud, rx, _ := newTestStack(t)
	called := false
	ud.Register(5000, ProtocolFunc(func(src stream.Readable) { called = true }))

	ipHdr := ipv4.Header{TTL: 64, Src: 0xC0A80102, Dst: 0xC0A80101}
	udpHdr := Header{SrcPort: 4000, DstPort: 5001}
	frame := buildUDPFrame(t, ed.Self(), eth.MACAddr{1, 2, 3, 4, 5, 6}, ipHdr, udpHdr, []byte("x"))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	ed.DataRcvd()

	assert.False(t, called)
}

func TestUDPOpenReplySwapsPorts(t *testing.T) {
	ed, _, ud, rx, tx := newTestStack(t)
	ud.Register(5000, ProtocolFunc(func(src stream.Readable) {
		w := ud.OpenReply(2)
		require.NotNil(t, w)
		stream.WriteU16(w, 0xABCD)
		require.True(t, w.WriteFinalize())
	}))

	ipHdr := ipv4.Header{TTL: 64, Src: 0xC0A80102, Dst: 0xC0A80101}
	udpHdr := Header{SrcPort: 4000, DstPort: 5000}
	frame := buildUDPFrame(t, ed.Self(), eth.MACAddr{1, 2, 3, 4, 5, 6}, ipHdr, udpHdr, []byte("x"))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	ed.DataRcvd()

	require.Greater(t, tx.GetReadReady(), 0)
	out := make([]byte, tx.GetReadReady())
	tx.ReadBytes(out)
	// eth(14) + ip(20) + udp header: src/dst ports swapped.
	gotSrcPort := uint16(out[34])<<8 | uint16(out[35])
	gotDstPort := uint16(out[36])<<8 | uint16(out[37])
	assert.Equal(t, uint16(5000), gotSrcPort)
	assert.Equal(t, uint16(4000), gotDstPort)
}
