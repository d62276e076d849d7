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
	"testing"

	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatch() (*Dispatch, *stream.PacketBuffer, *stream.PacketBuffer) {
	rx := stream.NewPacketBuffer(make([]byte, 256), 4)
	tx := stream.NewPacketBuffer(make([]byte, 256), 4)
	self := MACAddr{0x02, 0, 0, 0, 0, 1}
	return NewDispatch(self, rx, tx), rx, tx
}

func TestArpRequestTransmitsBroadcast(t *testing.T) {
	d, _, tx := newTestDispatch()
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)
	arp := NewProtoArp(d, 0xC0A80101, clk)
	d.Register(Type{Etype: EtherTypeARP}, arp)

	arp.SendRequest(0xC0A80102)
	require.Equal(t, 42, tx.GetReadReady()) // 14-byte header + 28-byte ARP body
	out := make([]byte, 42)
	tx.ReadBytes(out)
	assert.Equal(t, BroadcastMAC[:], out[0:6])
	assert.Equal(t, EtherTypeARP, EtherType(uint16(out[12])<<8|uint16(out[13])))
}

func TestArpResolvesAndNotifiesListener(t *testing.T) {
	d, rx, _ := newTestDispatch()
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)
	arp := NewProtoArp(d, 0xC0A80101, clk)
	d.Register(Type{Etype: EtherTypeARP}, arp)

	var gotIP uint32
	var gotMAC MACAddr
	arp.AddListener(ArpListenerFunc(func(ip uint32, mac MACAddr) {
		gotIP, gotMAC = ip, mac
	}))
	arp.SendRequest(0xC0A80102)
	require.Len(t, arp.pending, 1)

	replier := MACAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	frame := buildFrame(d.Self(), replier, VlanNone, EtherTypeARP, arpBody(arpOperReply, replier, 0xC0A80102, d.Self(), 0xC0A80101))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	d.DataRcvd()

	assert.Equal(t, uint32(0xC0A80102), gotIP)
	assert.Equal(t, replier, gotMAC)
	assert.Empty(t, arp.pending, "resolved query must be removed")
}

func TestArpAnswersAuthoritativeRequest(t *testing.T) {
	d, rx, tx := newTestDispatch()
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)
	arp := NewProtoArp(d, 0xC0A80101, clk)
	d.Register(Type{Etype: EtherTypeARP}, arp)

	asker := MACAddr{1, 2, 3, 4, 5, 6}
	frame := buildFrame(BroadcastMAC, asker, VlanNone, EtherTypeARP, arpBody(arpOperRequest, asker, 0xC0A80103, NullMAC, 0xC0A80101))
	rx.WriteBytes(frame)
	require.True(t, rx.WriteFinalize())
	d.DataRcvd()

	require.Equal(t, 42, tx.GetReadReady())
	out := make([]byte, 42)
	tx.ReadBytes(out)
	assert.Equal(t, asker[:], out[0:6]) // reply unicast back to asker
}

func TestArpBackoffRetriesThenGivesUp(t *testing.T) {
	d, _, tx := newTestDispatch()
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)
	arp := NewProtoArp(d, 0xC0A80101, clk)
	d.Register(Type{Etype: EtherTypeARP}, arp)

	arp.SendRequest(0xC0A80102)
	tx.ReadBytes(make([]byte, tx.GetReadReady())) // drain initial request
	tx.ReadFinalize()

	for i := 0; i < arpMaxRetries; i++ {
		clk.AdvanceMsec(uint32(arpRetryBaseMsec << uint(i+1)))
		arp.PollAlways()
	}
	assert.Empty(t, arp.pending, "query must be abandoned after max retries")
}

func arpBody(oper uint16, senderMAC MACAddr, senderIP uint32, targetMAC MACAddr, targetIP uint32) []byte {
	var b []byte
	b = append(b, 0, 1) // htype
	b = append(b, 8, 0) // ptype
	b = append(b, 6, 4)
	b = append(b, byte(oper>>8), byte(oper))
	b = append(b, senderMAC[:]...)
	b = append(b, byte(senderIP>>24), byte(senderIP>>16), byte(senderIP>>8), byte(senderIP))
	b = append(b, targetMAC[:]...)
	b = append(b, byte(targetIP>>24), byte(targetIP>>16), byte(targetIP>>8), byte(targetIP))
	return b
}
