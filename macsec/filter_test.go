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
	"testing"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link bundles one side's outer Dispatch (carries MACsec frames on the
// wire) plus the raw PacketBuffers used to shuttle frames between two
// simulated peers, the same shape udp/dhcp_test.go uses for its handshake.
type link struct {
	outer *eth.Dispatch
	rx    *stream.PacketBuffer
	tx    *stream.PacketBuffer
}

func newLink(mac eth.MACAddr) *link {
	rx := stream.NewPacketBuffer(make([]byte, 4096), 8)
	tx := stream.NewPacketBuffer(make([]byte, 4096), 8)
	return &link{outer: eth.NewDispatch(mac, rx, tx), rx: rx, tx: tx}
}

func pumpOnce(a, b *link) {
	for a.tx.GetReadReady() > 0 {
		raw := make([]byte, a.tx.GetReadReady())
		a.tx.ReadBytes(raw)
		a.tx.ReadFinalize()
		b.rx.WriteBytes(raw)
		b.rx.WriteFinalize()
		b.outer.DataRcvd()
	}
}

func TestEncoderDecoderEndToEndOverSimulatedWire(t *testing.T) {
	aMAC := eth.MACAddr{0, 0, 0, 0, 0, 0x11}
	bMAC := eth.MACAddr{0, 0, 0, 0, 0, 0x22}
	a := newLink(aMAC)
	b := newLink(bMAC)

	codecTx, err := NewCodec(testKey, flagEnc, 0xA1A2A3A4A5A6A7A8)
	require.NoError(t, err)
	codecRx, err := NewCodec(testKey, flagEnc, 0xA1A2A3A4A5A6A7A8)
	require.NoError(t, err)

	enc := NewEncoder(a.outer, codecTx)

	innerRx := stream.NewPacketBuffer(make([]byte, 4096), 8)
	dec := NewDecoder(b.outer, codecRx, innerRx)

	plain := make([]byte, 0, 20)
	plain = append(plain, bMAC[:]...)
	plain = append(plain, aMAC[:]...)
	plain = append(plain, 0x08, 0x00)
	plain = append(plain, []byte("secured payload")...)

	require.NoError(t, enc.Send(plain, eth.VlanNone))
	pumpOnce(a, b)

	require.Equal(t, len(plain), innerRx.GetReadReady())
	got := make([]byte, innerRx.GetReadReady())
	innerRx.ReadBytes(got)
	innerRx.ReadFinalize()
	assert.Equal(t, plain, got)
	assert.Equal(t, uint32(0), dec.Dropped)
}

func TestDecoderDropsFrameFromWrongCodec(t *testing.T) {
	aMAC := eth.MACAddr{0, 0, 0, 0, 0, 0x33}
	bMAC := eth.MACAddr{0, 0, 0, 0, 0, 0x44}
	a := newLink(aMAC)
	b := newLink(bMAC)

	codecTx, err := NewCodec(testKey, flagEnc, 1)
	require.NoError(t, err)
	wrongKey := append([]byte{}, testKey...)
	wrongKey[0] ^= 0xFF
	codecRx, err := NewCodec(wrongKey, flagEnc, 1)
	require.NoError(t, err)

	enc := NewEncoder(a.outer, codecTx)
	innerRx := stream.NewPacketBuffer(make([]byte, 4096), 8)
	dec := NewDecoder(b.outer, codecRx, innerRx)

	plain := make([]byte, 0, 18)
	plain = append(plain, bMAC[:]...)
	plain = append(plain, aMAC[:]...)
	plain = append(plain, 0x08, 0x00)
	plain = append(plain, []byte("x")...)

	require.NoError(t, enc.Send(plain, eth.VlanNone))
	pumpOnce(a, b)

	assert.Equal(t, 0, innerRx.GetReadReady())
	assert.Equal(t, uint32(1), dec.Dropped)
}
