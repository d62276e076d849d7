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

package framing

import (
	"testing"

	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arpRequestS1 is REF1A, the 60-byte known-good Ethernet+ARP request
// frame used as the canonical FCS known-vector
// (https://www.cl.cam.ac.uk/research/srg/han/ACS-P35/ethercrc/).
var arpRequestS1 = []byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x20,
	0xAF, 0xB7, 0x80, 0xB8, 0x08, 0x06, 0x00, 0x01,
	0x08, 0x00, 0x06, 0x04, 0x00, 0x01, 0x00, 0x20,
	0xAF, 0xB7, 0x80, 0xB8, 0x80, 0xE8, 0x0F, 0x94,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0xE8,
	0x0F, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE,
	0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE, 0xDE,
	0xDE, 0xDE, 0xDE, 0xDE,
}

func TestCRC32KnownVector(t *testing.T) {
	require.Len(t, arpRequestS1, 60)
	assert.Equal(t, uint32(0x9ED2C2AF), CRC32(arpRequestS1))
}

func TestChecksumTxRxRoundTrip(t *testing.T) {
	pb := stream.NewPacketBuffer(make([]byte, 128), 4)
	tx := NewChecksumTx(pb)
	tx.WriteBytes(arpRequestS1)
	require.True(t, tx.WriteFinalize())

	require.Equal(t, 64, pb.GetReadReady()) // frame + 4-byte trailer

	out := stream.NewPacketBuffer(make([]byte, 128), 4)
	rx := NewChecksumRx(out)
	raw := make([]byte, pb.GetReadReady())
	pb.ReadBytes(raw)
	rx.WriteBytes(raw)
	assert.True(t, rx.WriteFinalize())
	assert.Equal(t, uint32(1), rx.FrameCount())
	assert.Equal(t, uint32(0), rx.ErrorCount())

	require.Equal(t, len(arpRequestS1), out.GetReadReady())
	got := make([]byte, len(arpRequestS1))
	out.ReadBytes(got)
	assert.Equal(t, arpRequestS1, got)
}

func TestChecksumRxRejectsCorruptFrame(t *testing.T) {
	pb := stream.NewPacketBuffer(make([]byte, 128), 4)
	tx := NewChecksumTx(pb)
	tx.WriteBytes(arpRequestS1)
	require.True(t, tx.WriteFinalize())

	raw := make([]byte, pb.GetReadReady())
	pb.ReadBytes(raw)
	raw[0] ^= 0xFF // corrupt a payload byte

	out := stream.NewPacketBuffer(make([]byte, 128), 4)
	rx := NewChecksumRx(out)
	rx.WriteBytes(raw)
	assert.False(t, rx.WriteFinalize())
	assert.Equal(t, uint32(1), rx.ErrorCount())
	assert.Equal(t, 0, out.GetReadReady())
}
