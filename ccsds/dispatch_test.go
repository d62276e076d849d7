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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/stream"
)

func TestBytesChannelRoundTrip(t *testing.T) {
	const dsize = 16

	txBuf := make([]byte, 64)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, false)
	txCh := NewChannel(42, 3, ModeBytes)
	txDispatch.Register(txCh)

	payload := []byte("hello world!")
	require.True(t, txDispatch.SendFrame(txCh, payload))

	r := stream.NewArrayRead(w.Written())
	rxDispatch := NewDispatch(r, nil, dsize, false)
	rxCh := NewChannel(42, 3, ModeBytes)
	sink := stream.NewArrayWrite(make([]byte, dsize))
	rxCh.SetSink(sink)
	rxDispatch.Register(rxCh)

	rxDispatch.FrameRcvd()

	want := make([]byte, dsize)
	copy(want, payload)
	assert.Equal(t, want, sink.Written())
	assert.Equal(t, 0, rxDispatch.ErrorCount())
	assert.Equal(t, 1, rxDispatch.FrameCount())
	assert.Equal(t, 0, rxCh.ErrorCount())
}

func TestFrameDropIncrementsChannelErrorCount(t *testing.T) {
	const dsize = 16
	const frames = 3

	txBuf := make([]byte, 256)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, false)
	txCh := NewChannel(9, 1, ModeBytes)
	txDispatch.Register(txCh)

	for i := 0; i < frames; i++ {
		require.True(t, txDispatch.SendFrame(txCh, []byte{byte(i)}))
	}

	tsize := txDispatch.tsize()
	all := w.Written()
	require.Equal(t, frames*tsize, len(all))

	// Excise the middle frame to simulate a physical-layer drop.
	dropped := append(append([]byte{}, all[:tsize]...), all[2*tsize:]...)

	r := stream.NewArrayRead(dropped)
	rxDispatch := NewDispatch(r, nil, dsize, false)
	rxCh := NewChannel(9, 1, ModeBytes)
	rxCh.SetSink(stream.NewArrayWrite(make([]byte, dsize)))
	rxDispatch.Register(rxCh)

	rxDispatch.FrameRcvd()
	rxDispatch.FrameRcvd()

	assert.Equal(t, 2, rxDispatch.FrameCount())
	assert.Equal(t, 1, rxCh.ErrorCount(), "exactly one frame-count discontinuity expected")
}

func TestSyncMarkerResynchronizesAfterGarbage(t *testing.T) {
	const dsize = 16

	txBuf := make([]byte, 64)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, true)
	txCh := NewChannel(5, 1, ModeBytes)
	txDispatch.Register(txCh)
	require.True(t, txDispatch.SendFrame(txCh, []byte("telemetry")))

	garbage := []byte{0xAA, 0xBB}
	rxBuf := append(append([]byte{}, garbage...), w.Written()...)

	r := stream.NewArrayRead(rxBuf)
	rxDispatch := NewDispatch(r, nil, dsize, true)
	rxCh := NewChannel(5, 1, ModeBytes)
	sink := stream.NewArrayWrite(make([]byte, dsize))
	rxCh.SetSink(sink)
	rxDispatch.Register(rxCh)

	rxDispatch.FrameRcvd()

	want := make([]byte, dsize)
	copy(want, []byte("telemetry"))
	assert.Equal(t, want, sink.Written())
	assert.Equal(t, 1, rxDispatch.ErrorCount(), "lost sync before the marker must count once")
	assert.Equal(t, 1, rxDispatch.FrameCount())
}

func TestFecfMismatchDropsFrameAndCountsError(t *testing.T) {
	const dsize = 16

	txBuf := make([]byte, 64)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, false)
	txCh := NewChannel(1, 1, ModeBytes)
	txDispatch.Register(txCh)
	require.True(t, txDispatch.SendFrame(txCh, []byte("x")))

	corrupt := append([]byte{}, w.Written()...)
	corrupt[len(corrupt)-1] ^= 0xFF

	r := stream.NewArrayRead(corrupt)
	rxDispatch := NewDispatch(r, nil, dsize, false)
	rxDispatch.FrameRcvd()

	assert.Equal(t, 1, rxDispatch.ErrorCount())
	assert.Equal(t, 0, rxDispatch.FrameCount())
}

func TestPacketChannelReassemblesSppAcrossFrames(t *testing.T) {
	const dsize = 10
	const zoneSize = dsize - 2

	txBuf := make([]byte, 256)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, false)
	txCh := NewChannel(7, 2, ModePacket)
	txDispatch.Register(txCh)

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	hdr := NewSppHeader(99, 1)
	txCh.SendPacket(hdr, payload)

	frameCount := 0
	for txCh.Pending() {
		require.True(t, txDispatch.SendFrame(txCh, nil))
		frameCount++
	}
	assert.Equal(t, (SppHeaderLen+len(payload)+zoneSize-1)/zoneSize, frameCount)

	r := stream.NewArrayRead(w.Written())
	rxDispatch := NewDispatch(r, nil, dsize, false)
	rxCh := NewChannel(7, 2, ModePacket)
	var gotHdr SppHeader
	var gotPayload []byte
	calls := 0
	rxCh.SetSppHandler(func(h SppHeader, p []byte) {
		calls++
		gotHdr = h
		gotPayload = append([]byte{}, p...)
	})
	rxDispatch.Register(rxCh)

	for i := 0; i < frameCount; i++ {
		rxDispatch.FrameRcvd()
	}

	require.Equal(t, 1, calls)
	assert.Equal(t, uint16(99), gotHdr.Apid())
	assert.Equal(t, payload, gotPayload)
}

func TestIdleFrameCarriesNoPacket(t *testing.T) {
	const dsize = 10

	txBuf := make([]byte, 64)
	w := stream.NewArrayWrite(txBuf)
	txDispatch := NewDispatch(nil, w, dsize, false)
	txCh := NewChannel(3, 4, ModePacket)
	txDispatch.Register(txCh)
	require.False(t, txCh.Pending())
	require.True(t, txDispatch.SendFrame(txCh, nil))

	r := stream.NewArrayRead(w.Written())
	rxDispatch := NewDispatch(r, nil, dsize, false)
	rxCh := NewChannel(3, 4, ModePacket)
	calls := 0
	rxCh.SetSppHandler(func(SppHeader, []byte) { calls++ })
	rxDispatch.Register(rxCh)

	rxDispatch.FrameRcvd()
	assert.Equal(t, 0, calls)
}

// sanity-check that the FECF helper the dispatch layer relies on is the
// same CCSDS-XMODEM CRC used for AOS frames throughout this package.
func TestDispatchUsesCcsdsFecf(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	crc := framing.CRC16CCSDS(body)
	full := append(append([]byte{}, body...), byte(crc>>8), byte(crc))
	assert.True(t, framing.CRC16CCSDSVerify(full))
}
