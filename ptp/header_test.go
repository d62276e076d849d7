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

package ptp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:        TypeSync,
		Version:     2,
		Length:      44,
		Domain:      0,
		SdoId:       0x123,
		Flags:       FlagTwoStep | FlagPTPTimescale,
		Correction:  -1234,
		Subtype:     0xAABBCCDD,
		SrcPort:     PortId{ClockId: 0x1122334455667788, PortNum: 1},
		SeqId:       42,
		Control:     0,
		LogInterval: -3,
	}

	buf := make([]byte, HeaderLen)
	Emit(buf, h)
	got, ok := ParseHeader(buf)
	require.True(t, ok)

	assert.Equal(t, h.Type, got.Type)
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, h.Length, got.Length)
	assert.Equal(t, h.Domain, got.Domain)
	assert.Equal(t, h.Flags, got.Flags)
	assert.Equal(t, h.Correction, got.Correction)
	assert.Equal(t, h.Subtype, got.Subtype)
	assert.Equal(t, h.SrcPort, got.SrcPort)
	assert.Equal(t, h.SeqId, got.SeqId)
	assert.Equal(t, h.Control, got.Control)
	assert.Equal(t, h.LogInterval, got.LogInterval)
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	_, ok := ParseHeader(make([]byte, HeaderLen-1))
	assert.False(t, ok)
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := Time{Sec: 1_700_000_000, Nanosec: 123_456_789}
	buf := make([]byte, TimestampLen)
	EmitTimestamp(buf, ts)
	got, ok := ParseTimestamp(buf)
	require.True(t, ok)
	assert.Equal(t, ts, got)
}

func TestClockInfoRoundTrip(t *testing.T) {
	c := ClockInfo{
		Priority1:    128,
		Class:        ClassPrimary,
		Accuracy:     Accuracy25Nsec,
		Variance:     0x4AD9,
		Priority2:    200,
		Identity:     0xDEADBEEFCAFEBABE,
		StepsRemoved: 3,
	}
	buf := make([]byte, ClockInfoLen)
	EmitClockInfo(buf, c)
	got, ok := ParseClockInfo(buf)
	require.True(t, ok)
	assert.Equal(t, c.Priority1, got.Priority1)
	assert.Equal(t, c.Class, got.Class)
	assert.Equal(t, c.Accuracy, got.Accuracy)
	assert.Equal(t, c.Variance, got.Variance)
	assert.Equal(t, c.Priority2, got.Priority2)
	assert.Equal(t, c.Identity, got.Identity)
	assert.Equal(t, c.StepsRemoved, got.StepsRemoved)
}

func TestAnnounceRoundTrip(t *testing.T) {
	a := Announce{
		OriginTimestamp:  Time{Sec: 100, Nanosec: 5},
		CurrentUTCOffset: 37,
		GrandmasterClock: ClockInfo{
			Priority1: PriorityMid, Class: ClassPrimary, Accuracy: Accuracy25Nsec,
			Variance: 0x4AD9, Priority2: PriorityMid, Identity: 0x1, StepsRemoved: 0,
			TimeSource: SourceGNSS,
		},
	}
	buf := make([]byte, announceBodyLen)
	a.Emit(buf)
	got, ok := ParseAnnounce(Header{}, buf)
	require.True(t, ok)
	assert.Equal(t, a.OriginTimestamp, got.OriginTimestamp)
	assert.Equal(t, a.CurrentUTCOffset, got.CurrentUTCOffset)
	assert.Equal(t, a.GrandmasterClock, got.GrandmasterClock)
}

func TestDelayRespRoundTrip(t *testing.T) {
	d := DelayResp{
		ReceiveTimestamp:       Time{Sec: 9, Nanosec: 1},
		RequestingPortIdentity: PortId{ClockId: 0x0102030405060708, PortNum: 7},
	}
	buf := make([]byte, delayRespBodyLen)
	d.Emit(buf)
	got, ok := ParseDelayResp(Header{}, buf)
	require.True(t, ok)
	assert.Equal(t, d.ReceiveTimestamp, got.ReceiveTimestamp)
	assert.Equal(t, d.RequestingPortIdentity, got.RequestingPortIdentity)
}

func TestMeasurementOffsetAndDelay(t *testing.T) {
	// Symmetric path: 500ns one-way delay, slave clock exactly 1000ns
	// ahead of master (T2 = T1+delay+offset, T4 = T3+delay-offset).
	m := Measurement{
		T1: Time{Sec: 100, Nanosec: 0},
		T2: Time{Sec: 100, Nanosec: 1500},
		T3: Time{Sec: 101, Nanosec: 0},
		T4: Time{Sec: 100, Nanosec: 999999500},
	}
	assert.Equal(t, int64(1000), m.Offset())
	assert.Equal(t, int64(500), m.MeanPathDelay())
}
