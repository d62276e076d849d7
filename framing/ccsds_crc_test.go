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

	"github.com/stretchr/testify/assert"
)

func TestCRC16CCSDSCheckValue(t *testing.T) {
	// Canonical CRC-16/XMODEM check value for the ASCII string "123456789".
	assert.Equal(t, uint16(0x31C3), CRC16CCSDS([]byte("123456789")))
}

func TestCRC16CCSDSVerifyRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	crc := CRC16CCSDS(body)
	frame := append(append([]byte{}, body...), byte(crc>>8), byte(crc))
	assert.True(t, CRC16CCSDSVerify(frame))

	frame[0] ^= 0xFF
	assert.False(t, CRC16CCSDSVerify(frame))
}

func TestCcsdsSyncMarkerValue(t *testing.T) {
	assert.Equal(t, [4]byte{0x1A, 0xCF, 0xFC, 0x1D}, CcsdsSyncMarker)
}
