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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

func plaintextFrame(payload string) []byte {
	f := make([]byte, 0, 14+len(payload))
	f = append(f, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x01) // dst
	f = append(f, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0x02) // src
	f = append(f, 0x08, 0x00)                         // inner etype (IPv4, arbitrary)
	f = append(f, []byte(payload)...)
	return f
}

func TestTciErrorRejectsReservedVersionAndConflictingSciEs(t *testing.T) {
	assert.True(t, tciError(flagVer))
	assert.True(t, tciError(flagSci|flagEs))
	assert.False(t, tciError(flagSci))
	assert.False(t, tciError(flagEs))
	assert.False(t, tciError(flagEnc))
}

func TestHeaderLenWithAndWithoutSCI(t *testing.T) {
	assert.Equal(t, 20, headerLen(flagEnc))
	assert.Equal(t, 28, headerLen(flagEnc|flagSci))
}

func TestNewCodecRejectsInvalidTCI(t *testing.T) {
	c, err := NewCodec(testKey, flagVer, 1)
	require.NoError(t, err)
	_, encErr := c.EncryptFrame(plaintextFrame("x"), 1)
	assert.ErrorIs(t, encErr, ErrBadTCI)
}

func TestEncryptDecryptRoundTripEncryptedMode(t *testing.T) {
	enc, err := NewCodec(testKey, flagEnc|flagSci, 0x1122334455667788)
	require.NoError(t, err)
	dec, err := NewCodec(testKey, flagEnc|flagSci, 0x1122334455667788)
	require.NoError(t, err)

	plain := plaintextFrame("hello macsec")
	sealed, err := enc.EncryptFrame(plain, 42)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hello macsec", "payload must not appear in clear")

	got, nextPN, err := dec.DecryptFrame(sealed, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	assert.Equal(t, uint64(42), nextPN)
}

func TestEncryptDecryptRoundTripAuthOnlyMode(t *testing.T) {
	// flagEnc clear: frame is authenticated but payload stays in the clear.
	enc, err := NewCodec(testKey, 0, 7)
	require.NoError(t, err)
	dec, err := NewCodec(testKey, 0, 7)
	require.NoError(t, err)

	plain := plaintextFrame("visible payload")
	sealed, err := enc.EncryptFrame(plain, 1)
	require.NoError(t, err)
	assert.Contains(t, string(sealed), "visible payload")

	got, _, err := dec.DecryptFrame(sealed, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewCodec(testKey, flagEnc, 9)
	require.NoError(t, err)
	dec, err := NewCodec(testKey, flagEnc, 9)
	require.NoError(t, err)

	sealed, err := enc.EncryptFrame(plaintextFrame("integrity check"), 1)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF // flip a tag byte

	_, _, err = dec.DecryptFrame(sealed, 0)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc, err := NewCodec(testKey, flagEnc, 1)
	require.NoError(t, err)
	otherKey := append([]byte{}, testKey...)
	otherKey[0] ^= 0xFF
	dec, err := NewCodec(otherKey, flagEnc, 1)
	require.NoError(t, err)

	sealed, err := enc.EncryptFrame(plaintextFrame("secret"), 1)
	require.NoError(t, err)
	_, _, err = dec.DecryptFrame(sealed, 0)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestXPNRoundTripWithPacketNumberRollover(t *testing.T) {
	var salt [ivLen]byte
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	enc, err := NewCodecXPN(testKey, salt, flagEnc, 3, 0xCAFEBABE)
	require.NoError(t, err)
	dec, err := NewCodecXPN(testKey, salt, flagEnc, 3, 0xCAFEBABE)
	require.NoError(t, err)

	// Actual packet number rolls past 2^32; the wire only carries the
	// low 32 bits, so the receiver must infer the rollover from lastPN.
	actualPN := uint64(1)<<32 + 5
	sealed, err := enc.EncryptFrame(plaintextFrame("xpn"), actualPN)
	require.NoError(t, err)

	got, nextPN, err := dec.DecryptFrame(sealed, 0xFFFFFFF0)
	require.NoError(t, err)
	assert.Equal(t, actualPN, nextPN)
	assert.Equal(t, plaintextFrame("xpn"), got)
}

func TestDecryptRejectsTruncatedFrame(t *testing.T) {
	c, err := NewCodec(testKey, flagEnc, 1)
	require.NoError(t, err)
	_, _, err = c.DecryptFrame([]byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncryptWithEndStationFlagReplacesSourceMAC(t *testing.T) {
	c, err := NewCodec(testKey, flagEnc|flagEs, 0x0000AABBCCDDEEFF)
	require.NoError(t, err)
	plain := plaintextFrame("es")
	sealed, err := c.EncryptFrame(plain, 1)
	require.NoError(t, err)
	assert.NotEqual(t, plain[6:12], sealed[6:12], "source MAC must be replaced by the SCI-derived identifier")
}
