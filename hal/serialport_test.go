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

package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestSerialPort builds a SerialPort with no backing device, so these
// tests exercise only the buffer bookkeeping readLoop would otherwise fill.
func newTestSerialPort(data []byte) *SerialPort {
	return &SerialPort{buf: append([]byte{}, data...), closed: make(chan struct{})}
}

func TestGetReadReadyReflectsBufferedBytes(t *testing.T) {
	s := newTestSerialPort([]byte("hello"))
	assert.Equal(t, 5, s.GetReadReady())
}

func TestReadBytesDrainsAndShrinksBuffer(t *testing.T) {
	s := newTestSerialPort([]byte("hello world"))
	p := make([]byte, 5)
	n := s.ReadBytes(p)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(p))
	assert.Equal(t, 6, s.GetReadReady())

	rest := make([]byte, 6)
	n = s.ReadBytes(rest)
	assert.Equal(t, 6, n)
	assert.Equal(t, " world", string(rest))
	assert.Equal(t, 0, s.GetReadReady())
}

func TestReadBytesWithUndersizedBufferReadsPartial(t *testing.T) {
	s := newTestSerialPort([]byte("abcdef"))
	p := make([]byte, 3)
	n := s.ReadBytes(p)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(p))
	assert.Equal(t, 3, s.GetReadReady())
}

func TestReadConsumeDropsBytesWithoutReturningThem(t *testing.T) {
	s := newTestSerialPort([]byte("abcdef"))
	s.ReadConsume(2)
	assert.Equal(t, 4, s.GetReadReady())
	p := make([]byte, 4)
	s.ReadBytes(p)
	assert.Equal(t, "cdef", string(p))
}

func TestReadConsumeBeyondBufferClampsToLength(t *testing.T) {
	s := newTestSerialPort([]byte("abc"))
	s.ReadConsume(100)
	assert.Equal(t, 0, s.GetReadReady())
}

func TestWriteFinalizeAlwaysSucceedsWithoutAPort(t *testing.T) {
	s := newTestSerialPort(nil)
	assert.True(t, s.WriteFinalize())
	assert.Greater(t, s.GetWriteSpace(), 0)
}
