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

package stream

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// Readable is the capability-struct equivalent of the original's virtual
// base class for byte/packet sources.
type Readable interface {
	// GetReadReady returns the number of bytes available to read from the
	// current frame (in packet mode) or the whole buffer (in stream mode).
	GetReadReady() int
	// ReadBytes copies up to len(p) bytes into p, consuming them, and
	// returns the number of bytes actually copied.
	ReadBytes(p []byte) int
	// ReadConsume skips up to n bytes without copying them out.
	ReadConsume(n int)
	// ReadFinalize releases the current frame: in packet mode this
	// discards any unread tail of the current packet and advances to the
	// next; in stream mode it is a no-op.
	ReadFinalize()
}

var underflowCount int

// readUnderflow logs and counts an over-read; exported for tests that
// assert on the counter.
func readUnderflow() {
	underflowCount++
	log.Debug("stream: read underflow, returning zero value")
}

// UnderflowCount returns the cumulative number of over-read events across
// the whole process, for diagnostics.
func UnderflowCount() int { return underflowCount }

func readExact(r Readable, n int) []byte {
	if r.GetReadReady() < n {
		readUnderflow()
		return nil
	}
	b := make([]byte, n)
	got := r.ReadBytes(b)
	if got != n {
		readUnderflow()
		return nil
	}
	return b
}

// ReadU8 reads a single byte, or 0 on underflow.
func ReadU8(r Readable) uint8 {
	b := readExact(r, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadU16 reads a big-endian uint16, or 0 on underflow.
func ReadU16(r Readable) uint16 {
	b := readExact(r, 2)
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// ReadU16L reads a little-endian uint16, or 0 on underflow.
func ReadU16L(r Readable) uint16 {
	b := readExact(r, 2)
	if b == nil {
		return 0
	}
	return uint16(b[1])<<8 | uint16(b[0])
}

// ReadU24 reads a big-endian 24-bit value into the low bits of a uint32.
func ReadU24(r Readable) uint32 {
	b := readExact(r, 3)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ReadU32 reads a big-endian uint32, or 0 on underflow.
func ReadU32(r Readable) uint32 {
	b := readExact(r, 4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ReadU32L reads a little-endian uint32, or 0 on underflow.
func ReadU32L(r Readable) uint32 {
	b := readExact(r, 4)
	if b == nil {
		return 0
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

// ReadU48 reads a big-endian 48-bit value into the low bits of a uint64.
func ReadU48(r Readable) uint64 {
	b := readExact(r, 6)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ReadU48L reads a little-endian 48-bit value into the low bits of a uint64.
func ReadU48L(r Readable) uint64 {
	b := readExact(r, 6)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 5; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ReadU64 reads a big-endian uint64, or 0 on underflow.
func ReadU64(r Readable) uint64 {
	b := readExact(r, 8)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ReadU64L reads a little-endian uint64, or 0 on underflow.
func ReadU64L(r Readable) uint64 {
	b := readExact(r, 8)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ReadI8/ReadI16/ReadI32/ReadI64 are signed-integer aliases.
func ReadI8(r Readable) int8   { return int8(ReadU8(r)) }
func ReadI16(r Readable) int16 { return int16(ReadU16(r)) }
func ReadI32(r Readable) int32 { return int32(ReadU32(r)) }
func ReadI64(r Readable) int64 { return int64(ReadU64(r)) }

// ReadF32 reads a big-endian IEEE-754 single.
func ReadF32(r Readable) float32 { return math.Float32frombits(ReadU32(r)) }

// ReadF64 reads a big-endian IEEE-754 double.
func ReadF64(r Readable) float64 { return math.Float64frombits(ReadU64(r)) }

// ReadBytesExact reads exactly n bytes, or nil (with an underflow event)
// if fewer than n are available.
func ReadBytesExact(r Readable, n int) []byte { return readExact(r, n) }

// ReadStr copies up to n bytes, stopping early at a NUL byte if one is
// present, and returns the decoded string.
func ReadStr(r Readable, n int) string {
	avail := r.GetReadReady()
	if avail < n {
		n = avail
	}
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	got := r.ReadBytes(b)
	b = b[:got]
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// CopyTo drains r into w, one GetPeekReady-sized chunk at a time, without
// ever needing a temporary buffer larger than the source's own packet
// framing demands.
func CopyTo(r Readable, w Writeable) {
	buf := make([]byte, 256)
	for r.GetReadReady() > 0 {
		n := r.GetReadReady()
		if n > len(buf) {
			n = len(buf)
		}
		got := r.ReadBytes(buf[:n])
		if got == 0 {
			break
		}
		w.WriteBytes(buf[:got])
	}
}
