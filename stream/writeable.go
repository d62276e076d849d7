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

// Package stream is the layered byte/packet I/O abstraction shared by every
// protocol and device driver in the stack: Writeable/Readable sinks and
// sources, a circular PacketBuffer with optional packet-length metadata,
// and the higher-order helpers (BufferedCopy/Stream/Tee) that compose them.
package stream

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// Writeable is the capability-struct equivalent of the original's virtual
// base class: any sink that accepts a byte-oriented, framed write. The set
// of implementations is open (PacketBuffer, ArrayWrite, redirects, codecs),
// so it is modeled as an interface rather than a closed sum type.
type Writeable interface {
	// GetWriteSpace returns the number of bytes that can be written to the
	// current frame before it overflows.
	GetWriteSpace() int
	// WriteBytes appends p to the in-progress frame. It never returns an
	// error; if p would overflow the available space, as much as fits is
	// written and a sticky overflow flag is set, consumed by the next
	// WriteFinalize call.
	WriteBytes(p []byte)
	// WriteFinalize commits the in-progress frame atomically. Returns
	// false (and discards the frame) if an overflow occurred since the
	// last WriteFinalize/WriteAbort.
	WriteFinalize() bool
	// WriteAbort discards the in-progress frame without committing it.
	WriteAbort()
}

// Marshaler defers its own encoding to a Writeable, the equivalent of
// write_obj<T> calling t.write_to(this) in the original.
type Marshaler interface {
	WriteTo(w Writeable)
}

// WriteObj writes m's encoding to w.
func WriteObj(w Writeable, m Marshaler) { m.WriteTo(w) }

// WriteU8 appends a single byte.
func WriteU8(w Writeable, v uint8) { w.WriteBytes([]byte{v}) }

// WriteU16 appends v big-endian.
func WriteU16(w Writeable, v uint16) {
	var b [2]byte
	b[0] = byte(v >> 8)
	b[1] = byte(v)
	w.WriteBytes(b[:])
}

// WriteU16L appends v little-endian.
func WriteU16L(w Writeable, v uint16) {
	var b [2]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	w.WriteBytes(b[:])
}

// WriteU24 appends the low 24 bits of v, big-endian.
func WriteU24(w Writeable, v uint32) {
	b := []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	w.WriteBytes(b)
}

// WriteU24L appends the low 24 bits of v, little-endian.
func WriteU24L(w Writeable, v uint32) {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16)}
	w.WriteBytes(b)
}

// WriteU32 appends v big-endian.
func WriteU32(w Writeable, v uint32) {
	var b [4]byte
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	w.WriteBytes(b[:])
}

// WriteU32L appends v little-endian.
func WriteU32L(w Writeable, v uint32) {
	var b [4]byte
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	w.WriteBytes(b[:])
}

// WriteU48 appends the low 48 bits of v, big-endian (used by MAC addresses
// and PTP's 48-bit seconds field).
func WriteU48(w Writeable, v uint64) {
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		b[5-i] = byte(v >> (8 * i))
	}
	w.WriteBytes(b)
}

// WriteU48L appends the low 48 bits of v, little-endian.
func WriteU48L(w Writeable, v uint64) {
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> (8 * i))
	}
	w.WriteBytes(b)
}

// WriteU64 appends v big-endian.
func WriteU64(w Writeable, v uint64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	w.WriteBytes(b)
}

// WriteU64L appends v little-endian.
func WriteU64L(w Writeable, v uint64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	w.WriteBytes(b)
}

// WriteI8/WriteI16/WriteI32/WriteI64 are signed-integer aliases of the
// unsigned writers above (two's complement is bit-identical).
func WriteI8(w Writeable, v int8)   { WriteU8(w, uint8(v)) }
func WriteI16(w Writeable, v int16) { WriteU16(w, uint16(v)) }
func WriteI32(w Writeable, v int32) { WriteU32(w, uint32(v)) }
func WriteI64(w Writeable, v int64) { WriteU64(w, uint64(v)) }

// WriteF32 appends v as a big-endian IEEE-754 single.
func WriteF32(w Writeable, v float32) { WriteU32(w, math.Float32bits(v)) }

// WriteF64 appends v as a big-endian IEEE-754 double.
func WriteF64(w Writeable, v float64) { WriteU64(w, math.Float64bits(v)) }

// WriteStr appends s verbatim, with no NUL terminator and no length
// prefix — the caller is responsible for framing.
func WriteStr(w Writeable, s string) { w.WriteBytes([]byte(s)) }

func logOverflow(kind string) {
	log.WithField("kind", kind).Debug("stream: write overflow, sticky flag set")
}
