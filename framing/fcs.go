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
	"github.com/satcat5/satnet/stream"
)

// crc32Table is the standard CRC-32 table for polynomial 0xEDB88320
// (reflected 0x04C11DB7), the Ethernet FCS polynomial.
var crc32Table = func() [256]uint32 {
	var t [256]uint32
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC32 computes the Ethernet FCS over data: init 0xFFFFFFFF, polynomial
// 0xEDB88320, output inverted, transmitted little-endian on the wire.
func CRC32(data []byte) uint32 {
	return CRC32Update(0xFFFFFFFF, data) ^ 0xFFFFFFFF
}

// CRC32Update folds data into a running CRC accumulator seeded by a
// previous call's return value (or 0xFFFFFFFF for the first call),
// without the final output-inversion — used internally by ChecksumTx/Rx
// so they can be fed data incrementally.
func CRC32Update(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = crc32Table[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// ChecksumTx wraps a Writeable, running a live CRC-32 over every byte
// passed through and appending the 4-byte little-endian trailer at
// WriteFinalize.
type ChecksumTx struct {
	dst      stream.Writeable
	crc      uint32
	overflow bool
}

// NewChecksumTx wraps dst.
func NewChecksumTx(dst stream.Writeable) *ChecksumTx {
	return &ChecksumTx{dst: dst, crc: 0xFFFFFFFF}
}

// GetWriteSpace implements stream.Writeable, reserving room for the
// trailer that WriteFinalize will append.
func (c *ChecksumTx) GetWriteSpace() int {
	room := c.dst.GetWriteSpace() - 4
	if room < 0 {
		return 0
	}
	return room
}

// WriteBytes implements stream.Writeable.
func (c *ChecksumTx) WriteBytes(p []byte) {
	if len(p) > c.GetWriteSpace() {
		c.overflow = true
	}
	c.crc = CRC32Update(c.crc, p)
	c.dst.WriteBytes(p)
}

// WriteFinalize implements stream.Writeable: appends the 4-byte,
// little-endian, output-inverted CRC trailer and commits the frame.
func (c *ChecksumTx) WriteFinalize() bool {
	final := c.crc ^ 0xFFFFFFFF
	trailer := []byte{byte(final), byte(final >> 8), byte(final >> 16), byte(final >> 24)}
	c.dst.WriteBytes(trailer)
	ok := c.dst.WriteFinalize() && !c.overflow
	c.crc = 0xFFFFFFFF
	c.overflow = false
	return ok
}

// WriteAbort implements stream.Writeable.
func (c *ChecksumTx) WriteAbort() {
	c.dst.WriteAbort()
	c.crc = 0xFFFFFFFF
	c.overflow = false
}

// ChecksumRx wraps a Writeable sink, buffering the trailing 4 bytes of
// each incoming frame in a shift register and verifying them against the
// running CRC at WriteFinalize; only validated frames are forwarded.
type ChecksumRx struct {
	dst    stream.Writeable
	crc    uint32
	shift  [4]byte
	filled int
	body   []byte // bytes confirmed to be frame payload (i.e. pushed out of the shift register)

	errCount   uint32
	frameCount uint32
}

// NewChecksumRx wraps dst.
func NewChecksumRx(dst stream.Writeable) *ChecksumRx {
	return &ChecksumRx{dst: dst, crc: 0xFFFFFFFF}
}

// GetWriteSpace implements stream.Writeable.
func (c *ChecksumRx) GetWriteSpace() int { return c.dst.GetWriteSpace() }

// WriteBytes implements stream.Writeable. Bytes are pushed through a
// 4-byte shift register; anything evicted from the register is known not
// to be the trailer and is folded into the CRC and forwarded downstream.
func (c *ChecksumRx) WriteBytes(p []byte) {
	for _, b := range p {
		if c.filled == 4 {
			evicted := c.shift[0]
			copy(c.shift[:], c.shift[1:])
			c.shift[3] = b
			c.crc = CRC32Update(c.crc, []byte{evicted})
			c.body = append(c.body, evicted)
		} else {
			c.shift[c.filled] = b
			c.filled++
		}
	}
}

// WriteFinalize implements stream.Writeable: verifies the shift register
// against the running CRC. On success, forwards the accumulated body to
// dst and commits; on failure (or underflow, fewer than 4 bytes ever
// seen), increments the error counter, drops the frame, and returns false.
func (c *ChecksumRx) WriteFinalize() bool {
	defer c.reset()
	if c.filled < 4 {
		c.errCount++
		return false
	}
	want := uint32(c.shift[0]) | uint32(c.shift[1])<<8 | uint32(c.shift[2])<<16 | uint32(c.shift[3])<<24
	got := c.crc ^ 0xFFFFFFFF
	if want != got {
		c.errCount++
		return false
	}
	c.dst.WriteBytes(c.body)
	ok := c.dst.WriteFinalize()
	c.frameCount++
	return ok
}

// WriteAbort implements stream.Writeable.
func (c *ChecksumRx) WriteAbort() {
	c.dst.WriteAbort()
	c.reset()
}

func (c *ChecksumRx) reset() {
	c.crc = 0xFFFFFFFF
	c.filled = 0
	c.body = c.body[:0]
}

// ErrorCount returns the cumulative number of frames rejected for a bad or
// missing CRC trailer.
func (c *ChecksumRx) ErrorCount() uint32 { return c.errCount }

// FrameCount returns the cumulative number of frames validated and
// forwarded.
func (c *ChecksumRx) FrameCount() uint32 { return c.frameCount }
