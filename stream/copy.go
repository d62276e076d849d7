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

import "github.com/satcat5/satnet/polling"

// CopyMode selects when BufferedCopy calls WriteFinalize on its sink.
type CopyMode uint8

const (
	// CopyPacket finalizes once per source packet boundary.
	CopyPacket CopyMode = iota
	// CopyStream finalizes after every pump, regardless of boundaries.
	CopyStream
	// CopyAlways never finalizes; the caller owns that.
	CopyAlways
)

// BufferedCopy pumps bytes from src to dst whenever notified of new data,
// finalizing the destination frame according to mode.
type BufferedCopy struct {
	src  Readable
	dst  Writeable
	mode CopyMode
	buf  []byte
}

// NewBufferedCopy constructs a pump from src to dst with a scratch buffer
// of chunkSize bytes.
func NewBufferedCopy(src Readable, dst Writeable, mode CopyMode, chunkSize int) *BufferedCopy {
	if chunkSize <= 0 {
		chunkSize = 256
	}
	return &BufferedCopy{src: src, dst: dst, mode: mode, buf: make([]byte, chunkSize)}
}

// DataRcvd is the notification hook: pump everything currently available.
func (b *BufferedCopy) DataRcvd() {
	for b.src.GetReadReady() > 0 {
		n := b.src.GetReadReady()
		if n > len(b.buf) {
			n = len(b.buf)
		}
		got := b.src.ReadBytes(b.buf[:n])
		if got == 0 {
			break
		}
		b.dst.WriteBytes(b.buf[:got])
		if b.mode == CopyStream {
			b.dst.WriteFinalize()
		}
	}
	if b.mode == CopyPacket {
		b.dst.WriteFinalize()
		b.src.ReadFinalize()
	}
}

// Address is a minimal destination descriptor for BufferedStream: anything
// that can open a Writeable for a given payload length (an eth.Dispatch or
// udp.Socket reply context, typically).
type Address interface {
	OpenWrite(length int) Writeable
}

// BufferedStream packetizes an unbounded byte stream into discrete sends
// to a network Address, using three thresholds: always send once MaxChunk
// bytes have accumulated; optionally send as soon as MinTxNow bytes are
// present; otherwise flush whatever is buffered once Timeout has elapsed
// with no further growth.
type BufferedStream struct {
	src       Readable
	addr      Address
	maxChunk  int
	minTxNow  int
	timeoutMs uint32
	deadline  polling.TimeVal
	armed     bool
}

// NewBufferedStream constructs a BufferedStream. clk drives the flush
// timeout.
func NewBufferedStream(src Readable, addr Address, maxChunk, minTxNow int, timeoutMs uint32, clk polling.TimeRef) *BufferedStream {
	return &BufferedStream{
		src: src, addr: addr,
		maxChunk: maxChunk, minTxNow: minTxNow, timeoutMs: timeoutMs,
		deadline: polling.NewTimeVal(clk),
	}
}

// PollAlways implements polling.Always: flush whenever a threshold is hit.
func (b *BufferedStream) PollAlways() {
	ready := b.src.GetReadReady()
	if ready == 0 {
		b.armed = false
		return
	}
	if !b.armed {
		b.deadline = polling.NewTimeVal(b.deadline.Clk)
		b.armed = true
	}
	switch {
	case ready >= b.maxChunk:
		b.flush(b.maxChunk)
	case b.minTxNow > 0 && ready >= b.minTxNow:
		b.flush(ready)
	case b.deadline.CheckpointMsec(b.timeoutMs):
		b.flush(ready)
	}
}

func (b *BufferedStream) flush(n int) {
	w := b.addr.OpenWrite(n)
	if w == nil {
		return
	}
	buf := make([]byte, n)
	got := b.src.ReadBytes(buf)
	w.WriteBytes(buf[:got])
	w.WriteFinalize()
	b.armed = false
}

// BufferedTee broadcasts every write to a list of sinks; sinks that
// overflow do not block delivery to the others, but the tee's own
// WriteFinalize reports false if any sink's did.
type BufferedTee struct {
	sinks []Writeable
}

// NewBufferedTee constructs a BufferedTee fanning out to sinks.
func NewBufferedTee(sinks ...Writeable) *BufferedTee {
	return &BufferedTee{sinks: sinks}
}

// Add appends another sink to the fan-out list.
func (t *BufferedTee) Add(w Writeable) { t.sinks = append(t.sinks, w) }

// GetWriteSpace returns the minimum space across all sinks.
func (t *BufferedTee) GetWriteSpace() int {
	min := -1
	for _, s := range t.sinks {
		sp := s.GetWriteSpace()
		if min == -1 || sp < min {
			min = sp
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// WriteBytes implements Writeable, fanning out to every sink.
func (t *BufferedTee) WriteBytes(p []byte) {
	for _, s := range t.sinks {
		s.WriteBytes(p)
	}
}

// WriteFinalize implements Writeable: finalizes every sink, returning true
// only if all of them committed successfully.
func (t *BufferedTee) WriteFinalize() bool {
	ok := true
	for _, s := range t.sinks {
		if !s.WriteFinalize() {
			ok = false
		}
	}
	return ok
}

// WriteAbort implements Writeable, aborting every sink.
func (t *BufferedTee) WriteAbort() {
	for _, s := range t.sinks {
		s.WriteAbort()
	}
}
