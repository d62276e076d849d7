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

package telemetry

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/stream"
)

// PacketLogWriter is a stream.Writeable that records every finalized
// frame as a pcapng packet, for offline inspection of telemetry or
// protocol traffic with any standard capture viewer. One frame is
// buffered between WriteBytes calls and one WritePacket call is made per
// WriteFinalize, the same single-shot-per-frame discipline as
// stream.ArrayWrite.
type PacketLogWriter struct {
	w        *pcapgo.Writer
	buf      []byte
	overflow bool
	snaplen  int
}

// NewPacketLogWriter opens a pcapng capture on dst for Ethernet frames up
// to snaplen bytes and writes its file header.
func NewPacketLogWriter(dst io.Writer, snaplen int) (*PacketLogWriter, error) {
	w := pcapgo.NewWriter(dst)
	if err := w.WriteFileHeader(uint32(snaplen), layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &PacketLogWriter{w: w, snaplen: snaplen}, nil
}

// GetWriteSpace implements stream.Writeable.
func (p *PacketLogWriter) GetWriteSpace() int { return p.snaplen - len(p.buf) }

// WriteBytes implements stream.Writeable.
func (p *PacketLogWriter) WriteBytes(b []byte) {
	room := p.snaplen - len(p.buf)
	if len(b) > room {
		b = b[:room]
		p.overflow = true
	}
	p.buf = append(p.buf, b...)
}

// WriteFinalize implements stream.Writeable: commits the buffered frame
// as one capture record.
func (p *PacketLogWriter) WriteFinalize() bool {
	ok := !p.overflow
	if ok && len(p.buf) > 0 {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(p.buf),
			Length:        len(p.buf),
		}
		if err := p.w.WritePacket(ci, p.buf); err != nil {
			log.WithError(err).Error("telemetry: packet log write failed")
			ok = false
		}
	}
	p.buf, p.overflow = p.buf[:0], false
	return ok
}

// WriteAbort implements stream.Writeable.
func (p *PacketLogWriter) WriteAbort() {
	p.buf, p.overflow = p.buf[:0], false
}

var _ stream.Writeable = (*PacketLogWriter)(nil)
