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

// Package hal adapts real hardware (a UART, a posix adjustable clock) onto
// this stack's stream.Readable/Writeable and ptp.TrackingClock interfaces —
// the edge of the simulation where a real device replaces the in-memory
// PacketBuffer/SimClock every test and the simulated switch core run on.
package hal

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialPort adapts a real UART, opened with go.bug.st/serial, into the
// stream.Readable/stream.Writeable pair framing.SLIP and the rest of this
// stack's protocol layers expect. go.bug.st/serial's Port.Read blocks (up
// to a configured timeout), so a background goroutine continuously drains
// it into an internal buffer, keeping GetReadReady/ReadBytes non-blocking
// for the cooperative-polling model every other component here assumes.
type SerialPort struct {
	port serial.Port

	mu  sync.Mutex
	buf []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSerialPort opens device at baud (8 data bits, no parity, 1 stop bit,
// no flow control — this stack's boards don't use hardware handshaking)
// and starts the background reader goroutine.
func OpenSerialPort(device string, baud int) (*SerialPort, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, err
	}
	s := &SerialPort{port: port, closed: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *SerialPort) readLoop() {
	chunk := make([]byte, 512)
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			log.WithField("err", err.Error()).Debug("hal: serial read loop exiting")
			return
		}
	}
}

// GetReadReady implements stream.Readable.
func (s *SerialPort) GetReadReady() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// ReadBytes implements stream.Readable.
func (s *SerialPort) ReadBytes(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n
}

// ReadConsume implements stream.Readable.
func (s *SerialPort) ReadConsume(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.buf = s.buf[n:]
}

// ReadFinalize implements stream.Readable. A serial link has no packet
// framing of its own (that's framing.SLIP's job, layered on top), so
// there is nothing to finalize.
func (s *SerialPort) ReadFinalize() {}

// GetWriteSpace implements stream.Writeable. A serial port has no fixed
// frame budget the way a PacketBuffer does, so this reports a generous
// ceiling rather than a real constraint.
func (s *SerialPort) GetWriteSpace() int { return 1 << 20 }

// WriteBytes implements stream.Writeable, writing straight through to the
// port; a failed write is logged and dropped rather than surfaced, since
// Writeable.WriteBytes has no error return.
func (s *SerialPort) WriteBytes(p []byte) {
	if _, err := s.port.Write(p); err != nil {
		log.WithField("err", err.Error()).Debug("hal: serial write failed")
	}
}

// WriteFinalize implements stream.Writeable. Writes are sent immediately
// by WriteBytes, so there is nothing buffered left to commit.
func (s *SerialPort) WriteFinalize() bool { return true }

// WriteAbort implements stream.Writeable as a no-op, for the same reason.
func (s *SerialPort) WriteAbort() {}

// Close stops the background reader and closes the underlying port.
func (s *SerialPort) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.port.Close()
}
