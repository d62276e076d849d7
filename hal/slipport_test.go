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
	"github.com/stretchr/testify/require"
)

// loopbackLink is a rawLink where writes to one side appear as reads on
// the other, standing in for a serial cable between two SlipPorts.
type loopbackLink struct {
	peer *loopbackLink
	buf  []byte
}

func newLoopbackPair() (*loopbackLink, *loopbackLink) {
	a := &loopbackLink{}
	b := &loopbackLink{}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *loopbackLink) GetReadReady() int { return len(l.buf) }
func (l *loopbackLink) ReadBytes(p []byte) int {
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n
}
func (l *loopbackLink) ReadConsume(n int) {
	if n > len(l.buf) {
		n = len(l.buf)
	}
	l.buf = l.buf[n:]
}
func (l *loopbackLink) ReadFinalize()     {}
func (l *loopbackLink) GetWriteSpace() int { return 1 << 20 }
func (l *loopbackLink) WriteBytes(p []byte) {
	l.peer.buf = append(l.peer.buf, p...)
}
func (l *loopbackLink) WriteFinalize() bool { return true }
func (l *loopbackLink) WriteAbort()         {}

func TestSlipPortRoundTripsAFrameOverTheRawLink(t *testing.T) {
	aRaw, bRaw := newLoopbackPair()
	aPort := NewSlipPort(aRaw, 4096, 1500)
	bPort := NewSlipPort(bRaw, 4096, 1500)

	frame := []byte{0xDE, 0xAD, 0xC0, 0xBE, 0xEF} // includes a SLIP END byte
	aPort.WriteBytes(frame)
	require.True(t, aPort.WriteFinalize())

	bPort.PollAlways()

	require.Greater(t, bPort.Rx().GetReadReady(), 0)
	got := make([]byte, bPort.Rx().GetReadReady())
	n := bPort.Rx().ReadBytes(got)
	bPort.Rx().ReadFinalize()
	assert.Equal(t, frame, got[:n])
}

func TestSlipPortWriteAbortDropsBufferedBytes(t *testing.T) {
	aRaw, _ := newLoopbackPair()
	aPort := NewSlipPort(aRaw, 4096, 1500)
	aPort.WriteBytes([]byte{1, 2, 3})
	aPort.WriteAbort()
	assert.Equal(t, 0, len(aPort.txBuf))
}
