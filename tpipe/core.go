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

// Package tpipe implements a reliable lockstep byte-stream transport
// layered over raw Ethernet or UDP: simpler than TCP, trading window
// scaling and multi-segment pipelining for a fixed-size working buffer
// and one packet in flight at a time.
package tpipe

import (
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

// MaxWindow bounds how many bytes of application data one Tpipe packet
// may carry, and sizes the Tx/Rx working buffers.
const MaxWindow = 512

const (
	flagStart uint16 = 0x8000
	flagStop  uint16 = 0x4000
	flagLen   uint16 = 0x03FF
)

type state uint16

const (
	stateOpenReq state = 1 << iota
	stateReady
	stateTxBusy
	stateClosing
	stateTxOnly
)

func (s state) has(bit state) bool { return s&bit != 0 }

// Transport is implemented by the network layer a Core rides on: raw
// Ethernet (EthTpipe) or UDP (UdpTpipe). It tracks the single peer this
// Core is talking to and opens outgoing frames addressed to it.
type Transport interface {
	// OpenWrite begins an outgoing frame of length bytes to the current
	// peer, or returns nil if no peer is known yet or the device isn't
	// ready to send (flow control, unresolved ARP, etc).
	OpenWrite(length int) stream.Writeable
	// SavePeer remembers the sender of the most recently delivered
	// frame as the destination for future OpenWrite calls, for a
	// listening (Bind) endpoint accepting its first connection.
	SavePeer()
	// Close releases any registration held with the underlying dispatch.
	Close()
}

// Core is the transport-agnostic lockstep engine: same state machine and
// wire format regardless of whether Transport rides on Ethernet or UDP.
type Core struct {
	iface Transport
	tk    *polling.Timekeeper
	rng   *rand.Rand

	tx *stream.PacketBuffer // application write side
	rx *stream.PacketBuffer // application read side

	retry      uint16
	st         state
	retransmit uint16
	timeout    uint16
	txpos      uint16
	txref      uint16
	rxpos      uint16
	rxref      uint16
}

// NewCore builds a Core over iface, using tk to schedule retransmits and
// seed to drive retransmit-interval jitter. The caller is responsible for
// wiring iface's inbound frames to Core.FrameRcvd.
func NewCore(iface Transport, tk *polling.Timekeeper, seed int64) *Core {
	return &Core{
		iface:      iface,
		tk:         tk,
		rng:        rand.New(rand.NewSource(seed)),
		tx:         stream.NewPacketBuffer(make([]byte, MaxWindow), 0),
		rx:         stream.NewPacketBuffer(make([]byte, MaxWindow), 0),
		retransmit: 500,
		timeout:    30000,
	}
}

// SetRetransmit adjusts the retransmit interval.
func (c *Core) SetRetransmit(msec uint16) { c.retransmit = msec }

// SetTimeout adjusts the lost-connection timeout.
func (c *Core) SetTimeout(msec uint16) { c.timeout = msec }

// SetTxOnly puts this endpoint into unidirectional streaming mode: data
// is consumed from the Tx buffer as soon as it's sent, without waiting
// for acknowledgement. Not recommended over a lossy or reordering link.
func (c *Core) SetTxOnly() {
	c.timeout = 0
	c.st |= stateReady | stateTxOnly
}

// Ready reports whether the connection has completed its handshake.
func (c *Core) Ready() bool { return c.st.has(stateReady) }

// Completed reports whether every byte written so far has been
// acknowledged by the remote endpoint.
func (c *Core) Completed() bool {
	return c.st.has(stateReady) && c.tx.GetReadReady() == 0
}

// Write queues payload for transmission, sending it immediately if the
// connection is idle (otherwise it is picked up by the next send_block,
// i.e. the next acknowledgement or retransmit timer).
func (c *Core) Write(payload []byte) bool {
	if len(payload) > c.tx.GetWriteSpace() {
		return false
	}
	c.tx.WriteBytes(payload)
	if !c.tx.WriteFinalize() {
		return false
	}
	if !c.st.has(stateTxBusy) {
		c.sendBlock()
	}
	return true
}

// Read copies up to len(p) bytes of received, in-order data into p.
func (c *Core) Read(p []byte) int {
	n := c.rx.ReadBytes(p)
	return n
}

// ReadReady returns the number of received bytes available to Read.
func (c *Core) ReadReady() int { return c.rx.GetReadReady() }

// Connect sends a START request to open a new session. The caller must
// have already pointed iface at the remote peer.
func (c *Core) Connect() {
	c.st = stateOpenReq
	c.txpos = uint16(c.rng.Uint32())
	c.rxpos = uint16(c.rng.Uint32())
	c.sendBlock()
}

// Close tears down the active connection, telling the remote endpoint if
// one is open. It does not wait for acknowledgement — poll Completed
// first if assured delivery matters.
func (c *Core) Close() {
	c.st |= stateClosing
	if c.st.has(stateReady) {
		c.sendBlock()
	}
	c.iface.Close()
	c.st = 0
}

// FrameRcvd processes one inbound Tpipe packet.
func (c *Core) FrameRcvd(src stream.Readable) {
	flags := stream.ReadU16(src)
	txpos := stream.ReadU16(src)
	rxpos := stream.ReadU16(src)

	rxlen := int(flags & flagLen)
	if src.GetReadReady() < rxlen || rxlen > MaxWindow {
		log.Debug("tpipe: malformed packet, declared length out of range")
		return
	}

	sendReply := false
	if flags&flagStart != 0 {
		c.iface.SavePeer()
		dupe := c.st.has(stateReady) && c.txref == rxpos && c.rxref == txpos
		c.st = stateReady
		sendReply = true
		if !dupe {
			c.rx = stream.NewPacketBuffer(make([]byte, MaxWindow), 0)
			c.txpos, c.txref = rxpos, rxpos
			c.rxpos, c.rxref = txpos, txpos
		}
	} else if c.st.has(stateOpenReq) {
		c.rx = stream.NewPacketBuffer(make([]byte, MaxWindow), 0)
		c.st &^= stateOpenReq
		c.st |= stateReady
	} else if !c.st.has(stateReady) {
		return
	}

	// Any packet from the remote host resets the watchdog.
	c.retry = 0

	if rxdiff := int16(rxpos - c.txpos); rxdiff > 0 {
		c.tx.ReadConsume(int(rxdiff))
		c.txpos += uint16(rxdiff)
		c.st &^= stateTxBusy
		sendReply = true
	}

	skip := int(c.rxpos - txpos)
	if rxlen > skip {
		rdlen := rxlen - skip
		if space := c.rx.GetWriteSpace(); rdlen > space {
			rdlen = space
		}
		src.ReadConsume(skip)
		tmp := make([]byte, rdlen)
		src.ReadBytes(tmp)
		c.rx.WriteBytes(tmp)
		if c.rx.WriteFinalize() {
			c.rxpos += uint16(rdlen)
			sendReply = true
		}
	}

	// Stale or duplicate packets must never trigger a reply, or the two
	// endpoints could retransmit at each other indefinitely.
	if flags&flagStop != 0 {
		c.tx = stream.NewPacketBuffer(make([]byte, MaxWindow), 0)
		c.iface.Close()
		c.st = 0
	} else if sendReply {
		c.sendBlock()
	}
}

// timerEvent fires when a scheduled retransmit/keepalive deadline
// passes: retry if still within the connection timeout (or permanently,
// in Tx-only mode), otherwise give up on the connection.
func (c *Core) timerEvent() {
	if c.retry < c.timeout || c.st.has(stateTxOnly) {
		c.sendBlock()
	} else {
		c.Close()
	}
}

// sendBlock transmits the current acknowledgement state plus any
// not-yet-acknowledged Tx data, and arms the next retransmit/keepalive.
func (c *Core) sendBlock() {
	txlen := c.tx.GetPeekReady()
	if txlen > MaxWindow {
		txlen = MaxWindow
	}

	w := c.iface.OpenWrite(txlen + 6)
	if w == nil {
		// Rapid polling until the device is ready to send (flow control
		// or unresolved ARP); this is not a protocol-level retry.
		const pollMsec = 10
		c.retry += pollMsec
		c.tk.Once(pollMsec, c.timerEvent)
		return
	}

	timeout := uint32(c.retransmit)
	if c.retransmit > 0 {
		timeout += uint32(c.rng.Intn(int(c.retransmit)/2 + 1))
	}
	c.st |= stateTxBusy
	c.retry += uint16(timeout)
	c.tk.Once(timeout, c.timerEvent)

	flags := uint16(txlen)
	if c.st.has(stateOpenReq) {
		flags |= flagStart
	}
	if c.st.has(stateClosing) {
		flags |= flagStop
	}

	stream.WriteU16(w, flags)
	stream.WriteU16(w, c.txpos)
	stream.WriteU16(w, c.rxpos)
	if txlen > 0 {
		w.WriteBytes(c.tx.Peek(txlen))
	}
	sent := w.WriteFinalize()

	if sent && c.st.has(stateTxOnly) {
		c.tx.ReadConsume(txlen)
		c.txpos += uint16(txlen)
	}
}
