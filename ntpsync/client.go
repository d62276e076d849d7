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

package ntpsync

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/ptp"
	"github.com/satcat5/satnet/stream"
	"github.com/satcat5/satnet/udp"
)

// PortNTP is the well-known UDP port for NTP, used for both client
// queries and server replies (RFC 5905 Section 7.1).
const PortNTP uint16 = 123

// Client is a combined SNTPv4 client and server bound to one UDP
// endpoint. In client mode it associates with a single upstream
// server, polling at 2**pollRate seconds and reporting each completed
// exchange as a ptp.Measurement. In server mode it answers mode-3
// queries from any peer with a mode-4 reply sourced from refclk.
type Client struct {
	refclk ptp.TrackingClock
	disp   *udp.Dispatch
	tk     *polling.Timekeeper

	utcOffset uint8
	onMeas    func(ptp.Measurement)

	// Client-association state.
	serverAddr ipv4.Address
	connected  bool
	rate       int8
	leap       uint8
	stratum    uint8
	refTime    uint64

	// Server state: zero stratum means the server role is inactive.
	serverStratum uint8
}

// NewClient builds a Client reading time from refclk and bound to
// disp's well-known NTP port. onMeas, if non-nil, is invoked with each
// completed client-mode measurement.
func NewClient(refclk ptp.TrackingClock, disp *udp.Dispatch, tk *polling.Timekeeper, onMeas func(ptp.Measurement)) *Client {
	c := &Client{
		refclk:    refclk,
		disp:      disp,
		tk:        tk,
		utcOffset: DefaultUTCOffset,
		onMeas:    onMeas,
	}
	disp.Register(PortNTP, udp.ProtocolFunc(c.FrameRcvd))
	return c
}

// ClientOk reports whether the client association is active.
func (c *Client) ClientOk() bool { return c.connected }

// ClientConnect associates with server, polling at 2**pollRate seconds.
func (c *Client) ClientConnect(server ipv4.Address, pollRate int8) {
	c.serverAddr = server
	c.connected = true
	c.clientSetRate(pollRate)
}

// ClientClose tears down the client association; server mode, if
// active, is unaffected.
func (c *Client) ClientClose() {
	c.connected = false
}

func (c *Client) clientSetRate(pollRate int8) {
	c.rate = pollRate
	c.tk.Once(scalePow2(1000, pollRate), c.timerEvent)
}

// scalePow2 multiplies base by 2**pow, supporting negative pow (used
// for the sub-second poll intervals this implementation's tests rely
// on to exercise the association logic in simulated time).
func scalePow2(base uint32, pow int8) uint32 {
	if pow >= 0 {
		return base << uint(pow)
	}
	return base >> uint(-pow)
}

// RefreshUTCOffset re-reads the TAI-UTC leap-second count from the
// system time zone database and applies it to all subsequent
// timestamp conversions. Safe to call periodically (e.g. once a day)
// since the database only ever changes at a leap-second announcement.
func (c *Client) RefreshUTCOffset() {
	c.utcOffset = CurrentUTCOffset(time.Now())
}

// ServerStart activates the server role, answering mode-3 queries at
// the given stratum (1 = primary reference, directly synced).
func (c *Client) ServerStart(stratum uint8) {
	c.serverStratum = stratum
}

// ServerStop deactivates the server role.
func (c *Client) ServerStop() {
	c.serverStratum = 0
}

func (c *Client) timerEvent() {
	c.sendQuery()
	if c.connected {
		c.clientSetRate(c.rate)
	}
}

// FrameRcvd implements udp.Protocol.
func (c *Client) FrameRcvd(src stream.Readable) {
	rxtime := c.ntpNow()
	raw := stream.ReadBytesExact(src, src.GetReadReady())
	if raw == nil {
		return
	}
	msg, ok := ParseHeader(raw)
	if !ok {
		return
	}
	if msg.Version < Version3 || msg.Version > Version4 {
		return
	}

	switch msg.Mode {
	case ModeServer:
		// Ignore replies from anyone but the associated server (RFC
		// 5905 Section 9.2); broadcast mode auto-association isn't
		// supported.
		if !c.connected || c.disp.IP().Reply().Src != c.serverAddr {
			return
		}
		c.rcvdReply(msg, rxtime)
	case ModeClient:
		if c.serverStratum != 0 {
			c.sendReply(msg, rxtime)
		}
	}
}

func (c *Client) rcvdReply(msg Header, rxtime uint64) {
	if msg.Stratum == 0 {
		switch msg.RefID {
		case KissDeny, KissRstr:
			log.Debug("ntpsync: kiss-of-death, closing association")
			c.ClientClose()
		case KissRate:
			log.Debug("ntpsync: kiss-of-death RATE, backing off poll interval")
			c.clientSetRate(c.rate + 1)
		}
		return
	}

	c.leap = msg.Leap
	c.refTime = msg.XmtTime
	c.stratum = msg.Stratum + 1

	if c.onMeas != nil {
		ref := c.refclk.ClockNow()
		m := ptp.Measurement{
			T1: ToPTP(msg.OrgTime, c.utcOffset, ref),
			T2: ToPTP(msg.RecTime, c.utcOffset, ref),
			T3: ToPTP(msg.XmtTime, c.utcOffset, ref),
			T4: ToPTP(rxtime, c.utcOffset, ref),
		}
		c.onMeas(m)
	}
}

func (c *Client) sendQuery() bool {
	if !c.connected {
		return false
	}
	w := c.disp.OpenWrite(c.serverAddr, PortNTP, PortNTP, HeaderLen)
	if w == nil {
		return false
	}
	msg := Header{
		Leap:      c.leap,
		Version:   Version4,
		Mode:      ModeClient,
		Stratum:   c.stratum,
		Poll:      c.rate,
		Precision: Precision1Msec,
		RefTime:   c.refTime,
		XmtTime:   c.ntpNow(),
	}
	buf := make([]byte, HeaderLen)
	Emit(buf, msg)
	w.WriteBytes(buf)
	return w.WriteFinalize()
}

func (c *Client) sendReply(query Header, rxtime uint64) bool {
	w := c.disp.OpenReply(HeaderLen)
	if w == nil {
		return false
	}
	msg := Header{
		Leap:      c.leap,
		Version:   query.Version,
		Mode:      ModeServer,
		Stratum:   c.serverStratum,
		Poll:      query.Poll,
		Precision: Precision1Usec,
		RefTime:   c.refTime,
		OrgTime:   query.XmtTime,
		RecTime:   rxtime,
		XmtTime:   c.ntpNow(),
	}
	buf := make([]byte, HeaderLen)
	Emit(buf, msg)
	w.WriteBytes(buf)
	return w.WriteFinalize()
}

func (c *Client) ntpNow() uint64 {
	return ToNTP(c.refclk.ClockNow(), c.utcOffset)
}
