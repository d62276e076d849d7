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

package ptp

import "github.com/satcat5/satnet/polling"

// Client is a slave-only ordinary clock: it answers no Announce/BMCA
// role of its own, but tracks a single master's Sync/Follow_Up stream
// and runs the end-to-end delay request-response mechanism (Section
// 11.3) to complete each four-timestamp Measurement, feeding the result
// to a TrackingController.
type Client struct {
	port *Port
	clk  TrackingClock
	tc   *TrackingController

	delayTimer    polling.TimeVal
	delayInterval uint32 // milliseconds between Delay_Req transmissions

	t1, t2   Time
	haveSync bool
	t3       Time
	haveT3   bool

	lastMaster PortId
	haveMaster bool
}

// NewClient builds a Client bound to port, disciplining clk via tc.
// delayIntervalMsec is the spacing between Delay_Req transmissions; the
// default PTP profile uses 1000ms (log interval 0).
func NewClient(port *Port, clk TrackingClock, tc *TrackingController, pollClk polling.TimeRef, delayIntervalMsec uint32) *Client {
	return &Client{
		port:          port,
		clk:           clk,
		tc:            tc,
		delayTimer:    polling.NewTimeVal(pollClk),
		delayInterval: delayIntervalMsec,
	}
}

// PollAlways issues a Delay_Req on every delayInterval tick.
func (c *Client) PollAlways() {
	if c.delayTimer.CheckpointMsec(c.delayInterval) {
		c.sendDelayReq()
	}
}

func (c *Client) sendDelayReq() {
	t3 := c.clk.ClockNow()
	if c.port.SendDelayReq(BroadcastL2, t3) {
		c.t3, c.haveT3 = t3, true
	}
}

// HandleFrame is the recv callback to pass to NewEthPort/NewUdpPort.
func (c *Client) HandleFrame(hdr Header, raw []byte) {
	switch hdr.Type {
	case TypeAnnounce:
		c.lastMaster, c.haveMaster = hdr.SrcPort, true

	case TypeSync:
		t2 := c.clk.ClockNow()
		if s, ok := ParseSync(hdr, raw); ok {
			c.t1, c.t2, c.haveSync = s.OriginTimestamp, t2, true
		}

	case TypeFollowUp:
		if f, ok := ParseFollowUp(hdr, raw); ok && c.haveSync {
			c.t1 = f.PreciseOriginTimestamp
		}

	case TypeDelayResp:
		d, ok := ParseDelayResp(hdr, raw)
		if !ok || !c.haveT3 || !c.haveSync {
			return
		}
		if d.RequestingPortIdentity != c.port.Self {
			return
		}
		m := Measurement{T1: c.t1, T2: c.t2, T3: c.t3, T4: d.ReceiveTimestamp}
		c.tc.PtpReady(m)
		c.haveT3, c.haveSync = false, false
	}
}

// HaveMaster reports whether this client has heard an Announce from a
// master; once set, the flag stays set for the life of the Client.
func (c *Client) HaveMaster() (PortId, bool) { return c.lastMaster, c.haveMaster }
