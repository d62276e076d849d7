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

package udp

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

// DhcpClientState is one of the RFC 2131 client states this
// implementation models.
type DhcpClientState int

const (
	DhcpInit DhcpClientState = iota
	DhcpSelecting
	DhcpTesting
	DhcpRequesting
	DhcpBound
	DhcpRenewing
	DhcpRebinding
	DhcpInforming
)

const (
	dhcpRetryMsec     = 4000
	dhcpGratArpWait   = 1000
	dhcpMinLeaseSec   = 30
	dhcpRenewFraction = 2 // T1 = lease/2
	dhcpRebindNumer   = 7
	dhcpRebindDenom   = 8 // T2 = lease*7/8
)

// DhcpClient implements the RFC 2131 client state machine on top of a
// udp.Dispatch, using eth.ProtoArp for the gratuitous-ARP conflict
// check performed before an offered lease is claimed.
type DhcpClient struct {
	disp   *Dispatch
	arp    *eth.ProtoArp
	selfIP *ipv4.Address // points at the caller's address cell; DhcpClient owns writes to it
	clk    polling.TimeRef
	xid    uint32

	state       DhcpClientState
	informOnly  bool
	offeredIP   ipv4.Address
	serverID    ipv4.Address
	leaseSec    uint32
	deadline    polling.TimeVal
	boundAt     polling.TimeVal
	retries     int
	conflictFor ipv4.Address
}

// NewDhcpClient constructs a client bound to disp (already registered
// for DhcpClientPort by the caller via disp.Register or NewDhcpClient's
// own registration below), using arp for the gratuitous-ARP probe and
// selfIP as the storage cell this client writes the leased address into.
func NewDhcpClient(disp *Dispatch, arp *eth.ProtoArp, selfIP *ipv4.Address, clk polling.TimeRef) *DhcpClient {
	c := &DhcpClient{disp: disp, arp: arp, selfIP: selfIP, clk: clk, state: DhcpInit}
	disp.Register(DhcpClientPort, ProtocolFunc(c.FrameRcvd))
	arp.AddListener(eth.ArpListenerFunc(c.arpReceived))
	return c
}

// State returns the client's current RFC 2131 state.
func (c *DhcpClient) State() DhcpClientState { return c.state }

// Status returns the remaining lease time in seconds, or 0 if unbound.
func (c *DhcpClient) Status() uint32 {
	if c.state != DhcpBound && c.state != DhcpRenewing && c.state != DhcpRebinding {
		return 0
	}
	elapsed := uint32(c.boundAt.ElapsedMsec() / 1000)
	if elapsed >= c.leaseSec {
		return 0
	}
	return c.leaseSec - elapsed
}

// Discover starts (or restarts) the lease-acquisition process.
func (c *DhcpClient) Discover() {
	c.xid = c.newXid()
	c.state = DhcpSelecting
	c.retries = 0
	c.deadline = polling.NewTimeVal(c.clk)
	c.sendDiscover()
}

// Inform requests configuration parameters without claiming a lease.
func (c *DhcpClient) Inform(addr ipv4.Address) {
	c.xid = c.newXid()
	c.informOnly = true
	c.state = DhcpInforming
	*c.selfIP = addr
	c.deadline = polling.NewTimeVal(c.clk)
	c.sendInform()
}

func (c *DhcpClient) newXid() uint32 {
	c.xid++
	return c.xid ^ uint32(c.clk.Now())
}

// PollAlways drives timer-based retransmit and renew/rebind transitions.
func (c *DhcpClient) PollAlways() {
	switch c.state {
	case DhcpSelecting, DhcpRequesting, DhcpInforming:
		if c.deadline.CheckpointMsec(dhcpRetryMsec) {
			c.retries++
			switch c.state {
			case DhcpSelecting:
				c.sendDiscover()
			case DhcpRequesting:
				c.sendRequest(c.offeredIP, c.serverID)
			case DhcpInforming:
				c.sendInform()
			}
		}
	case DhcpTesting:
		if c.deadline.CheckpointMsec(dhcpGratArpWait) {
			c.claim()
		}
	case DhcpBound, DhcpRenewing, DhcpRebinding:
		c.pollLeaseTimers()
	}
}

func (c *DhcpClient) pollLeaseTimers() {
	elapsedSec := uint32(c.boundAt.ElapsedMsec() / 1000)
	t1 := c.leaseSec / dhcpRenewFraction
	t2 := c.leaseSec * dhcpRebindNumer / dhcpRebindDenom
	switch {
	case elapsedSec >= c.leaseSec:
		log.Warn("dhcp: lease expired, restarting discovery")
		*c.selfIP = ipv4.AddrNone
		c.Discover()
	case elapsedSec >= t2 && c.state != DhcpRebinding:
		c.state = DhcpRebinding
		c.sendRequest(c.offeredIP, ipv4.AddrNone)
	case elapsedSec >= t1 && c.state == DhcpBound:
		c.state = DhcpRenewing
		c.sendRequest(c.offeredIP, c.serverID)
	}
}

func (c *DhcpClient) sendDiscover() {
	m := dhcpMessage{op: bootpRequest, xid: c.xid, chaddr: c.disp.ip.Eth().Self()}
	opts := [][]byte{optByte(optMsgType, dhcpDiscover)}
	c.transmit(m, opts)
}

func (c *DhcpClient) sendRequest(reqIP, serverID ipv4.Address) {
	m := dhcpMessage{op: bootpRequest, xid: c.xid, chaddr: c.disp.ip.Eth().Self()}
	opts := [][]byte{optByte(optMsgType, dhcpRequest), optAddr(optReqIP, reqIP)}
	if !serverID.IsNone() {
		opts = append(opts, optAddr(optServerID, serverID))
	}
	c.transmit(m, opts)
}

func (c *DhcpClient) sendInform() {
	m := dhcpMessage{op: bootpRequest, xid: c.xid, ciaddr: *c.selfIP, chaddr: c.disp.ip.Eth().Self()}
	opts := [][]byte{optByte(optMsgType, dhcpInform)}
	c.transmit(m, opts)
}

func (c *DhcpClient) transmit(m dhcpMessage, opts [][]byte) {
	optLen := 0
	for _, o := range opts {
		optLen += len(o)
	}
	w := c.disp.OpenWrite(ipv4.Address(0xFFFFFFFF), DhcpClientPort, DhcpServerPort, dhcpMsgLen+optLen+1)
	if w == nil {
		return
	}
	emitDhcpMessage(w, m, opts)
	w.WriteFinalize()
}

// FrameRcvd implements Protocol (registered on DhcpClientPort).
func (c *DhcpClient) FrameRcvd(src stream.Readable) {
	m, ok := parseDhcpMessage(src)
	if !ok || m.xid != c.xid {
		return
	}
	switch m.opts.msgType {
	case dhcpOffer:
		if c.state != DhcpSelecting {
			return
		}
		c.offeredIP = m.yiaddr
		c.serverID = m.opts.serverID
		c.leaseSec = m.opts.leaseSec
		if c.leaseSec < dhcpMinLeaseSec {
			log.WithField("lease", c.leaseSec).Warn("dhcp: rejecting absurdly short lease")
			return
		}
		c.state = DhcpRequesting
		c.retries = 0
		c.deadline = polling.NewTimeVal(c.clk)
		c.sendRequest(c.offeredIP, c.serverID)
	case dhcpAck:
		if c.state != DhcpRequesting && c.state != DhcpRenewing && c.state != DhcpRebinding {
			return
		}
		if m.opts.leaseSec > 0 {
			c.leaseSec = m.opts.leaseSec
		}
		if c.state == DhcpRequesting {
			c.offeredIP = m.yiaddr
			c.state = DhcpTesting
			c.deadline = polling.NewTimeVal(c.clk)
			c.arp.SendRequest(uint32(c.offeredIP))
			return
		}
		c.boundAt = polling.NewTimeVal(c.clk)
		c.state = DhcpBound
	case dhcpNak:
		log.Warn("dhcp: server NAK, restarting")
		*c.selfIP = ipv4.AddrNone
		c.Discover()
	}
}

func (c *DhcpClient) arpReceived(ip uint32, mac eth.MACAddr) {
	if c.state != DhcpTesting || ipv4.Address(ip) != c.offeredIP {
		return
	}
	// Another host answered for the address we were about to claim:
	// decline it and restart with a fresh DISCOVER.
	log.WithField("ip", c.offeredIP).Warn("dhcp: address conflict detected, restarting")
	c.Discover()
}

func (c *DhcpClient) claim() {
	*c.selfIP = c.offeredIP
	c.boundAt = polling.NewTimeVal(c.clk)
	c.state = DhcpBound
}
