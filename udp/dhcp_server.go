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
	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

// dhcpSlot is one entry in a DhcpPool: a client identity hash and the
// stamp+duration its lease expires at (stamped fresh on every Allocate).
type dhcpSlot struct {
	clientHash uint64
	addr       ipv4.Address
	expiry     polling.TimeVal
	leaseMsec  uint32
	leased     bool
	fixed      bool // reserved via Request(), never auto-recycled
}

// DhcpPool is a fixed-size array of {client_hash, expiry} lease slots
// indexed by offset from a base address, allocated round-robin across
// free slots.
type DhcpPool struct {
	base Address
	slots []dhcpSlot
	next  int
	clk   polling.TimeRef
}

// Address is a local alias kept distinct from ipv4.Address only for
// readability in pool arithmetic; both are uint32 IPv4 addresses.
type Address = ipv4.Address

// NewDhcpPool creates a pool of size addresses starting at base.
func NewDhcpPool(base Address, size int, clk polling.TimeRef) *DhcpPool {
	p := &DhcpPool{base: base, slots: make([]dhcpSlot, size), clk: clk}
	for i := range p.slots {
		p.slots[i].addr = Address(uint32(base) + uint32(i))
	}
	return p
}

func clientHash(chaddr eth.MACAddr, xid uint32) uint64 {
	var buf [10]byte
	copy(buf[:6], chaddr[:])
	buf[6], buf[7], buf[8], buf[9] = byte(xid>>24), byte(xid>>16), byte(xid>>8), byte(xid)
	return xxhash.Sum64(buf[:])
}

// Allocate returns a lease for hash, reusing an existing one if hash
// already holds a slot, else assigning the next free slot round-robin.
// Returns (addr, ok); ok is false if the pool is full.
func (p *DhcpPool) Allocate(hash uint64, leaseSec uint32) (Address, bool) {
	for i := range p.slots {
		if p.slots[i].leased && p.slots[i].clientHash == hash {
			p.renewExpiry(&p.slots[i], leaseSec)
			return p.slots[i].addr, true
		}
	}
	p.expireStale()
	for n := 0; n < len(p.slots); n++ {
		idx := (p.next + n) % len(p.slots)
		if !p.slots[idx].leased {
			p.slots[idx].leased = true
			p.slots[idx].clientHash = hash
			p.renewExpiry(&p.slots[idx], leaseSec)
			p.next = (idx + 1) % len(p.slots)
			return p.slots[idx].addr, true
		}
	}
	return 0, false
}

func (p *DhcpPool) renewExpiry(s *dhcpSlot, leaseSec uint32) {
	s.expiry = polling.NewTimeVal(p.clk)
	s.leaseMsec = leaseSec * 1000
}

func (p *DhcpPool) expireStale() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.leased && !s.fixed && s.expiry.ElapsedMsec() >= uint64(s.leaseMsec) {
			s.leased = false
		}
	}
}

// Request reserves a specific address permanently (manual assignment);
// returns false if addr is out of range or already leased to a
// different client.
func (p *DhcpPool) Request(addr Address, hash uint64) bool {
	for i := range p.slots {
		if p.slots[i].addr != addr {
			continue
		}
		if p.slots[i].leased && p.slots[i].clientHash != hash {
			return false
		}
		p.slots[i].leased = true
		p.slots[i].fixed = true
		p.slots[i].clientHash = hash
		return true
	}
	return false
}

// LeasedCount returns the number of slots currently leased.
func (p *DhcpPool) LeasedCount() int {
	n := 0
	for _, s := range p.slots {
		if s.leased {
			n++
		}
	}
	return n
}

// DhcpServerConfig carries the optional fields the server offers
// alongside an allocated address.
type DhcpServerConfig struct {
	SelfIP     ipv4.Address
	SubnetMask ipv4.Address
	Router     ipv4.Address
	DNS        ipv4.Address
	DomainName string
	LeaseSec   uint32
}

// DhcpServer answers DISCOVER/REQUEST/INFORM from a Pool, registered on
// DhcpServerPort.
type DhcpServer struct {
	disp *Dispatch
	pool *DhcpPool
	cfg  DhcpServerConfig
}

// NewDhcpServer constructs and registers a server on disp.
func NewDhcpServer(disp *Dispatch, pool *DhcpPool, cfg DhcpServerConfig) *DhcpServer {
	s := &DhcpServer{disp: disp, pool: pool, cfg: cfg}
	disp.Register(DhcpServerPort, ProtocolFunc(s.FrameRcvd))
	return s
}

// FrameRcvd implements Protocol.
func (s *DhcpServer) FrameRcvd(src stream.Readable) {
	m, ok := parseDhcpMessage(src)
	if !ok {
		return
	}
	hash := clientHash(m.chaddr, m.xid)

	switch m.opts.msgType {
	case dhcpDiscover:
		addr, ok := s.pool.Allocate(hash, s.cfg.LeaseSec)
		if !ok {
			log.Warn("dhcp: pool exhausted, ignoring DISCOVER")
			return
		}
		s.reply(m, dhcpOffer, addr)
	case dhcpRequest:
		reqIP := m.opts.reqIP
		if reqIP.IsNone() {
			reqIP = m.ciaddr
		}
		if !s.validateRequest(hash, reqIP) {
			s.replyNak(m)
			return
		}
		addr, ok := s.pool.Allocate(hash, s.cfg.LeaseSec)
		if !ok || addr != reqIP {
			s.replyNak(m)
			return
		}
		s.reply(m, dhcpAck, addr)
	case dhcpInform:
		s.reply(m, dhcpAck, m.ciaddr)
	case dhcpRelease, dhcpDecline:
		// Best-effort only: the pool slot expires naturally; explicit
		// release before then is not modeled.
	}
}

func (s *DhcpServer) validateRequest(hash uint64, reqIP ipv4.Address) bool {
	for _, slot := range s.pool.slots {
		if slot.addr == reqIP {
			return !slot.leased || slot.clientHash == hash
		}
	}
	return false
}

func (s *DhcpServer) reply(req dhcpMessage, msgType uint8, addr ipv4.Address) {
	resp := dhcpMessage{op: bootpReply, xid: req.xid, yiaddr: addr, siaddr: s.cfg.SelfIP, chaddr: req.chaddr}
	opts := [][]byte{
		optByte(optMsgType, msgType),
		optAddr(optServerID, s.cfg.SelfIP),
		optU32(optLeaseTime, s.cfg.LeaseSec),
	}
	if !s.cfg.SubnetMask.IsNone() {
		opts = append(opts, optAddr(optSubnetMask, s.cfg.SubnetMask))
	}
	if !s.cfg.Router.IsNone() {
		opts = append(opts, optAddr(optRouter, s.cfg.Router))
	}
	if !s.cfg.DNS.IsNone() {
		opts = append(opts, optAddr(optDNS, s.cfg.DNS))
	}
	if s.cfg.DomainName != "" {
		opts = append(opts, append([]byte{optDomainName, byte(len(s.cfg.DomainName))}, []byte(s.cfg.DomainName)...))
	}
	optLen := 0
	for _, o := range opts {
		optLen += len(o)
	}
	w := s.disp.OpenWrite(ipv4.Address(0xFFFFFFFF), DhcpServerPort, DhcpClientPort, dhcpMsgLen+optLen+1)
	if w == nil {
		return
	}
	emitDhcpMessage(w, resp, opts)
	w.WriteFinalize()
}

func (s *DhcpServer) replyNak(req dhcpMessage) {
	resp := dhcpMessage{op: bootpReply, xid: req.xid, chaddr: req.chaddr}
	opts := [][]byte{optByte(optMsgType, dhcpNak)}
	w := s.disp.OpenWrite(ipv4.Address(0xFFFFFFFF), DhcpServerPort, DhcpClientPort, dhcpMsgLen+len(opts[0])+1)
	if w == nil {
		return
	}
	emitDhcpMessage(w, resp, opts)
	w.WriteFinalize()
}
