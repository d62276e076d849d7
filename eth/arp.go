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

package eth

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

const (
	arpHTypeEthernet uint16 = 1
	arpPTypeIPv4     uint16 = 0x0800

	arpOperRequest uint16 = 1
	arpOperReply   uint16 = 2

	arpRetryBaseMsec = 1000
	arpMaxRetries    = 4
)

// ArpListener is notified when an ARP reply resolves an IPv4 address to
// a MAC address.
type ArpListener interface {
	ArpReceived(ip uint32, mac MACAddr)
}

// ArpListenerFunc adapts a function to ArpListener.
type ArpListenerFunc func(ip uint32, mac MACAddr)

// ArpReceived implements ArpListener.
func (f ArpListenerFunc) ArpReceived(ip uint32, mac MACAddr) { f(ip, mac) }

type pendingQuery struct {
	targetIP uint32
	tries    int
	deadline polling.TimeVal
}

// ProtoArp implements the Protocol interface for EtherType 0x0806,
// resolving IPv4 addresses to MAC addresses with exponential-backoff
// retry and notifying registered listeners on reply. It also answers
// authoritative requests for this host's own IP address.
type ProtoArp struct {
	disp    *Dispatch
	selfIP  uint32
	clk     polling.TimeRef
	pending []pendingQuery

	listeners []ArpListener
}

// NewProtoArp creates an ARP handler that transmits on disp for selfIP,
// and returns it. It does not register itself: the caller must also call
// disp.Register(Type{0, EtherTypeARP}, p).
func NewProtoArp(disp *Dispatch, selfIP uint32, clk polling.TimeRef) *ProtoArp {
	p := &ProtoArp{disp: disp, selfIP: selfIP, clk: clk}
	return p
}

// AddListener registers l to be notified of every resolved address.
func (p *ProtoArp) AddListener(l ArpListener) { p.listeners = append(p.listeners, l) }

// SendRequest broadcasts an ARP request for targetIP and begins tracking
// it for backoff retry via PollAlways.
func (p *ProtoArp) SendRequest(targetIP uint32) {
	p.pending = append(p.pending, pendingQuery{targetIP: targetIP, tries: 0, deadline: polling.NewTimeVal(p.clk)})
	p.transmit(targetIP, BroadcastMAC, NullMAC)
}

// PollAlways implements polling.Always, retrying any unresolved query
// whose backoff deadline has passed and dropping those that have
// exhausted arpMaxRetries.
func (p *ProtoArp) PollAlways() {
	kept := p.pending[:0]
	for _, q := range p.pending {
		backoff := uint32(arpRetryBaseMsec << uint(q.tries))
		if !q.deadline.CheckpointMsec(backoff) {
			kept = append(kept, q)
			continue
		}
		q.tries++
		if q.tries >= arpMaxRetries {
			log.WithField("ip", q.targetIP).Debug("arp: giving up")
			continue
		}
		p.transmit(q.targetIP, BroadcastMAC, NullMAC)
		kept = append(kept, q)
	}
	p.pending = kept
}

func (p *ProtoArp) transmit(targetIP uint32, dstMAC, targetMAC MACAddr) {
	w := p.disp.OpenWrite(dstMAC, VlanNone, EtherTypeARP, 28)
	if w == nil {
		return
	}
	stream.WriteU16(w, arpHTypeEthernet)
	stream.WriteU16(w, arpPTypeIPv4)
	stream.WriteU8(w, 6)
	stream.WriteU8(w, 4)
	op := arpOperRequest
	if !targetMAC.IsNull() {
		op = arpOperReply
	}
	stream.WriteU16(w, op)
	w.WriteBytes(p.disp.Self()[:])
	stream.WriteU32(w, p.selfIP)
	w.WriteBytes(targetMAC[:])
	stream.WriteU32(w, targetIP)
	w.WriteFinalize()
}

// FrameRcvd implements Protocol.
func (p *ProtoArp) FrameRcvd(src stream.Readable) {
	if src.GetReadReady() < 28 {
		return
	}
	htype := stream.ReadU16(src)
	ptype := stream.ReadU16(src)
	hlen := stream.ReadU8(src)
	plen := stream.ReadU8(src)
	if htype != arpHTypeEthernet || ptype != arpPTypeIPv4 || hlen != 6 || plen != 4 {
		return
	}
	oper := stream.ReadU16(src)
	var senderMAC, targetMAC MACAddr
	copy(senderMAC[:], stream.ReadBytesExact(src, 6))
	senderIP := stream.ReadU32(src)
	copy(targetMAC[:], stream.ReadBytesExact(src, 6))
	targetIP := stream.ReadU32(src)

	switch oper {
	case arpOperRequest:
		if targetIP == p.selfIP {
			p.transmit(senderIP, senderMAC, senderMAC)
		}
		p.resolve(senderIP, senderMAC)
	case arpOperReply:
		p.resolve(senderIP, senderMAC)
	}
}

func (p *ProtoArp) resolve(ip uint32, mac MACAddr) {
	kept := p.pending[:0]
	for _, q := range p.pending {
		if q.targetIP != ip {
			kept = append(kept, q)
		}
	}
	p.pending = kept
	for _, l := range p.listeners {
		l.ArpReceived(ip, mac)
	}
}
