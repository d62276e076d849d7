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

import "github.com/satcat5/satnet/stream"

// transport is the seam between Port and a specific link layer: the
// Ethernet binding (eth.go) sends every message to the all-PTP multicast
// MAC or to the last-heard sender, while the UDP binding (udp.go) splits
// event and general messages across ports 319/320 and the PTP multicast
// group. It mirrors the role tpipe.Transport plays for that protocol.
type transport interface {
	// OpenWrite begins an outgoing message of the given type, addressed
	// per to, sized for a common header plus length additional body
	// bytes. Returns nil if no destination is currently known (e.g.
	// Reply before anything was heard).
	OpenWrite(to DispatchTo, t MessageType, length int) stream.Writeable
}

// Port is one PTP endpoint, bound to either Ethernet or UDP via transport.
// It owns sequence-number bookkeeping for each outgoing message type.
type Port struct {
	t       transport
	seq     map[MessageType]uint16
	Domain  uint8
	Version uint8
	Self    PortId
}

func (p *Port) nextSeq(t MessageType) uint16 {
	if p.seq == nil {
		p.seq = make(map[MessageType]uint16)
	}
	s := p.seq[t]
	p.seq[t]++
	return s
}

func (p *Port) header(t MessageType, bodyLen int) Header {
	if p.Version == 0 {
		p.Version = 2
	}
	return Header{
		Type:        t,
		Version:     p.Version,
		Length:      uint16(HeaderLen + bodyLen),
		Domain:      p.Domain,
		SrcPort:     p.Self,
		SeqId:       p.nextSeq(t),
		LogInterval: 0,
	}
}

func (p *Port) send(to DispatchTo, t MessageType, bodyLen int, emit func([]byte)) bool {
	w := p.t.OpenWrite(to, t, HeaderLen+bodyLen)
	if w == nil {
		return false
	}
	buf := make([]byte, HeaderLen+bodyLen)
	Emit(buf, p.header(t, bodyLen))
	emit(buf[HeaderLen:])
	w.WriteBytes(buf)
	return true
}

// SendAnnounce broadcasts this port's clock quality to every peer.
func (p *Port) SendAnnounce(a Announce) bool {
	return p.send(BroadcastL2, TypeAnnounce, announceBodyLen, func(b []byte) {
		a.Emit(b)
	})
}

// SendSync broadcasts a Sync carrying origin as the (possibly
// approximate, in two-step mode) transmit timestamp.
func (p *Port) SendSync(origin Time) bool {
	return p.send(BroadcastL2, TypeSync, syncBodyLen, func(b []byte) {
		Sync{OriginTimestamp: origin}.Emit(b)
	})
}

// SendFollowUp broadcasts the precise transmit time of a prior two-step Sync.
func (p *Port) SendFollowUp(precise Time) bool {
	return p.send(BroadcastL2, TypeFollowUp, followUpBodyLen, func(b []byte) {
		FollowUp{PreciseOriginTimestamp: precise}.Emit(b)
	})
}

// SendDelayReq addresses a Delay_Req to the current master (BroadcastL2
// for multicast masters, or Stored once a unicast master is known).
func (p *Port) SendDelayReq(to DispatchTo, origin Time) bool {
	return p.send(to, TypeDelayReq, delayReqBodyLen, func(b []byte) {
		Sync{OriginTimestamp: origin}.Emit(b)
	})
}

// SendDelayResp replies to the requester that last sent this port a
// Delay_Req, with the master's receive timestamp for that request.
func (p *Port) SendDelayResp(requester PortId, receive Time) bool {
	return p.send(Reply, TypeDelayResp, delayRespBodyLen, func(b []byte) {
		DelayResp{ReceiveTimestamp: receive, RequestingPortIdentity: requester}.Emit(b)
	})
}
