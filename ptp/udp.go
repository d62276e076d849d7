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

import (
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
	"github.com/satcat5/satnet/udp"
)

// PortEvent and PortGeneral are the well-known UDP ports IEEE 1588
// Annex D assigns to event messages (Sync/Delay_Req/Pdelay_*, which need
// a receive timestamp) and general messages (Announce/Follow_Up/
// Delay_Resp/Pdelay_Resp_Follow_Up), respectively.
const (
	PortEvent   uint16 = 319
	PortGeneral uint16 = 320
)

// MulticastPTP4 is the PTP primary IPv4 multicast group (224.0.1.129).
var MulticastPTP4 = ipv4.Address(0xE0000181)

// isEventType reports whether t is carried on PortEvent rather than
// PortGeneral.
func isEventType(t MessageType) bool {
	switch t {
	case TypeSync, TypeDelayReq, TypePDelayReq, TypePDelayResp:
		return true
	default:
		return false
	}
}

// udpTransport is the UDP binding for Port: it listens on both the event
// and general ports and picks the outgoing port per message type, the
// same split NewEthPort avoids needing since Ethernet carries both
// classes on one EtherType.
type udpTransport struct {
	disp       *udp.Dispatch
	storedAddr ipv4.Address
	storedPort uint16
	haveRpl    bool
}

// NewUdpPort builds a Port bound to both UDP event and general ports on
// disp. recv is invoked with the parsed header and remaining payload for
// every received datagram, across both ports.
func NewUdpPort(disp *udp.Dispatch, recv func(Header, []byte)) *Port {
	t := &udpTransport{disp: disp}
	p := &Port{t: t}
	handler := udp.ProtocolFunc(func(src stream.Readable) {
		t.storedAddr = disp.IP().Reply().Src
		t.storedPort = disp.Reply().SrcPort
		t.haveRpl = true
		parseDatagram(src, recv)
	})
	disp.Register(PortEvent, handler)
	disp.Register(PortGeneral, handler)
	return p
}

func (t *udpTransport) OpenWrite(to DispatchTo, msgType MessageType, length int) stream.Writeable {
	dst, dstPort := MulticastPTP4, PortGeneral
	srcPort := PortGeneral
	if isEventType(msgType) {
		dstPort, srcPort = PortEvent, PortEvent
	}
	switch to {
	case Reply, Stored:
		if !t.haveRpl {
			return nil
		}
		dst, dstPort = t.storedAddr, t.storedPort
	}
	return t.disp.OpenWrite(dst, srcPort, dstPort, length)
}

func parseDatagram(src stream.Readable, recv func(Header, []byte)) {
	raw := stream.ReadBytesExact(src, src.GetReadReady())
	if raw == nil || len(raw) < HeaderLen {
		return
	}
	hdr, ok := ParseHeader(raw)
	if !ok {
		return
	}
	recv(hdr, raw[HeaderLen:])
}
