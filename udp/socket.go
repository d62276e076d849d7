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
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
)

// Socket is a bound or connected UDP endpoint layered on a Dispatch,
// the Go-native equivalent of the original's udp::Socket helper: a
// single Protocol registration plus remembered peer state so callers
// don't have to reimplement port bookkeeping themselves.
type Socket struct {
	disp     *Dispatch
	port     uint16
	peer     ipv4.Address
	peerPort uint16
	connected bool

	onRecv func(src ipv4.Address, srcPort uint16, data []byte)
}

// Bind opens a Socket listening on localPort. recv is called for every
// datagram addressed to that port with the sender's address and the
// payload (which must not be retained past the callback — it aliases
// the underlying PacketBuffer).
func Bind(disp *Dispatch, localPort uint16, recv func(src ipv4.Address, srcPort uint16, data []byte)) *Socket {
	s := &Socket{disp: disp, port: localPort, onRecv: recv}
	disp.Register(localPort, ProtocolFunc(s.frameRcvd))
	return s
}

// Connect opens a Socket bound to localPort and restricted to datagrams
// from peer:peerPort; SendConnected can then omit the destination.
func Connect(disp *Dispatch, localPort uint16, peer ipv4.Address, peerPort uint16, recv func(data []byte)) *Socket {
	s := &Socket{disp: disp, port: localPort, peer: peer, peerPort: peerPort, connected: true}
	s.onRecv = func(src ipv4.Address, srcPort uint16, data []byte) {
		if src != peer || srcPort != peerPort {
			return
		}
		if recv != nil {
			recv(data)
		}
	}
	disp.Register(localPort, ProtocolFunc(s.frameRcvd))
	return s
}

// Close unregisters the socket's port.
func (s *Socket) Close() { s.disp.Unregister(s.port) }

// Port returns the locally bound port.
func (s *Socket) Port() uint16 { return s.port }

func (s *Socket) frameRcvd(src stream.Readable) {
	if s.onRecv == nil {
		return
	}
	ip := s.disp.ip.Reply()
	udpHdr := s.disp.Reply()
	data := make([]byte, src.GetReadReady())
	src.ReadBytes(data)
	s.onRecv(ip.Src, udpHdr.SrcPort, data)
}

// SendTo transmits payload to dst:dstPort from this socket's bound port.
func (s *Socket) SendTo(dst ipv4.Address, dstPort uint16, payload []byte) bool {
	w := s.disp.OpenWrite(dst, s.port, dstPort, len(payload))
	if w == nil {
		return false
	}
	w.WriteBytes(payload)
	return w.WriteFinalize()
}

// Send transmits payload to a Connect'd socket's peer. It is a no-op
// returning false on an unconnected Socket.
func (s *Socket) Send(payload []byte) bool {
	if !s.connected {
		return false
	}
	return s.SendTo(s.peer, s.peerPort, payload)
}
