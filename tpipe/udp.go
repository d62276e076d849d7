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

package tpipe

import (
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
	"github.com/satcat5/satnet/udp"
)

// udpTransport is the UDP binding for Core: a bound local port plus a
// peer address:port, established by Bind+SavePeer or by Connect.
type udpTransport struct {
	disp     *udp.Dispatch
	port     uint16
	peer     ipv4.Address
	peerPort uint16
	known    bool
	bound    bool
}

func (t *udpTransport) OpenWrite(length int) stream.Writeable {
	if !t.known {
		return nil
	}
	return t.disp.OpenWrite(t.peer, t.port, t.peerPort, length)
}

func (t *udpTransport) SavePeer() {
	t.peer = t.disp.IP().Reply().Src
	t.peerPort = t.disp.Reply().SrcPort
	t.known = true
}

func (t *udpTransport) Close() {
	if t.bound {
		t.disp.Unregister(t.port)
		t.bound = false
	}
}

// UdpTpipe is a Core riding on a UDP port.
type UdpTpipe struct {
	*Core
	t *udpTransport
}

// NewUdpTpipe creates an idle Tpipe endpoint over disp. Call Bind or
// Connect before using it.
func NewUdpTpipe(disp *udp.Dispatch, tk *polling.Timekeeper, seed int64) *UdpTpipe {
	t := &udpTransport{disp: disp}
	tp := &UdpTpipe{Core: NewCore(t, tk, seed), t: t}
	return tp
}

// Bind waits for an incoming connection on the given local port.
func (tp *UdpTpipe) Bind(port uint16) {
	tp.Close()
	tp.t.port = port
	tp.t.known = false
	tp.t.disp.Register(port, udp.ProtocolFunc(tp.FrameRcvd))
	tp.t.bound = true
}

// Connect opens an outgoing connection from localPort to addr:port.
func (tp *UdpTpipe) Connect(localPort uint16, addr ipv4.Address, port uint16) {
	tp.Close()
	tp.t.port, tp.t.peer, tp.t.peerPort, tp.t.known = localPort, addr, port, true
	tp.t.disp.Register(localPort, udp.ProtocolFunc(tp.FrameRcvd))
	tp.t.bound = true
	tp.Core.Connect()
}

// PeerReady reports whether a destination peer is currently known.
func (tp *UdpTpipe) PeerReady() bool { return tp.t.known }
