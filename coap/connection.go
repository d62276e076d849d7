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

package coap

import (
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/udp"
)

// PortCoap is the well-known CoAP UDP port (RFC 7252 Section 12.8).
const PortCoap uint16 = 5683

// Connection is one CoAP request/response exchange context, bound either
// to an inbound client (reached through the server's shared listening
// socket) or to an outbound next-hop server (its own ConnectionUdp).
// ProxyServer stamps a rewritten transaction token onto whichever
// Connection is relaying a given exchange so a later response can be
// matched back to its originator.
type Connection interface {
	// Send transmits msg to this connection's current peer.
	Send(msg Message) bool
	// ProxyToken returns the token most recently stamped on this
	// connection by a proxy forwarding a request through it.
	ProxyToken() uint32
	// SetProxyToken stamps the token used to match a later response.
	SetProxyToken(token uint32)
	// Peer returns the address/port this connection currently talks to.
	Peer() (ipv4.Address, uint16)
}

// ConnectionUdp is a Connection backed by one bound udp.Socket — the
// same bind/connect shape as udp.Socket itself (component G), reused
// here rather than building a second transport abstraction. A listening
// ConnectionUdp (anyPeer true) serves one request at a time from
// whichever peer last reached it, matching the single-in-flight "last
// Reply()" convention this codebase's eth/ipv4/udp Dispatch types use. A
// pooled outbound ConnectionUdp instead locks onto one next-hop peer
// until Close'd back to the idle pool.
type ConnectionUdp struct {
	sock    *udp.Socket
	peer    ipv4.Address
	pport   uint16
	token   uint32
	anyPeer bool
	idle    bool

	onMessage func(conn *ConnectionUdp, msg Message)
}

// NewConnectionUdp creates a pooled outbound ConnectionUdp, idle until
// Connect is called. onMessage is invoked for every datagram received
// from the connected peer.
func NewConnectionUdp(disp *udp.Dispatch, localPort uint16, onMessage func(conn *ConnectionUdp, msg Message)) *ConnectionUdp {
	c := &ConnectionUdp{idle: true, onMessage: onMessage}
	c.sock = udp.Bind(disp, localPort, c.recv)
	return c
}

// NewListener creates a ConnectionUdp that accepts requests from any
// peer on localPort, remembering the most recent sender as its reply
// target — the shape a ResourceServer's single shared socket needs.
func NewListener(disp *udp.Dispatch, localPort uint16, onMessage func(conn *ConnectionUdp, msg Message)) *ConnectionUdp {
	c := &ConnectionUdp{anyPeer: true, onMessage: onMessage}
	c.sock = udp.Bind(disp, localPort, c.recv)
	return c
}

func (c *ConnectionUdp) recv(src ipv4.Address, srcPort uint16, data []byte) {
	if !c.anyPeer {
		if c.idle || src != c.peer || srcPort != c.pport {
			return
		}
	} else {
		c.peer, c.pport = src, srcPort
	}
	msg, ok := Decode(data)
	if !ok || c.onMessage == nil {
		return
	}
	c.onMessage(c, msg)
}

// Connect (re)directs a pooled connection at a new next-hop peer.
func (c *ConnectionUdp) Connect(peer ipv4.Address, port uint16) {
	c.peer, c.pport, c.idle = peer, port, false
}

// IsMatchAddr reports whether this connection is already directed at
// peer:port, allowing the caller to reuse it instead of reconnecting.
func (c *ConnectionUdp) IsMatchAddr(peer ipv4.Address, port uint16) bool {
	return !c.idle && c.peer == peer && c.pport == port
}

// Close releases a pooled connection back to the idle pool.
func (c *ConnectionUdp) Close() { c.idle = true }

// IsIdle reports whether this connection is available for reuse.
func (c *ConnectionUdp) IsIdle() bool { return !c.anyPeer && c.idle }

// Send implements Connection.
func (c *ConnectionUdp) Send(msg Message) bool {
	if !c.anyPeer && c.idle {
		return false
	}
	return c.sock.SendTo(c.peer, c.pport, Encode(msg))
}

// ProxyToken implements Connection.
func (c *ConnectionUdp) ProxyToken() uint32 { return c.token }

// SetProxyToken implements Connection.
func (c *ConnectionUdp) SetProxyToken(token uint32) { c.token = token }

// Peer implements Connection.
func (c *ConnectionUdp) Peer() (ipv4.Address, uint16) { return c.peer, c.pport }
