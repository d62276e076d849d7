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
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/udp"
)

// defaultProxyTimeoutMsec is how long a forwarded request waits for a
// downstream response before the proxy gives up and replies
// CodeGatewayTimeout to the original requestor.
const defaultProxyTimeoutMsec uint32 = 30000

// proxyEphemeralBase is the first local port assigned to a ProxyServer's
// pooled outbound connections (RFC 6335's dynamic/private range starts
// at 49152; this just needs to stay clear of PortCoap and other
// well-known ports).
const proxyEphemeralBase uint16 = 49152

// tokenMask clears the bit that distinguishes a proxy transaction token's
// client-facing and server-facing halves.
const tokenMask uint32 = 0xFFFFFFFE

func tokenClient(x uint32) uint32 { return x & tokenMask }
func tokenServer(x uint32) uint32 { return x&tokenMask | 1 }

func tokenBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func tokenFromBytes(b []byte) uint32 {
	v := uint32(0)
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}

// proxiedOptions lists the options a proxy copies verbatim between a
// forwarded request/response pair and the original exchange, matching
// request_any/proxy_response's documented option-copy list. Uri-Path is
// included because the original copies it onto the relayed response too,
// not just the forwarded request.
var proxiedOptions = []uint16{OptionUriPath, OptionContentFormat, OptionBlock2, OptionBlock1, OptionSize1}

// clientTarget snapshots everything needed to relay a downstream response
// back to its originator. A ResourceServer's single shared listening
// socket overwrites its peer/port on every new inbound datagram, so this
// snapshot — not the listener's live Connection — is what a delayed
// response gets relayed through.
type clientTarget struct {
	addr    ipv4.Address
	port    uint16
	msgid   uint16
	token   []byte
	reqType Type
	since   polling.TimeVal
}

// ProxyServer forwards requests received on its ResourceServer to a pool
// of next-hop ConnectionUdp sessions, rewriting each exchange's token to a
// fresh proxy-internal transaction id, and relays the matching downstream
// response back to the original requestor.
type ProxyServer struct {
	*ResourceServer
	clk       polling.TimeRef
	pool      []*ConnectionUdp
	nextMsgid uint16
	nextToken uint32
	pending   map[uint32]clientTarget
	timeoutMs uint32

	// LocalResponse, if set, receives any response arriving on a pool
	// connection that does not match a pending proxied exchange —
	// the hook the original calls local_response for.
	LocalResponse func(msg Message)
}

// NewProxyServer creates a ProxyServer listening on port (PortCoap if
// zero) backed by poolSize pooled outbound connections, stamping pending
// exchanges from clk. If tk is non-nil, a periodic sweep for timed-out
// exchanges is armed on it, the same retransmit/timeout scheduling
// convention tpipe.Core uses for its own retry timers.
func NewProxyServer(disp *udp.Dispatch, port uint16, poolSize int, clk polling.TimeRef, tk *polling.Timekeeper) *ProxyServer {
	p := &ProxyServer{
		ResourceServer: NewResourceServer(disp, port),
		clk:            clk,
		pending:        make(map[uint32]clientTarget),
		timeoutMs:      defaultProxyTimeoutMsec,
	}
	for i := 0; i < poolSize; i++ {
		// Each pooled connection needs its own ephemeral local port:
		// udp.Dispatch.Register has bind semantics (one Protocol per
		// port, a later Register for the same port replaces the
		// earlier one), so binding every connection to the same port
		// would silently orphan all but the last.
		p.pool = append(p.pool, NewConnectionUdp(disp, proxyEphemeralBase+uint16(i), p.onServerMessage))
	}
	if tk != nil {
		tk.Every(1000, p.sweepTimeouts)
	}
	return p
}

// SetTimeout overrides the default 30-second proxy timeout.
func (p *ProxyServer) SetTimeout(msec uint32) { p.timeoutMs = msec }

// getConnection claims an idle pool connection and points it at
// peer:port, or returns nil if every connection is already in use.
func (p *ProxyServer) getConnection(peer ipv4.Address, port uint16) *ConnectionUdp {
	for _, c := range p.pool {
		if c.IsIdle() {
			c.Connect(peer, port)
			return c
		}
	}
	return nil
}

func (p *ProxyServer) freeConnection(serverToken uint32) {
	for _, c := range p.pool {
		if c.ProxyToken() == serverToken {
			c.Close()
			return
		}
	}
}

func (p *ProxyServer) nextTransaction() (msgid uint16, token uint32) {
	p.nextMsgid++
	p.nextToken += 2
	return p.nextMsgid, p.nextToken
}

// onServerMessage is the onMessage callback shared by every pooled
// outbound connection: relay a matched response to its originator, or
// hand it to LocalResponse if no pending exchange claims it.
func (p *ProxyServer) onServerMessage(conn *ConnectionUdp, msg Message) {
	want := conn.ProxyToken()
	if want == 0 || tokenFromBytes(msg.Token) != want {
		if p.LocalResponse != nil {
			p.LocalResponse(msg)
		}
		return
	}
	target, ok := p.pending[want]
	if !ok {
		return
	}
	delete(p.pending, want)
	conn.Close()
	p.proxyResponse(target, msg)
}

// proxyResponse relays a downstream response to the snapshotted client,
// sent directly through the listening socket since the client has no
// live Connection object in this single-shared-listener design.
func (p *ProxyServer) proxyResponse(target clientTarget, msg Message) {
	resp := Message{
		Type:      ackType(target.reqType),
		Code:      msg.Code,
		MessageID: target.msgid,
		Token:     target.token,
		Payload:   msg.Payload,
	}
	for _, n := range proxiedOptions {
		if o, ok := msg.Option(n); ok {
			resp.Options = append(resp.Options, o)
		}
	}
	p.conn.sock.SendTo(target.addr, target.port, Encode(resp))
}

// sweepTimeouts is armed on the Timekeeper passed to NewProxyServer; it
// replies CodeGatewayTimeout to any client whose forwarded request has
// been pending longer than timeoutMs, then frees the connection it held.
func (p *ProxyServer) sweepTimeouts() {
	for key, target := range p.pending {
		if target.since.ElapsedMsec() < uint64(p.timeoutMs) {
			continue
		}
		delete(p.pending, key)
		p.freeConnection(key)
		resp := Message{
			Type:      ackType(target.reqType),
			Code:      CodeGatewayTimeout,
			MessageID: target.msgid,
			Token:     target.token,
			Payload:   []byte("Proxy timeout"),
		}
		p.conn.sock.SendTo(target.addr, target.port, Encode(resp))
	}
}

// ProxyResource forwards every request at localUri to (ip, port) +
// remoteUri through its ProxyServer's connection pool.
type ProxyResource struct {
	BaseResource
	pool    *ProxyServer
	fwdAddr ipv4.Address
	fwdPort uint16
	fwdUri  string
}

// NewProxyResource creates and registers a ProxyResource mapping
// localUri to (ip, port, remoteUri).
func NewProxyResource(server *ProxyServer, localUri string, ip ipv4.Address, port uint16, remoteUri string) *ProxyResource {
	r := &ProxyResource{BaseResource: BaseResource{Path: localUri}, pool: server, fwdAddr: ip, fwdPort: port, fwdUri: remoteUri}
	server.AddResource(r)
	return r
}

// RequestGet implements Resource.
func (r *ProxyResource) RequestGet(conn Connection, msg Message) bool { return r.requestAny(conn, msg) }

// RequestPost implements Resource.
func (r *ProxyResource) RequestPost(conn Connection, msg Message) bool { return r.requestAny(conn, msg) }

// RequestPut implements Resource.
func (r *ProxyResource) RequestPut(conn Connection, msg Message) bool { return r.requestAny(conn, msg) }

// RequestDelete implements Resource.
func (r *ProxyResource) RequestDelete(conn Connection, msg Message) bool { return r.requestAny(conn, msg) }

// requestAny forwards msg verbatim — method, a rewritten token, and the
// copied option subset — to this resource's next hop, matching the
// original's uniform handling of GET/POST/PUT/DELETE in request_any.
func (r *ProxyResource) requestAny(conn Connection, msg Message) bool {
	out := r.pool.getConnection(r.fwdAddr, r.fwdPort)
	if out == nil {
		return errorResponse(conn, msg, CodeServerError, "Proxy busy")
	}

	addr, port := conn.Peer()
	msgid, ident := r.pool.nextTransaction()
	out.SetProxyToken(tokenServer(ident))
	r.pool.pending[tokenServer(ident)] = clientTarget{
		addr:    addr,
		port:    port,
		msgid:   msg.MessageID,
		token:   append([]byte{}, msg.Token...),
		reqType: msg.Type,
		since:   polling.NewTimeVal(r.pool.clk),
	}

	fwd := Message{
		Type:      msg.Type,
		Code:      msg.Code,
		MessageID: msgid,
		Token:     tokenBytes(tokenServer(ident)),
		Payload:   msg.Payload,
	}
	fwd.Options = AddUriPath(fwd.Options, r.fwdUri)
	for _, n := range proxiedOptions {
		if n == OptionUriPath {
			continue
		}
		if o, ok := msg.Option(n); ok {
			fwd.Options = append(fwd.Options, o)
		}
	}
	return out.Send(fwd)
}
