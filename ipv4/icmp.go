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

package ipv4

import (
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/stream"
)

// ICMP message types used by this stack.
const (
	icmpEchoReply     uint8 = 0
	icmpUnreachable   uint8 = 3
	icmpRedirect      uint8 = 5
	icmpEchoRequest   uint8 = 8
	icmpTimeExceeded  uint8 = 11
	icmpParamProblem  uint8 = 12
	icmpTimestampReq  uint8 = 13
	icmpTimestampResp uint8 = 14
)

// ICMP "unreachable" codes (type 3).
const (
	icmpUnreachNet      uint8 = 0
	icmpUnreachHost     uint8 = 1
	icmpUnreachProtocol uint8 = 2
	icmpUnreachPort     uint8 = 3
	icmpUnreachFragNeed uint8 = 4
	icmpUnreachAdmin    uint8 = 13
)

// ICMP "time exceeded" codes (type 11).
const (
	icmpTTLExpired    uint8 = 0
	icmpFragReasmTime uint8 = 1
)

// ICMP "redirect" codes (type 5).
const icmpRedirectHost uint8 = 1

type icmpCode struct {
	typ, code uint8
}

// Named ICMP error codes, passed to ICMPHandler.SendError by callers in
// this package and by router2.Dispatch.
var (
	ICMPErrUnreachNet    = icmpCode{icmpUnreachable, icmpUnreachNet}
	ICMPErrUnreachHost   = icmpCode{icmpUnreachable, icmpUnreachHost}
	icmpErrUnreachProto  = icmpCode{icmpUnreachable, icmpUnreachProtocol}
	ICMPErrUnreachPort   = icmpCode{icmpUnreachable, icmpUnreachPort}
	ICMPErrUnreachAdmin  = icmpCode{icmpUnreachable, icmpUnreachAdmin}
	ICMPErrTTLExpired    = icmpCode{icmpTimeExceeded, icmpTTLExpired}
	ICMPErrFragTimeout   = icmpCode{icmpTimeExceeded, icmpFragReasmTime}
	ICMPErrHeaderProblem = icmpCode{icmpParamProblem, 0}
)

// ICMPHandler implements Protocol for ip protocol 1 and provides the
// error-generation helpers used by ipv4.Dispatch and router2.Dispatch.
type ICMPHandler struct {
	d *Dispatch
}

func NewICMPHandler(d *Dispatch) *ICMPHandler { return &ICMPHandler{d: d} }

// FrameRcvd implements Protocol: handles echo-request and
// timestamp-request locally; silently discards unknown types (RFC 1122);
// calls back into the routing table for redirect notifications.
func (h *ICMPHandler) FrameRcvd(src stream.Readable) {
	ready := src.GetReadReady()
	if ready < 8 {
		return
	}
	body := stream.ReadBytesExact(src, ready)
	if body == nil {
		return
	}
	typ, code := body[0], body[1]

	switch typ {
	case icmpEchoRequest:
		h.reply(icmpEchoReply, 0, body[4:])
	case icmpTimestampReq:
		h.replyTimestamp(body)
	case icmpRedirect:
		h.handleRedirect(body)
	case icmpUnreachable, icmpTimeExceeded, icmpParamProblem:
		log.WithFields(log.Fields{"type": typ, "code": code}).Debug("icmp: received error")
	default:
		// RFC 1122 4.3.3.9: unknown types are silently discarded.
	}
}

func (h *ICMPHandler) reply(typ, code uint8, rest []byte) {
	w := h.d.OpenReply(ProtoICMP, 4+len(rest))
	if w == nil {
		return
	}
	writeICMP(w, typ, code, rest)
}

func (h *ICMPHandler) replyTimestamp(req []byte) {
	if len(req) < 20 {
		return
	}
	rest := make([]byte, 16)
	copy(rest, req[4:8]) // echo the identifier+sequence
	// originate/receive/transmit timestamps are left zero: this stack
	// has no millisecond-since-midnight-UTC wall clock wired in here.
	h.reply(icmpTimestampResp, 0, rest)
}

func (h *ICMPHandler) handleRedirect(body []byte) {
	if len(body) < 8+20 {
		return
	}
	gateway := Address(uint32(body[4])<<24 | uint32(body[5])<<16 | uint32(body[6])<<8 | uint32(body[7]))
	innerHdr, _, ok := ParseHeader(body[8:])
	if !ok {
		return
	}
	h.d.table.SetGateway(innerHdr.Dst, gateway)
}

// SendError emits an ICMP error datagram for code, enclosing the failed
// header (re-emitted from failedHdr) followed by 8 zero bytes; the failed
// datagram's own payload bytes are not copied.
func (h *ICMPHandler) SendError(failedHdr Header, code icmpCode) {
	var failedRaw [20]byte
	Emit(failedRaw[:], failedHdr)
	enclosed := append(failedRaw[:], make([]byte, 8)...)

	w := h.d.OpenReply(ProtoICMP, 8+len(enclosed))
	if w == nil {
		return
	}
	writeICMP(w, code.typ, code.code, enclosed)
}

// SendRedirect emits an ICMP redirect telling the sender of origHdr to
// use newGateway directly for destinations like origHdr.Dst.
func (h *ICMPHandler) SendRedirect(origHdr Header, newGateway Address) {
	var origRaw [20]byte
	Emit(origRaw[:], origHdr)
	body := make([]byte, 4)
	body[0] = byte(newGateway >> 24)
	body[1] = byte(newGateway >> 16)
	body[2] = byte(newGateway >> 8)
	body[3] = byte(newGateway)
	body = append(body, origRaw[:]...)
	body = append(body, make([]byte, 8)...)

	w := h.d.OpenReply(ProtoICMP, len(body)+4)
	if w == nil {
		return
	}
	writeICMP(w, icmpRedirect, icmpRedirectHost, body)
}

func writeICMP(w stream.Writeable, typ, code uint8, rest []byte) {
	header := make([]byte, 4, 4+len(rest))
	header[0], header[1] = typ, code
	full := append(header, rest...)
	csum := framing.IPChecksum(full)
	full[2], full[3] = byte(csum>>8), byte(csum)
	w.WriteBytes(full)
	w.WriteFinalize()
}
