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
	"github.com/satcat5/satnet/telemetry"
	"github.com/satcat5/satnet/udp"
)

// Resource handles GET/POST/PUT/DELETE requests for one URI path,
// registered to a ResourceServer. The default implementation of every
// method responds with CodeBadMethod, matching the teacher behavior of
// only overriding the verbs a given resource actually supports.
type Resource interface {
	UriPath() string
	RequestGet(conn Connection, msg Message) bool
	RequestPost(conn Connection, msg Message) bool
	RequestPut(conn Connection, msg Message) bool
	RequestDelete(conn Connection, msg Message) bool
}

// BaseResource implements Resource with CodeBadMethod for every verb;
// embed it and override only the methods a concrete resource supports.
type BaseResource struct {
	Path string
}

// UriPath implements Resource.
func (r *BaseResource) UriPath() string { return r.Path }

// RequestGet implements Resource.
func (r *BaseResource) RequestGet(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, CodeBadMethod, "")
}

// RequestPost implements Resource.
func (r *BaseResource) RequestPost(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, CodeBadMethod, "")
}

// RequestPut implements Resource.
func (r *BaseResource) RequestPut(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, CodeBadMethod, "")
}

// RequestDelete implements Resource.
func (r *BaseResource) RequestDelete(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, CodeBadMethod, "")
}

func errorResponse(conn Connection, req Message, code Code, detail string) bool {
	resp := Message{Type: ackType(req.Type), Code: code, MessageID: req.MessageID, Token: req.Token}
	if detail != "" {
		resp.Payload = []byte(detail)
	}
	return conn.Send(resp)
}

func contentResponse(conn Connection, req Message, payload []byte) bool {
	resp := Message{Type: ackType(req.Type), Code: CodeContent, MessageID: req.MessageID, Token: req.Token, Payload: payload}
	return conn.Send(resp)
}

func ackType(reqType Type) Type {
	if reqType == TypeCon {
		return TypeAck
	}
	return TypeNon
}

// ResourceEcho responds to GET with a copy of the request payload.
type ResourceEcho struct{ BaseResource }

// NewResourceEcho creates and registers an echo resource.
func NewResourceEcho(server *ResourceServer, path string) *ResourceEcho {
	r := &ResourceEcho{BaseResource{Path: path}}
	server.AddResource(r)
	return r
}

// RequestGet implements Resource.
func (r *ResourceEcho) RequestGet(conn Connection, msg Message) bool {
	return contentResponse(conn, msg, msg.Payload)
}

// ResourceError always responds with a fixed error code, for all verbs.
type ResourceError struct {
	BaseResource
	Code Code
}

// NewResourceError creates and registers a fixed-error resource.
func NewResourceError(server *ResourceServer, path string, code Code) *ResourceError {
	r := &ResourceError{BaseResource{Path: path}, code}
	server.AddResource(r)
	return r
}

// RequestGet implements Resource.
func (r *ResourceError) RequestGet(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, r.Code, "")
}

// RequestPost implements Resource.
func (r *ResourceError) RequestPost(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, r.Code, "")
}

// RequestPut implements Resource.
func (r *ResourceError) RequestPut(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, r.Code, "")
}

// RequestDelete implements Resource.
func (r *ResourceError) RequestDelete(conn Connection, msg Message) bool {
	return errorResponse(conn, msg, r.Code, "")
}

// ResourceLog writes the payload of every POST as one telemetry log
// entry at a fixed priority.
type ResourceLog struct {
	BaseResource
	Priority telemetry.Priority
}

// NewResourceLog creates and registers a logging resource.
func NewResourceLog(server *ResourceServer, path string, priority telemetry.Priority) *ResourceLog {
	r := &ResourceLog{BaseResource{Path: path}, priority}
	server.AddResource(r)
	return r
}

// RequestPost implements Resource.
func (r *ResourceLog) RequestPost(conn Connection, msg Message) bool {
	telemetry.New(r.Priority, "coap").WriteStr(string(msg.Payload)).Emit()
	return contentResponse(conn, msg, nil)
}

// ResourceServer routes incoming CoAP requests to the Resource whose
// UriPath matches the request's Uri-Path option, replying with
// CodeBadMethod for any unmatched URI.
type ResourceServer struct {
	conn      *ConnectionUdp
	resources []Resource
}

// NewResourceServer binds a ResourceServer to disp on port, defaulting
// to PortCoap.
func NewResourceServer(disp *udp.Dispatch, port uint16) *ResourceServer {
	if port == 0 {
		port = PortCoap
	}
	s := &ResourceServer{}
	s.conn = NewListener(disp, port, s.onRequest)
	return s
}

// AddResource registers r, replacing any existing resource at the same
// UriPath.
func (s *ResourceServer) AddResource(r Resource) {
	for i, existing := range s.resources {
		if existing.UriPath() == r.UriPath() {
			s.resources[i] = r
			return
		}
	}
	s.resources = append(s.resources, r)
}

// RemoveResource unregisters the resource bound to path.
func (s *ResourceServer) RemoveResource(path string) {
	for i, r := range s.resources {
		if r.UriPath() == path {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			return
		}
	}
}

func (s *ResourceServer) find(path string) Resource {
	for _, r := range s.resources {
		if r.UriPath() == path {
			return r
		}
	}
	return nil
}

// onRequest is the ConnectionUdp callback for every datagram received on
// the server's shared socket; only requests (class 0 codes) are routed.
func (s *ResourceServer) onRequest(conn *ConnectionUdp, msg Message) {
	if msg.Code.Class() != 0 {
		return
	}
	s.coapRequest(conn, msg)
}

// coapRequest dispatches one decoded request by URI-Path. onRequest calls
// it for every request-class message; it takes any Connection, not only
// a ConnectionUdp.
func (s *ResourceServer) coapRequest(conn Connection, msg Message) {
	r := s.find(msg.UriPath())
	if r == nil {
		errorResponse(conn, msg, CodeBadMethod, "")
		return
	}
	switch msg.Code {
	case CodeGet:
		r.RequestGet(conn, msg)
	case CodePost:
		r.RequestPost(conn, msg)
	case CodePut:
		r.RequestPut(conn, msg)
	case CodeDelete:
		r.RequestDelete(conn, msg)
	default:
		errorResponse(conn, msg, CodeBadMethod, "")
	}
}
