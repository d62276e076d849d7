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
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
)

// ethTransport is the Ethernet binding for Core: a peer MAC/EtherType/
// VLAN triple, established by Bind+SavePeer or by Connect.
type ethTransport struct {
	disp  *eth.Dispatch
	etype eth.EtherType
	vtag  eth.VlanTag
	peer  eth.MACAddr
	known bool

	registered bool
	regType    eth.Type
}

func (t *ethTransport) OpenWrite(length int) stream.Writeable {
	if !t.known {
		return nil
	}
	return t.disp.OpenWrite(t.peer, t.vtag, t.etype, length)
}

func (t *ethTransport) SavePeer() {
	t.peer = t.disp.Reply().Src
	t.known = true
}

func (t *ethTransport) Close() {
	if t.registered {
		t.disp.UnregisterType(t.regType)
		t.registered = false
	}
}

func (t *ethTransport) register(typ eth.Type, handler eth.ProtocolFunc) {
	t.disp.Register(typ, handler)
	t.regType = typ
	t.registered = true
}

// EthTpipe is a Core riding directly on an Ethernet interface, identified
// by EtherType (and optionally VLAN) rather than by port number.
type EthTpipe struct {
	*Core
	t *ethTransport
}

// NewEthTpipe creates an idle Tpipe endpoint over disp. Call Bind or
// Connect before using it.
func NewEthTpipe(disp *eth.Dispatch, tk *polling.Timekeeper, seed int64) *EthTpipe {
	t := &ethTransport{disp: disp}
	tp := &EthTpipe{Core: NewCore(t, tk, seed), t: t}
	return tp
}

// Bind waits for an incoming connection on the given EtherType/VLAN.
func (tp *EthTpipe) Bind(etype eth.EtherType, vtag eth.VlanTag) {
	tp.Close()
	tp.t.etype, tp.t.vtag = etype, vtag
	tp.t.known = false
	tp.t.register(eth.Type{VID: vtag.VID, Etype: etype}, eth.ProtocolFunc(tp.FrameRcvd))
}

// Connect opens an outgoing connection to addr.
func (tp *EthTpipe) Connect(addr eth.MACAddr, etype eth.EtherType, vtag eth.VlanTag) {
	tp.Close()
	tp.t.etype, tp.t.vtag, tp.t.peer, tp.t.known = etype, vtag, addr, true
	tp.t.register(eth.Type{VID: vtag.VID, Etype: etype}, eth.ProtocolFunc(tp.FrameRcvd))
	tp.Core.Connect()
}

// PeerReady reports whether a destination peer is currently known.
func (tp *EthTpipe) PeerReady() bool { return tp.t.known }
