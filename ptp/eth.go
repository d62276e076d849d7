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
	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/stream"
)

// EtherTypePTP is the EtherType IEEE 1588 Annex F assigns to PTP-over-L2.
const EtherTypePTP = eth.EtherType(0x88F7)

// MulticastPTP is the PTP primary multicast MAC address (Annex F.2),
// used for Announce, Sync, and other messages sent to every port.
var MulticastPTP = eth.MACAddr{0x01, 0x1B, 0x19, 0x00, 0x00, 0x00}

// ethTransport is the Ethernet binding for Port: every message rides
// EtherTypePTP, with BroadcastL2 sending to MulticastPTP and Reply/Stored
// sending to whichever MAC last sent this port a frame.
type ethTransport struct {
	disp    *eth.Dispatch
	stored  eth.MACAddr
	haveRpl bool
}

// NewEthPort builds a Port bound to an Ethernet interface. recv is
// invoked with the parsed header and remaining payload for every frame.
func NewEthPort(disp *eth.Dispatch, vtag eth.VlanTag, recv func(Header, []byte)) *Port {
	t := &ethTransport{disp: disp}
	p := &Port{t: t}
	disp.Register(eth.Type{VID: vtag.VID, Etype: EtherTypePTP}, eth.ProtocolFunc(func(src stream.Readable) {
		t.stored, t.haveRpl = disp.Reply().Src, true
		parseFrame(src, recv)
	}))
	return p
}

func (t *ethTransport) OpenWrite(to DispatchTo, _ MessageType, length int) stream.Writeable {
	dst := MulticastPTP
	switch to {
	case Reply, Stored:
		if !t.haveRpl {
			return nil
		}
		dst = t.stored
	}
	return t.disp.OpenWrite(dst, eth.VlanNone, EtherTypePTP, length)
}

func parseFrame(src stream.Readable, recv func(Header, []byte)) {
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
