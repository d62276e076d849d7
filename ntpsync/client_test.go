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

package ntpsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/ptp"
	"github.com/satcat5/satnet/stream"
	"github.com/satcat5/satnet/udp"
)

const (
	hostAIP ipv4.Address = 0x0A000001 // 10.0.0.1
	hostBIP ipv4.Address = 0x0A000002 // 10.0.0.2
)

// ntpEndpoint bundles one host's eth/ipv4/udp stack, a simulated
// reference clock, and the raw PacketBuffers used to shuttle frames to
// and from its simulated wire.
type ntpEndpoint struct {
	eth  *eth.Dispatch
	ip   *ipv4.Dispatch
	udp  *udp.Dispatch
	rx   *stream.PacketBuffer
	tx   *stream.PacketBuffer
	tk   *polling.Timekeeper
	loop *polling.Loop
	clk  *ptp.SimClock
}

func newNtpEndpoint(mac eth.MACAddr, self, peer ipv4.Address, peerMAC eth.MACAddr, timeRef polling.TimeRef) *ntpEndpoint {
	rx := stream.NewPacketBuffer(make([]byte, 2048), 8)
	tx := stream.NewPacketBuffer(make([]byte, 2048), 8)
	ed := eth.NewDispatch(mac, rx, tx)
	tbl := ipv4.NewTable(8)
	tbl.AddStatic(ipv4.Route{Dst: ipv4.Subnet{Base: peer, Mask: 0xFFFFFFFF}, Gateway: ipv4.AddrBroadcast, MAC: peerMAC})
	id := ipv4.NewDispatch(ed, self, tbl)
	ud := udp.NewDispatch(id)
	loop := polling.NewLoop()
	clk := ptp.NewSimClock(func() ptp.Time { return ptp.Time{Sec: 1_718_000_000} })
	return &ntpEndpoint{eth: ed, ip: id, udp: ud, rx: rx, tx: tx, loop: loop, tk: polling.NewTimekeeper(timeRef, loop), clk: clk}
}

func pumpOnce(a, b *ntpEndpoint) {
	for a.tx.GetReadReady() > 0 {
		raw := make([]byte, a.tx.GetReadReady())
		a.tx.ReadBytes(raw)
		a.tx.ReadFinalize()
		b.rx.WriteBytes(raw)
		b.rx.WriteFinalize()
		b.eth.DataRcvd()
	}
}

type ntpWire struct {
	a, b *ntpEndpoint
	clk  *polling.SoftwareClock
}

func newNtpWire(t *testing.T) *ntpWire {
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)

	aMAC := eth.MACAddr{0, 0, 0, 0, 0, 0xA0}
	bMAC := eth.MACAddr{0, 0, 0, 0, 0, 0xB0}
	return &ntpWire{
		a:   newNtpEndpoint(aMAC, hostAIP, hostBIP, bMAC, clk),
		b:   newNtpEndpoint(bMAC, hostBIP, hostAIP, aMAC, clk),
		clk: clk,
	}
}

func (w *ntpWire) settle() {
	for i := 0; i < 16; i++ {
		before := w.a.rx.GetReadReady() + w.b.rx.GetReadReady()
		pumpOnce(w.a, w.b)
		pumpOnce(w.b, w.a)
		if before == 0 && w.a.rx.GetReadReady()+w.b.rx.GetReadReady() == 0 {
			return
		}
	}
}

func (w *ntpWire) tick(n uint32) {
	for i := uint32(0); i < n; i++ {
		w.clk.Advance(1)
		w.a.loop.Poll()
		w.b.loop.Poll()
		w.settle()
	}
}

func TestClientCompletesHandshakeAndReportsMeasurement(t *testing.T) {
	w := newNtpWire(t)

	var got []ptp.Measurement
	server := NewClient(w.a.clk, w.a.udp, w.a.tk, nil)
	server.ServerStart(1)

	client := NewClient(w.b.clk, w.b.udp, w.b.tk, func(m ptp.Measurement) { got = append(got, m) })
	client.ClientConnect(hostAIP, -1) // poll every 500ms

	w.tick(1500)

	require.True(t, client.ClientOk())
	require.NotEmpty(t, got)
}

func TestClientRcvdReplySetsStratumFromServer(t *testing.T) {
	w := newNtpWire(t)

	server := NewClient(w.a.clk, w.a.udp, w.a.tk, nil)
	server.ServerStart(2)

	client := NewClient(w.b.clk, w.b.udp, w.b.tk, nil)
	client.ClientConnect(hostAIP, -1)

	w.tick(1500)

	assert.Equal(t, uint8(3), client.stratum) // server's stratum + 1
}

func TestClientKissOfDeathDenyClosesAssociation(t *testing.T) {
	w := newNtpWire(t)

	client := NewClient(w.b.clk, w.b.udp, w.b.tk, nil)
	client.connected = true
	client.serverAddr = hostAIP

	msg := Header{Mode: ModeServer, Version: Version4, Stratum: 0, RefID: KissDeny}
	client.rcvdReply(msg, 0)

	assert.False(t, client.ClientOk())
}

func TestClientKissOfDeathRateBacksOffPollInterval(t *testing.T) {
	w := newNtpWire(t)

	client := NewClient(w.b.clk, w.b.udp, w.b.tk, nil)
	client.connected = true
	client.serverAddr = hostAIP
	client.rate = 0

	msg := Header{Mode: ModeServer, Version: Version4, Stratum: 0, RefID: KissRate}
	client.rcvdReply(msg, 0)

	assert.Equal(t, int8(1), client.rate)
	assert.True(t, client.ClientOk())
}

func TestServerIgnoresQueriesWhenInactive(t *testing.T) {
	w := newNtpWire(t)

	var got []ptp.Measurement
	client := NewClient(w.a.clk, w.a.udp, w.a.tk, func(m ptp.Measurement) { got = append(got, m) })
	client.ClientConnect(hostBIP, -1)

	// b never calls ServerStart: its Client remains registered on the
	// NTP port but must not answer mode-3 queries.
	NewClient(w.b.clk, w.b.udp, w.b.tk, nil)

	w.tick(1500)

	assert.True(t, client.ClientOk()) // association stays open, just unanswered
	assert.Empty(t, got)
}
