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
	"testing"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/polling"
	"github.com/satcat5/satnet/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// endpoint bundles one host's full stack (eth/ipv4/udp) plus the raw
// PacketBuffers used to shuttle frames to/from its simulated wire.
type endpoint struct {
	eth *eth.Dispatch
	ip  *ipv4.Dispatch
	udp *Dispatch
	rx  *stream.PacketBuffer
	tx  *stream.PacketBuffer
}

func newEndpoint(mac eth.MACAddr, selfIP ipv4.Address) *endpoint {
	rx := stream.NewPacketBuffer(make([]byte, 2048), 8)
	tx := stream.NewPacketBuffer(make([]byte, 2048), 8)
	ed := eth.NewDispatch(mac, rx, tx)
	tbl := ipv4.NewTable(8)
	id := ipv4.NewDispatch(ed, selfIP, tbl)
	ud := NewDispatch(id)
	return &endpoint{eth: ed, ip: id, udp: ud, rx: rx, tx: tx}
}

// pumpOnce moves every pending frame in a's tx into b's rx and runs b's
// DataRcvd once per frame, simulating one direction of wire delivery.
func pumpOnce(a, b *endpoint) {
	for a.tx.GetReadReady() > 0 {
		raw := make([]byte, a.tx.GetReadReady())
		a.tx.ReadBytes(raw)
		a.tx.ReadFinalize()
		b.rx.WriteBytes(raw)
		b.rx.WriteFinalize()
		b.eth.DataRcvd()
	}
}

func TestDhcpHandshakeAssignsLeaseAndTracksPool(t *testing.T) {
	clk, err := polling.NewSoftwareClock(1000) // 1 tick == 1ms
	require.NoError(t, err)

	clientMAC := eth.MACAddr{0xDE, 0xAD, 0xBE, 0xEF, 0x22, 0x22}
	serverMAC := eth.MACAddr{0xDE, 0xAD, 0xBE, 0xEF, 0x11, 0x11}

	clientEp := newEndpoint(clientMAC, ipv4.AddrNone)
	serverEp := newEndpoint(serverMAC, 0xC0A80101) // 192.168.1.1

	clientArp := eth.NewProtoArp(clientEp.eth, 0, clk)
	clientEp.eth.Register(eth.Type{Etype: eth.EtherTypeARP}, clientArp)

	var clientIP ipv4.Address
	client := NewDhcpClient(clientEp.udp, clientArp, &clientIP, clk)

	pool := NewDhcpPool(0xC0A80110, 16, clk) // 192.168.1.16/16 slots
	server := NewDhcpServer(serverEp.udp, pool, DhcpServerConfig{
		SelfIP:     0xC0A80101,
		SubnetMask: 0xFFFFFF00,
		LeaseSec:   3600,
	})
	_ = server

	client.Discover()

	// Simulate: client broadcasts DISCOVER, server answers OFFER, client
	// requests, server ACKs, client gratuitous-ARPs, no one answers, and
	// the client claims the address.
	for i := 0; i < 20 && client.State() != DhcpBound; i++ {
		pumpOnce(clientEp, serverEp)
		pumpOnce(serverEp, clientEp)
		clk.AdvanceMsec(1100)
		client.PollAlways()
		clientArp.PollAlways()
	}

	require.Equal(t, DhcpBound, client.State())
	assert.Equal(t, ipv4.Address(0xC0A80110), clientIP)
	assert.Equal(t, 1, pool.LeasedCount())
	assert.Greater(t, client.Status(), uint32(0))
}
