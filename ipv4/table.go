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

import "github.com/satcat5/satnet/eth"

// RouteFlags modifies how a Table row participates in caching.
type RouteFlags uint8

const (
	// FlagMACFixed marks a row whose MAC must never be overwritten by
	// route_cache (a statically configured next-hop).
	FlagMACFixed RouteFlags = 1 << iota
	// FlagEphemeral marks a row created by ARP-cache learning, eligible
	// for eviction under route_flush and oldest-first reclaim.
	FlagEphemeral
)

// Route is one row of the routing table: a destination subnet, the
// gateway to reach it (AddrBroadcast means "directly connected"), and
// the resolved next-hop MAC (eth.NullMAC if not yet resolved).
type Route struct {
	Dst     Subnet
	Gateway Address
	MAC     eth.MACAddr
	Flags   RouteFlags
}

// Table is the longest-prefix-match routing table: static entries grow
// from the head, ephemeral (ARP-cache) entries grow from the tail and
// are evicted oldest-first once maxEphemeral is reached.
type Table struct {
	static    []Route
	ephemeral []Route
	maxEph    int
}

// NewTable constructs a Table whose ephemeral (ARP-cache) region holds at
// most maxEphemeral rows.
func NewTable(maxEphemeral int) *Table {
	return &Table{maxEph: maxEphemeral}
}

// AddStatic appends a permanently configured route.
func (t *Table) AddStatic(r Route) {
	r.Flags &^= FlagEphemeral
	t.static = append(t.static, r)
}

// RouteLookup returns the narrowest (longest-prefix) matching row for
// dst, preferring static rows on a tie in prefix length (static rows are
// scanned first and a strictly-longer ephemeral match is required to
// displace one). Multicast destinations resolve to the broadcast MAC
// directly connected. AddrNone always returns ok=false.
func (t *Table) RouteLookup(dst Address) (Route, bool) {
	if dst.IsNone() {
		return Route{}, false
	}
	if dst.IsMulticast() {
		return Route{Dst: Subnet{Base: dst, Mask: 0xFFFFFFFF}, Gateway: AddrBroadcast, MAC: eth.BroadcastMAC}, true
	}

	var best *Route
	bestLen := -1
	consider := func(rows []Route) {
		for i := range rows {
			r := &rows[i]
			if !r.Dst.Contains(dst) {
				continue
			}
			if l := r.Dst.PrefixLen(); l > bestLen {
				bestLen, best = l, r
			}
		}
	}
	consider(t.static)
	consider(t.ephemeral)
	if best == nil {
		return Route{}, false
	}
	return *best, true
}

// RouteCache updates every eligible row whose gateway equals gateway with
// the resolved MAC (skipping rows flagged FLAG_MAC_FIXED). If no row
// covers the gateway address itself, a new ephemeral /32 entry is
// created for it.
func (t *Table) RouteCache(gateway Address, mac eth.MACAddr) {
	update := func(rows []Route) {
		for i := range rows {
			r := &rows[i]
			if r.Flags&FlagMACFixed != 0 {
				continue
			}
			if r.Gateway == gateway {
				r.MAC = mac
			}
		}
	}
	update(t.static)
	update(t.ephemeral)

	covered := false
	for i := range t.ephemeral {
		if t.ephemeral[i].Dst.Base == gateway && t.ephemeral[i].Dst.PrefixLen() == 32 {
			covered = true
			break
		}
	}
	for i := range t.static {
		if t.static[i].Dst.Base == gateway && t.static[i].Dst.PrefixLen() == 32 {
			covered = true
			break
		}
	}
	if !covered {
		t.pushEphemeral(Route{
			Dst:     Subnet{Base: gateway, Mask: 0xFFFFFFFF},
			Gateway: AddrBroadcast,
			MAC:     mac,
			Flags:   FlagEphemeral,
		})
	}
}

// SetGateway records that dst should now be reached via gateway, as
// directed by an ICMP redirect: it creates or overwrites an ephemeral
// /32 host route whose MAC is left unresolved (the next send triggers a
// fresh ARP lookup for the new gateway).
func (t *Table) SetGateway(dst, gateway Address) {
	for i := range t.ephemeral {
		if t.ephemeral[i].Dst.Base == dst && t.ephemeral[i].Dst.PrefixLen() == 32 {
			t.ephemeral[i].Gateway = gateway
			t.ephemeral[i].MAC = eth.NullMAC
			return
		}
	}
	t.pushEphemeral(Route{
		Dst:     Subnet{Base: dst, Mask: 0xFFFFFFFF},
		Gateway: gateway,
		Flags:   FlagEphemeral,
	})
}

func (t *Table) pushEphemeral(r Route) {
	if t.maxEph > 0 && len(t.ephemeral) >= t.maxEph {
		t.ephemeral = t.ephemeral[1:] // oldest-first eviction
	}
	t.ephemeral = append(t.ephemeral, r)
}

// RouteFlush clears the learned MAC-cache (ephemeral rows and any
// non-fixed MAC on a static row) but keeps static routes and any row
// flagged FlagMACFixed.
func (t *Table) RouteFlush() {
	kept := t.ephemeral[:0]
	for _, r := range t.ephemeral {
		if r.Flags&FlagMACFixed != 0 {
			kept = append(kept, r)
		}
	}
	t.ephemeral = kept
	for i := range t.static {
		if t.static[i].Flags&FlagMACFixed == 0 {
			t.static[i].MAC = eth.NullMAC
		}
	}
}
