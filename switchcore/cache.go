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

package switchcore

import "github.com/satcat5/satnet/eth"

// cacheEntry maps one learned MAC address to the port it was last seen
// arriving on.
type cacheEntry struct {
	mac  eth.MACAddr
	port int
}

// SwitchCache is the MAC-learning PluginCore: it records source-MAC →
// ingress-port on every frame, and narrows DstMask to the learned port
// for unicast destinations with a known entry. Multicast, broadcast, and
// unknown-unicast destinations are left fanning out to every port (VLAN
// filtering, applied afterward by SwitchCore, narrows that further).
type SwitchCache struct {
	entries []cacheEntry
	maxSize int
}

// NewSwitchCache builds a cache holding up to maxSize learned addresses,
// evicting the oldest entry (simple FIFO, matching a small embedded CAM)
// once full.
func NewSwitchCache(maxSize int) *SwitchCache {
	return &SwitchCache{maxSize: maxSize}
}

// Ingress implements PluginCore.
func (c *SwitchCache) Ingress(ctx *FrameContext, payload []byte) {
	c.learn(ctx.Header.Src, ctx.SrcPort)

	dst := ctx.Header.Dst
	if dst.IsMulticast() {
		return // broadcast/multicast: leave fanned out to all ports
	}
	if port, ok := c.lookup(dst); ok {
		ctx.DstMask = Bit(port)
	}
	// Unknown unicast: leave DstMask fanned out (flood), same as an
	// unmanaged bridge would.
}

func (c *SwitchCache) learn(mac eth.MACAddr, port int) {
	if mac.IsNull() || mac.IsMulticast() {
		return
	}
	for i := range c.entries {
		if c.entries[i].mac == mac {
			c.entries[i].port = port
			return
		}
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, cacheEntry{mac: mac, port: port})
}

func (c *SwitchCache) lookup(mac eth.MACAddr) (int, bool) {
	for _, e := range c.entries {
		if e.mac == mac {
			return e.port, true
		}
	}
	return 0, false
}

// Flush clears all learned entries without touching static VLAN config,
// mirroring route_flush's MAC-cache-only semantics.
func (c *SwitchCache) Flush() { c.entries = nil }

// Size returns the number of currently-learned entries.
func (c *SwitchCache) Size() int { return len(c.entries) }
