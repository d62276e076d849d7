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

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ini/ini"

	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/udp"
)

// LegacyDhcpPool is one [dhcp_pool:NAME] section: the address range a
// DhcpPool should be sized to cover plus the options a DhcpServer offers
// alongside each lease.
type LegacyDhcpPool struct {
	Base   string
	Size   int
	Server udp.DhcpServerConfig
}

// Resolve parses Base into the concrete ipv4.Address NewDhcpPool wants.
func (p LegacyDhcpPool) Resolve() (ipv4.Address, int, error) {
	base, err := parseIPv4(p.Base)
	if err != nil {
		return 0, 0, fmt.Errorf("base %q: %w", p.Base, err)
	}
	return base, p.Size, nil
}

// LegacyConfig is the flat INI format carried over from older
// deployments: one [route:NAME] section per static route and one
// [dhcp_pool:NAME] section per DHCP pool, following the
// section-per-entity convention calnex/config's own INI file uses.
type LegacyConfig struct {
	Routes    []RouteConfig
	DhcpPools map[string]LegacyDhcpPool
}

// ReadLegacyConfig parses path as an INI file in the legacy format.
func ReadLegacyConfig(path string) (*LegacyConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy config %s: %w", path, err)
	}

	c := &LegacyConfig{DhcpPools: make(map[string]LegacyDhcpPool)}
	for _, s := range f.Sections() {
		name := s.Name()
		switch {
		case strings.HasPrefix(name, "route:"):
			c.Routes = append(c.Routes, RouteConfig{
				Dest:    s.Key("dest").String(),
				Gateway: s.Key("gateway").String(),
				MAC:     s.Key("mac").String(),
			})

		case strings.HasPrefix(name, "dhcp_pool:"):
			poolName := strings.TrimPrefix(name, "dhcp_pool:")
			size, err := strconv.Atoi(s.Key("size").MustString("1"))
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s size: %w", poolName, err)
			}
			lease, err := strconv.ParseUint(s.Key("lease_sec").MustString("3600"), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s lease_sec: %w", poolName, err)
			}
			selfIP, err := parseIPv4(s.Key("self_ip").String())
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s self_ip: %w", poolName, err)
			}
			mask, err := parseIPv4(s.Key("subnet_mask").MustString("255.255.255.0"))
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s subnet_mask: %w", poolName, err)
			}
			router, err := optionalIPv4(s.Key("router").String())
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s router: %w", poolName, err)
			}
			dns, err := optionalIPv4(s.Key("dns").String())
			if err != nil {
				return nil, fmt.Errorf("dhcp_pool %s dns: %w", poolName, err)
			}

			c.DhcpPools[poolName] = LegacyDhcpPool{
				Base: s.Key("base").String(),
				Size: size,
				Server: udp.DhcpServerConfig{
					SelfIP:     selfIP,
					SubnetMask: mask,
					Router:     router,
					DNS:        dns,
					DomainName: s.Key("domain_name").String(),
					LeaseSec:   uint32(lease),
				},
			}
		}
	}
	return c, nil
}

func optionalIPv4(s string) (ipv4.Address, error) {
	if s == "" {
		return ipv4.AddrNone, nil
	}
	return parseIPv4(s)
}
