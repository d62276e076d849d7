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

// Package config loads the declarative configuration a satsw/satrt/satptp
// daemon starts from: a YAML document describing the port map, VLAN
// policy, static routes and PTP domain/profile for the current stack,
// plus a legacy flat INI format (LegacyConfig, legacy.go) carried over
// from older deployments for routing tables and DHCP pools.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
)

// PortConfig describes one switch port's static policy.
type PortConfig struct {
	Name       string   `yaml:"name"`
	Index      int      `yaml:"index"`
	Disabled   bool     `yaml:"disabled"`
	NativeVlan uint16   `yaml:"native_vlan"`
	TrunkVlans []uint16 `yaml:"trunk_vlans"`
	Priority   uint8    `yaml:"priority"`
}

// VlanConfig describes one VLAN's membership.
type VlanConfig struct {
	ID          uint16 `yaml:"id"`
	Name        string `yaml:"name"`
	MemberPorts []int  `yaml:"member_ports"`
}

// RouteConfig describes one static route. Gateway empty means directly
// connected; MAC empty means the next hop is resolved by ARP.
type RouteConfig struct {
	Dest    string `yaml:"dest"`
	Gateway string `yaml:"gateway"`
	MAC     string `yaml:"mac"`
}

// Resolve parses r's string fields into this stack's concrete ipv4/eth
// types, ready to hand to ipv4.Table.AddStatic.
func (r RouteConfig) Resolve() (ipv4.Route, error) {
	base, mask, err := parseCIDR(r.Dest)
	if err != nil {
		return ipv4.Route{}, fmt.Errorf("route dest %q: %w", r.Dest, err)
	}
	route := ipv4.Route{Dst: ipv4.Subnet{Base: base, Mask: mask}, Flags: ipv4.FlagMACFixed}

	if r.Gateway != "" {
		gw, err := parseIPv4(r.Gateway)
		if err != nil {
			return ipv4.Route{}, fmt.Errorf("route gateway %q: %w", r.Gateway, err)
		}
		route.Gateway = gw
	} else {
		route.Gateway = ipv4.AddrBroadcast
	}

	if r.MAC != "" {
		mac, err := parseMAC(r.MAC)
		if err != nil {
			return ipv4.Route{}, fmt.Errorf("route mac %q: %w", r.MAC, err)
		}
		route.MAC = mac
		route.Flags = ipv4.FlagMACFixed
	}
	return route, nil
}

// RouterPortConfig describes one routed interface: a serial link to a
// switch port, the router's own address on that link's subnet, and the
// MAC it answers ARP with.
type RouterPortConfig struct {
	Name     string `yaml:"name"`
	Index    int    `yaml:"index"`
	SelfAddr string `yaml:"self_addr"` // CIDR, e.g. "10.0.1.1/24"
	SelfMAC  string `yaml:"self_mac"`
	Disabled bool   `yaml:"disabled"`
}

// Resolve parses p's string fields into a concrete SelfIP/Subnet/MAC
// triple.
func (p RouterPortConfig) Resolve() (selfIP ipv4.Address, subnet ipv4.Subnet, mac eth.MACAddr, err error) {
	base, mask, err := parseCIDR(p.SelfAddr)
	if err != nil {
		return 0, ipv4.Subnet{}, eth.MACAddr{}, fmt.Errorf("port %s self_addr %q: %w", p.Name, p.SelfAddr, err)
	}
	ip, err := parseIPv4(strings.Split(p.SelfAddr, "/")[0])
	if err != nil {
		return 0, ipv4.Subnet{}, eth.MACAddr{}, fmt.Errorf("port %s self_addr %q: %w", p.Name, p.SelfAddr, err)
	}
	mac, err = parseMAC(p.SelfMAC)
	if err != nil {
		return 0, ipv4.Subnet{}, eth.MACAddr{}, fmt.Errorf("port %s self_mac %q: %w", p.Name, p.SelfMAC, err)
	}
	return ip, ipv4.Subnet{Base: base, Mask: mask}, mac, nil
}

// RouterConfig is the top-level config for a satrt daemon.
type RouterConfig struct {
	LogLevel string             `yaml:"log_level"`
	Ports    []RouterPortConfig `yaml:"ports"`
	Routes   []RouteConfig      `yaml:"routes"`
}

// ReadRouterConfig reads and parses a RouterConfig from a YAML file.
func ReadRouterConfig(path string) (*RouterConfig, error) {
	c := &RouterConfig{LogLevel: "info"}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// PTPConfig selects this node's PTP domain and profile.
type PTPConfig struct {
	Domain     uint8  `yaml:"domain"`
	Profile    string `yaml:"profile"`
	Iface      string `yaml:"iface"`
	SelfMAC    string `yaml:"self_mac"`
	Priority1  uint8  `yaml:"priority1"`
	Priority2  uint8  `yaml:"priority2"`
	ClockID    uint64 `yaml:"clock_id"`
	DelayReqMs uint32 `yaml:"delay_req_ms"`
}

// ResolveMAC parses SelfMAC into this stack's eth.MACAddr type.
func (p PTPConfig) ResolveMAC() (eth.MACAddr, error) {
	return parseMAC(p.SelfMAC)
}

// SwitchConfig is the top-level config for a satsw daemon (satrt reads a
// RouterConfig and satptp a PtpNodeConfig).
type SwitchConfig struct {
	LogLevel string        `yaml:"log_level"`
	Ports    []PortConfig  `yaml:"ports"`
	Vlans    []VlanConfig  `yaml:"vlans"`
	Routes   []RouteConfig `yaml:"routes"`
	PTP      PTPConfig     `yaml:"ptp"`
}

// PtpNodeConfig is the top-level config for a satptp daemon.
type PtpNodeConfig struct {
	LogLevel string    `yaml:"log_level"`
	PTP      PTPConfig `yaml:"ptp"`
}

// ReadPtpNodeConfig reads and parses a PtpNodeConfig from a YAML file.
func ReadPtpNodeConfig(path string) (*PtpNodeConfig, error) {
	c := &PtpNodeConfig{LogLevel: "info"}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// ReadSwitchConfig reads and parses a SwitchConfig from a YAML file.
func ReadSwitchConfig(path string) (*SwitchConfig, error) {
	c := &SwitchConfig{LogLevel: "info"}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

func parseCIDR(s string) (ipv4.Address, ipv4.Address, error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return 0, 0, err
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return 0, 0, fmt.Errorf("not an IPv4 CIDR")
	}
	ones, _ := ipnet.Mask.Size()
	mask := ipv4.Address(0xFFFFFFFF << uint(32-ones))
	base := ipv4.Address(uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]))
	return base, mask, nil
}

func parseIPv4(s string) (ipv4.Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address")
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an IPv4 address")
	}
	return ipv4.Address(uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])), nil
}

func parseMAC(s string) (eth.MACAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return eth.MACAddr{}, err
	}
	if len(hw) != 6 {
		return eth.MACAddr{}, fmt.Errorf("not a 6-byte MAC address")
	}
	var out eth.MACAddr
	copy(out[:], hw)
	return out, nil
}
