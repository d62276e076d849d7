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

// Package ipv4 implements IPv4 header parsing/emission, ICMP, and the
// longest-prefix-match routing table shared by the switch and router.
package ipv4

import "fmt"

// Address is an IPv4 address in host byte order.
type Address uint32

// AddrNone marks the absence of a usable address (an unresolved route).
const AddrNone Address = 0x00000000

// AddrBroadcast is the limited broadcast address.
const AddrBroadcast Address = 0xFFFFFFFF

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

// IsBroadcast reports whether a is the limited broadcast address.
func (a Address) IsBroadcast() bool { return a == AddrBroadcast }

// IsMulticast reports whether a falls in 224.0.0.0/4.
func (a Address) IsMulticast() bool { return a>>28 == 0xE }

// IsNone reports whether a is AddrNone.
func (a Address) IsNone() bool { return a == AddrNone }

// Subnet is a CIDR prefix: addresses matching addr&mask == base&mask are
// members.
type Subnet struct {
	Base Address
	Mask Address
}

// Contains reports whether addr falls within s.
func (s Subnet) Contains(addr Address) bool {
	return addr&s.Mask == s.Base&s.Mask
}

// PrefixLen returns the number of leading one-bits in the mask.
func (s Subnet) PrefixLen() int {
	n := 0
	m := uint32(s.Mask)
	for m&0x80000000 != 0 {
		n++
		m <<= 1
	}
	return n
}

// Protocol numbers used by this stack (IANA assigned).
const (
	ProtoICMP uint8 = 1
	ProtoUDP  uint8 = 17
)
