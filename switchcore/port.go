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

import "github.com/satcat5/satnet/stream"

// Port binds one switch interface's Readable/Writeable adapter pair to a
// fixed index and mask bit. Ports are never removed once added; a port
// can be disabled without unregistering it.
type Port struct {
	Index    int
	Src      stream.Readable
	Dst      stream.Writeable
	Disabled bool

	priority uint8 // default 802.1p priority, set via SwitchCore.VlanSetPriority
}

// Mask returns this port's single-bit mask value.
func (p *Port) Mask() PortMask { return Bit(p.Index) }

// NewPort constructs a Port bound to src/dst at the given index.
func NewPort(index int, src stream.Readable, dst stream.Writeable) *Port {
	return &Port{Index: index, Src: src, Dst: dst}
}
