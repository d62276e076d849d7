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

// Package polling implements the cooperative scheduling primitives that
// drive the rest of the stack: a monotonic tick reference, timers that
// coalesce missed deadlines, and the Always/OnDemand poll classes serviced
// by the single-threaded main loop.
package polling

import (
	"fmt"
	"math/bits"
)

// TimeRef is a free-running tick counter. It MUST roll over at 2**32 and
// tick at a rate between 1kHz and 1GHz. All comparisons against a TimeRef's
// ticks use unsigned subtraction so callers are correct across the wrap.
type TimeRef interface {
	// Now returns the current tick count.
	Now() uint32
	// TicksPerSecond is the counter's fixed tick rate, in [1000, 1e9].
	TicksPerSecond() uint32
}

// globalClock is the process-wide clock singleton, SATCAT5_CLOCK in the
// original. It is set once during setup by SetClock and never mutated from
// interrupt context.
var globalClock TimeRef

// SetClock installs the process-wide TimeRef. Call once during setup.
func SetClock(clk TimeRef) { globalClock = clk }

// Clock returns the process-wide TimeRef installed by SetClock, or nil if
// none has been installed yet.
func Clock() TimeRef { return globalClock }

// scale's usec and msec fields are Q32.32 fixed-point scale factors:
// (unit-per-tick) * 2**32, derived from the clock's tick rate so that
// elapsed-tick-to-duration conversion never needs a floating-point divide
// on the hot path.
type scale struct {
	usec uint64
	msec uint64
}

func newScale(ticksPerSecond uint32) scale {
	if ticksPerSecond == 0 {
		ticksPerSecond = 1
	}
	return scale{
		usec: (uint64(1_000_000) << 32) / uint64(ticksPerSecond),
		msec: (uint64(1_000) << 32) / uint64(ticksPerSecond),
	}
}

// mulShift32 computes (ticks * fixed) >> 32 without losing the high bits of
// the 64x64 product, i.e. a Q32.32 fixed-point multiply whose result is
// truncated toward zero.
func mulShift32(ticks uint32, fixed uint64) uint64 {
	hi, lo := bits.Mul64(uint64(ticks), fixed)
	return (hi << 32) | (lo >> 32)
}

// TimeVal is a stamped reference into a TimeRef, used to measure elapsed
// time and to arm one-shot or periodic deadlines that are correct across
// the tick counter's 2**32 wraparound.
type TimeVal struct {
	Clk  TimeRef
	Tick uint32
}

// NewTimeVal stamps a TimeVal at the clock's current tick.
func NewTimeVal(clk TimeRef) TimeVal {
	if clk == nil {
		clk = globalClock
	}
	return TimeVal{Clk: clk, Tick: clk.Now()}
}

// ElapsedTick returns ticks elapsed since the stamp, correct across wrap.
func (t TimeVal) ElapsedTick() uint32 {
	return t.Clk.Now() - t.Tick
}

// ElapsedUsec returns microseconds elapsed since the stamp.
func (t TimeVal) ElapsedUsec() uint64 {
	return mulShift32(t.ElapsedTick(), newScale(t.Clk.TicksPerSecond()).usec)
}

// ElapsedMsec returns milliseconds elapsed since the stamp.
func (t TimeVal) ElapsedMsec() uint64 {
	return mulShift32(t.ElapsedTick(), newScale(t.Clk.TicksPerSecond()).msec)
}

// usecToTicks converts a microsecond quantum to ticks for this clock.
func (t TimeVal) usecToTicks(usec uint32) uint32 {
	return uint32((uint64(usec) * uint64(t.Clk.TicksPerSecond())) / 1_000_000)
}

func (t TimeVal) msecToTicks(msec uint32) uint32 {
	return uint32((uint64(msec) * uint64(t.Clk.TicksPerSecond())) / 1_000)
}

// IncrementUsec reports whether at least usec microseconds have elapsed; if
// so it advances the stamp by exactly that quantum (not to "now"), so a
// caller polling slower than the quantum still sees one tick per quantum
// rather than losing the remainder.
func (t *TimeVal) IncrementUsec(usec uint32) bool {
	quantum := t.usecToTicks(usec)
	if quantum == 0 || t.ElapsedTick() < quantum {
		return false
	}
	t.Tick += quantum
	return true
}

// IncrementMsec is IncrementUsec in millisecond units.
func (t *TimeVal) IncrementMsec(msec uint32) bool {
	quantum := t.msecToTicks(msec)
	if quantum == 0 || t.ElapsedTick() < quantum {
		return false
	}
	t.Tick += quantum
	return true
}

// IntervalUsec fires once per period, re-arming the deadline by adding the
// period to the previous deadline (not to "now"), so it maintains phase;
// if more than one period has fully elapsed, it coalesces the backlog into
// a single fire and fast-forwards the deadline to "now" rather than firing
// once per missed period.
func (t *TimeVal) IntervalUsec(usec uint32) bool {
	quantum := t.usecToTicks(usec)
	if quantum == 0 {
		return false
	}
	now := t.Clk.Now()
	if now-t.Tick < quantum {
		return false
	}
	t.Tick += quantum
	if now-t.Tick >= quantum {
		t.Tick = now
	}
	return true
}

// IntervalMsec is IntervalUsec in millisecond units.
func (t *TimeVal) IntervalMsec(msec uint32) bool {
	quantum := t.msecToTicks(msec)
	if quantum == 0 {
		return false
	}
	now := t.Clk.Now()
	if now-t.Tick < quantum {
		return false
	}
	t.Tick += quantum
	if now-t.Tick >= quantum {
		t.Tick = now
	}
	return true
}

// CheckpointUsec is a deadline usec microseconds after the stamp: it
// returns true the first time it is polled on or after the deadline and
// restarts the stamp at the current tick, so the next true result comes
// usec microseconds after that poll.
func (t *TimeVal) CheckpointUsec(usec uint32) bool {
	if t.ElapsedUsec() < uint64(usec) {
		return false
	}
	t.Tick = t.Clk.Now()
	return true
}

// CheckpointMsec is CheckpointUsec in millisecond units.
func (t *TimeVal) CheckpointMsec(msec uint32) bool {
	if t.ElapsedMsec() < uint64(msec) {
		return false
	}
	t.Tick = t.Clk.Now()
	return true
}

// SoftwareClock is a TimeRef driven by repeated calls to Advance, used by
// tests and by simulated time in place of a hardware tick source.
type SoftwareClock struct {
	rate uint32
	tick uint32
}

// NewSoftwareClock builds a SoftwareClock ticking at ticksPerSecond, which
// must fall within the [1kHz, 1GHz] range the spec requires of a TimeRef.
func NewSoftwareClock(ticksPerSecond uint32) (*SoftwareClock, error) {
	if ticksPerSecond < 1000 || ticksPerSecond > 1_000_000_000 {
		return nil, fmt.Errorf("tick rate %d out of [1kHz, 1GHz] range", ticksPerSecond)
	}
	return &SoftwareClock{rate: ticksPerSecond}, nil
}

// Now implements TimeRef.
func (s *SoftwareClock) Now() uint32 { return s.tick }

// TicksPerSecond implements TimeRef.
func (s *SoftwareClock) TicksPerSecond() uint32 { return s.rate }

// Advance moves the clock forward by n ticks, wrapping at 2**32.
func (s *SoftwareClock) Advance(n uint32) { s.tick += n }

// AdvanceUsec advances the clock by approximately usec microseconds.
func (s *SoftwareClock) AdvanceUsec(usec uint32) {
	s.tick += uint32((uint64(usec) * uint64(s.rate)) / 1_000_000)
}

// AdvanceMsec advances the clock by approximately msec milliseconds.
func (s *SoftwareClock) AdvanceMsec(msec uint32) {
	s.tick += uint32((uint64(msec) * uint64(s.rate)) / 1_000)
}
