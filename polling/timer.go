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

package polling

// TimerCallback is invoked once per coalesced deadline a Timer passes.
type TimerCallback func()

// timerEntry is one armed Timer instance tracked by the Timekeeper.
type timerEntry struct {
	deadline TimeVal
	periodMs uint32 // 0 for one-shot
	cb       TimerCallback
	done     bool
}

// Timekeeper is the global OnDemand fed by the clock's tick-of-millisecond
// detector: it is polled every pass, but only does work once a millisecond
// has actually elapsed, and it is the thing that evaluates every armed
// Timer for a coalesced, phase-preserving fire.
type Timekeeper struct {
	last    TimeVal
	timers  []*timerEntry
	running bool
}

// NewTimekeeper creates a Timekeeper stamped from clk and registers it as
// both an Always (to detect the millisecond boundary) and an OnDemand (to
// actually run due timers) on loop.
func NewTimekeeper(clk TimeRef, loop *Loop) *Timekeeper {
	tk := &Timekeeper{last: NewTimeVal(clk)}
	loop.AddAlways(AlwaysFunc(tk.checkMillisecond(loop)))
	loop.AddOnDemand(tk)
	return tk
}

// checkMillisecond returns the Always callback that requests service once
// per elapsed millisecond, coalescing any backlog into a single request
// exactly like any other OnDemand producer.
func (tk *Timekeeper) checkMillisecond(loop *Loop) func() {
	return func() {
		if tk.last.IntervalMsec(1) {
			loop.RequestPoll(tk)
		}
	}
}

// deadlinePassed reports whether deadline is at or before now, correct
// across the tick counter's 2**32 wraparound (valid as long as the two
// points are never more than 2**31 ticks apart, which holds for any
// realistically-scheduled timer).
func deadlinePassed(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// PollDemand implements OnDemand: evaluate every armed timer once.
func (tk *Timekeeper) PollDemand() {
	now := tk.last.Clk.Now()
	live := tk.timers[:0]
	for _, te := range tk.timers {
		if te.done || !deadlinePassed(now, te.deadline.Tick) {
			if !te.done {
				live = append(live, te)
			}
			continue
		}
		te.cb()
		if te.periodMs == 0 {
			te.done = true
			continue
		}
		// Coalesce missed periods: advance by exactly one period to
		// preserve phase; if that is still in the past (overshoot of
		// more than one period), snap to "now" instead of firing once
		// per missed period.
		period := te.deadline.msecToTicks(te.periodMs)
		te.deadline.Tick += period
		if !deadlinePassed(now, te.deadline.Tick) {
			live = append(live, te)
			continue
		}
		te.deadline.Tick = now
		live = append(live, te)
	}
	tk.timers = live
}

// Once arms a one-shot timer that fires cb after msec milliseconds.
func (tk *Timekeeper) Once(msec uint32, cb TimerCallback) {
	tv := tk.last
	tv.Tick += tv.msecToTicks(msec)
	tk.timers = append(tk.timers, &timerEntry{deadline: tv, cb: cb})
}

// Every arms a periodic timer that fires cb every msec milliseconds,
// starting msec from now.
func (tk *Timekeeper) Every(msec uint32, cb TimerCallback) {
	tv := tk.last
	tv.Tick += tv.msecToTicks(msec)
	tk.timers = append(tk.timers, &timerEntry{deadline: tv, periodMs: msec, cb: cb})
}
