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

package ptp

// Rate offsets passed to TrackingClock.ClockRate are normalized so that
// 2**32 LSB equals one part per billion; zero means the clock's native
// free-running rate.
const (
	RateOnePPB int64 = 1 << 32
	RateOnePPM int64 = 1000 * RateOnePPB
	RateOnePPK int64 = 1000 * RateOnePPM
)

// TrackingClock is a numerically-controlled reference clock driven by a
// TrackingController. Implementations must store the most recent value
// passed to ClockRate so GetRate can read it back.
type TrackingClock interface {
	// ClockNow returns the current time, or the zero Time if unavailable.
	ClockNow() Time
	// ClockAdjust makes a one-time step of the given signed magnitude
	// (positive moves the clock forward) and returns the residual error
	// the implementation could not apply exactly (e.g. due to quantization).
	ClockAdjust(amount int64) int64
	// ClockRate sets a continuous frequency offset, in the RateOnePPB scale.
	ClockRate(offset int64)
	// GetRate returns the most recent value passed to ClockRate.
	GetRate() int64
}

// SimClock is an in-memory TrackingClock for tests and simulation: it
// tracks its own offset from a reference Time source and the frequency
// correction last commanded, applying neither coarse steps nor rate
// changes to any real hardware.
type SimClock struct {
	now   func() Time
	step  int64
	rate  int64
}

// NewSimClock builds a SimClock whose ClockNow reads from now.
func NewSimClock(now func() Time) *SimClock {
	return &SimClock{now: now}
}

// ClockNow implements TrackingClock.
func (c *SimClock) ClockNow() Time {
	if c.now == nil {
		return Time{}
	}
	return c.now().Add(c.step)
}

// ClockAdjust implements TrackingClock: the simulated clock applies the
// full step exactly, so the residual is always zero.
func (c *SimClock) ClockAdjust(amount int64) int64 {
	c.step += amount
	return 0
}

// ClockRate implements TrackingClock.
func (c *SimClock) ClockRate(offset int64) { c.rate = offset }

// GetRate implements TrackingClock.
func (c *SimClock) GetRate() int64 { return c.rate }

// LockState is the TrackingController's internal acquisition state.
type LockState uint8

const (
	StateReset LockState = iota
	StateAcquire
	StateTrack
	StateLinear
)

func (s LockState) String() string {
	switch s {
	case StateReset:
		return "RESET"
	case StateAcquire:
		return "ACQUIRE"
	case StateTrack:
		return "TRACK"
	case StateLinear:
		return "LINEAR"
	default:
		return "UNKNOWN"
	}
}

// acquireThresholdNs is the offset magnitude above which TrackingController
// steps the clock directly instead of disciplining it through the filter
// chain; below this, small errors are corrected gradually via clock_rate.
const acquireThresholdNs = 1_000_000 // 1ms

// Filter is one stage of the tracking controller's filter chain: it
// consumes a raw sample and the interval (in microseconds) since the
// previous one, and returns the conditioned value to pass to the next
// stage (or to the clock, if it is the last stage).
type Filter interface {
	Update(sample int64, intervalUsec uint32) int64
}

// TrackingController accepts a stream of Measurements (e.g. from a PTP or
// NTP client) and disciplines one or more TrackingClocks to match. Only
// the first ("primary") clock added is phase-locked via ClockAdjust; all
// attached clocks receive the same frequency corrections via ClockRate.
type TrackingController struct {
	clocks  []TrackingClock
	filters []Filter
	state   LockState
	linear  bool
}

// NewTrackingController links to clk as the primary clock. clk may be nil.
func NewTrackingController(clk TrackingClock) *TrackingController {
	c := &TrackingController{}
	if clk != nil {
		c.clocks = append(c.clocks, clk)
	}
	return c
}

// AddClock adds an additional frequency-locked (but not phase-locked) clock.
func (c *TrackingController) AddClock(clk TrackingClock) {
	c.clocks = append(c.clocks, clk)
}

// RemoveClock removes clk from the list of attached clocks.
func (c *TrackingController) RemoveClock(clk TrackingClock) {
	for i, cl := range c.clocks {
		if cl == clk {
			c.clocks = append(c.clocks[:i], c.clocks[i+1:]...)
			return
		}
	}
}

// AddFilter appends filter to the end of the processing chain.
func (c *TrackingController) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// Reset clears the filter chain's internal state and begins free-wheeling.
// If linear is true, coarse (step) acquisition is disabled and every
// measurement is driven through the filter chain instead.
func (c *TrackingController) Reset(linear bool) {
	c.state = StateReset
	c.linear = linear
	for _, clk := range c.clocks {
		clk.ClockRate(0)
	}
}

// State returns the controller's current lock state.
func (c *TrackingController) State() LockState { return c.state }

// PtpReady implements the ptp.Callback role: it derives the offset from
// a completed four-timestamp measurement and feeds it to Update.
func (c *TrackingController) PtpReady(m Measurement) {
	c.Update(m.Offset(), 1_000_000)
}

// Update feeds one offset measurement (delta = remote - local, in
// nanoseconds) through the controller, spaced intervalUsec microseconds
// after the previous call.
func (c *TrackingController) Update(deltaNs int64, intervalUsec uint32) {
	if !c.linear && absInt64(deltaNs) > acquireThresholdNs {
		c.coarse(deltaNs)
		return
	}
	if c.state == StateReset {
		c.state = StateAcquire
	} else if c.state == StateAcquire {
		c.state = StateTrack
	}
	rate := c.runFilters(deltaNs, intervalUsec)
	c.clockRate(rate)
}

// coarse applies a direct step to the primary clock and resets the
// filter chain, used for errors too large for gradual rate discipline.
func (c *TrackingController) coarse(deltaNs int64) {
	c.state = StateAcquire
	for _, f := range c.filters {
		if r, ok := f.(interface{ Reset() }); ok {
			r.Reset()
		}
	}
	if len(c.clocks) > 0 {
		c.clocks[0].ClockAdjust(deltaNs)
	}
}

func (c *TrackingController) runFilters(delta int64, intervalUsec uint32) int64 {
	v := delta
	for _, f := range c.filters {
		v = f.Update(v, intervalUsec)
	}
	return v
}

func (c *TrackingController) clockRate(offset int64) {
	for _, clk := range c.clocks {
		clk.ClockRate(offset)
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// TrackingSimple is a TrackingController preconfigured with the filter
// chain satcat5::ptp::TrackingSimple ships by default: an AmplitudeReject
// stage to drop spikes, feeding a ControllerPII for smooth, ramp-tolerant
// frequency discipline.
type TrackingSimple struct {
	*TrackingController
	ampl *AmplitudeReject
	ctrl *ControllerPII
}

// NewTrackingSimple builds a controller with the default filter chain,
// targeting clk as the primary (phase-locked) clock.
func NewTrackingSimple(clk TrackingClock, tau, maxFreqPPB float64) *TrackingSimple {
	ts := &TrackingSimple{
		TrackingController: NewTrackingController(clk),
		ampl:                NewAmplitudeReject(5.0),
		ctrl:                NewControllerPII(NewCoeffPII(tau), maxFreqPPB*float64(RateOnePPB)),
	}
	ts.AddFilter(filterFunc(ts.ampl.Update))
	ts.AddFilter(filterFunc(func(v int64, interval uint32) int64 {
		return int64(ts.ctrl.Update(v, interval))
	}))
	return ts
}

// filterFunc adapts a plain function to the Filter interface.
type filterFunc func(sample int64, intervalUsec uint32) int64

func (f filterFunc) Update(sample int64, intervalUsec uint32) int64 { return f(sample, intervalUsec) }

// TrackingCoarse is a bang-bang alternative to TrackingController: it
// makes no attempt at rate discipline and simply steps the clock to
// match each new measurement, with no guarantee of monotonicity.
type TrackingCoarse struct {
	clock TrackingClock
}

// NewTrackingCoarse links to clk as the only target clock.
func NewTrackingCoarse(clk TrackingClock) *TrackingCoarse {
	return &TrackingCoarse{clock: clk}
}

// PtpReady steps the clock directly to absorb the measured offset.
func (c *TrackingCoarse) PtpReady(m Measurement) {
	if c.clock != nil {
		c.clock.ClockAdjust(m.Offset())
	}
}
