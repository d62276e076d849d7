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

import (
	"sort"

	"github.com/eclesh/welford"
)

// AmplitudeReject rejects offset samples that stray too far from a
// running mean, the first stage of the tracking filter chain. It keeps
// a running mean and variance (github.com/eclesh/welford) rather than a fixed
// window, so the threshold adapts as the underlying noise floor changes.
type AmplitudeReject struct {
	sigma  float64
	stats  *welford.Stats
	last   int64
	warm   bool
}

// NewAmplitudeReject builds a filter that rejects samples more than
// sigma standard deviations from the running mean. sigma mirrors the
// constructor argument of the C++ original, though there it is a raw
// LSB threshold rather than a sigma multiplier; this port uses a
// statistical threshold so it tracks the input's actual noise floor
// instead of a single fixed magnitude.
func NewAmplitudeReject(sigma float64) *AmplitudeReject {
	return &AmplitudeReject{sigma: sigma, stats: welford.New()}
}

// Update feeds in the next raw sample and returns the value to use:
// the sample itself if accepted, or the current running mean if it was
// rejected as an outlier. interval (microseconds between samples) is
// accepted for symmetry with the rest of the filter chain but unused
// here, since the running statistic has no notion of sample spacing.
func (f *AmplitudeReject) Update(sample int64, _ uint32) int64 {
	if !f.warm {
		f.stats.Add(float64(sample))
		f.last = sample
		f.warm = true
		return sample
	}
	mean := f.stats.Mean()
	dev := f.stats.Stddev()
	if dev > 0 && absf(float64(sample)-mean) > f.sigma*dev {
		return int64(mean)
	}
	f.stats.Add(float64(sample))
	f.last = sample
	return sample
}

// Mean returns the current running mean, 0 if reset or never updated.
func (f *AmplitudeReject) Mean() int64 {
	if !f.warm {
		return 0
	}
	return int64(f.stats.Mean())
}

// Reset discards all accumulated statistics.
func (f *AmplitudeReject) Reset() {
	f.stats = welford.New()
	f.last = 0
	f.warm = false
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// BoxcarFilter is a simple moving average over the most recent 2^order
// samples (up to a fixed maximum window set at construction), used to
// smooth path-delay estimates. The order is adjustable at runtime, as
// in the C++ original's set_order, without reallocating the backing ring.
type BoxcarFilter struct {
	buf   []int64
	order int
	count int
	pos   int
}

// NewBoxcarFilter builds a filter whose window can be set to any power
// of two up to 2^maxOrder via SetOrder.
func NewBoxcarFilter(maxOrder int) *BoxcarFilter {
	return &BoxcarFilter{buf: make([]int64, 1<<uint(maxOrder)), order: maxOrder}
}

// SetOrder changes the active window to 2^order samples and clears history.
func (f *BoxcarFilter) SetOrder(order int) {
	f.order = order
	f.Reset()
}

// Reset discards accumulated history without changing the window order.
func (f *BoxcarFilter) Reset() {
	f.count = 0
	f.pos = 0
}

// Update pushes sample into the window and returns the window average.
// Until the window is full, it returns sample unchanged (order 0 means a
// one-sample window, i.e. a pass-through filter).
func (f *BoxcarFilter) Update(sample int64, _ uint32) int64 {
	window := 1 << uint(f.order)
	if window > len(f.buf) {
		window = len(f.buf)
	}
	f.buf[f.pos%len(f.buf)] = sample
	f.pos++
	if f.count < window {
		f.count++
	}
	if f.count < window {
		return sample
	}
	var sum int64
	for i := 0; i < window; i++ {
		sum += f.buf[(f.pos-1-i+len(f.buf))%len(f.buf)]
	}
	return sum / int64(window)
}

// MedianFilter returns the median of the most recent order samples (up
// to a fixed maximum set at construction), used to reject isolated spikes
// without the lag an average filter introduces.
type MedianFilter struct {
	buf   []int64
	max   int
	order int
	count int
	pos   int
	tmp   []int64
}

// NewMedianFilter builds a filter whose window can be set to any size up
// to maxOrder samples via SetOrder.
func NewMedianFilter(maxOrder int) *MedianFilter {
	return &MedianFilter{buf: make([]int64, maxOrder), tmp: make([]int64, maxOrder), max: maxOrder}
}

// SetOrder changes the active window size and clears history.
func (f *MedianFilter) SetOrder(order int) {
	if order > f.max {
		order = f.max
	}
	f.order = order
	f.Reset()
}

// Reset discards accumulated history without changing the window order.
func (f *MedianFilter) Reset() {
	f.count = 0
	f.pos = 0
}

// Update pushes sample into the window and returns the window median.
// Until the window is full, it returns sample unchanged.
func (f *MedianFilter) Update(sample int64, _ uint32) int64 {
	window := f.order
	if window == 0 {
		window = 1
	}
	f.buf[f.pos%len(f.buf)] = sample
	f.pos++
	if f.count < window {
		f.count++
	}
	if f.count < window {
		return sample
	}
	tmp := f.tmp[:window]
	for i := 0; i < window; i++ {
		tmp[i] = f.buf[(f.pos-1-i+len(f.buf))%len(f.buf)]
	}
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })
	return tmp[(window-1)/2]
}

// LinearRegression fits y = alpha + beta*x over n points using ordinary
// least squares, matching satcat5::ptp::LinearRegression's role of
// deriving an initial rate estimate during acquisition.
type LinearRegression struct {
	Alpha float64
	Beta  float64
}

// NewLinearRegression fits a line through the given (x, y) samples.
func NewLinearRegression(x, y []int64) LinearRegression {
	n := len(x)
	if n == 0 || n != len(y) {
		return LinearRegression{}
	}
	var sx, sy, sxy, sxx float64
	for i := 0; i < n; i++ {
		fx, fy := float64(x[i]), float64(y[i])
		sx += fx
		sy += fy
		sxy += fx * fy
		sxx += fx * fx
	}
	fn := float64(n)
	denom := fn*sxx - sx*sx
	if denom == 0 {
		return LinearRegression{Alpha: sy / fn}
	}
	beta := (fn*sxy - sx*sy) / denom
	alpha := (sy - beta*sx) / fn
	return LinearRegression{Alpha: alpha, Beta: beta}
}

// Extrapolate evaluates the fitted line at x.
func (r LinearRegression) Extrapolate(x int64) int64 {
	return int64(r.Alpha + r.Beta*float64(x))
}
