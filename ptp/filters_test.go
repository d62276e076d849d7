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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxcarFilterAveragesFullWindow(t *testing.T) {
	f := NewBoxcarFilter(2) // window = 4
	f.SetOrder(2)

	inputs := []int64{10, 20, 30, 40, 50}
	var outputs []int64
	for _, v := range inputs {
		outputs = append(outputs, f.Update(v, 1000))
	}
	// First three samples: window not full yet, pass through.
	assert.Equal(t, inputs[0], outputs[0])
	assert.Equal(t, inputs[1], outputs[1])
	assert.Equal(t, inputs[2], outputs[2])
	// Fourth sample: window full, average of 10,20,30,40 = 25.
	assert.Equal(t, int64(25), outputs[3])
	// Fifth: average of 20,30,40,50 = 35.
	assert.Equal(t, int64(35), outputs[4])
}

func TestBoxcarFilterOrderZeroIsPassthrough(t *testing.T) {
	f := NewBoxcarFilter(4)
	f.SetOrder(0)
	for _, v := range []int64{1, 2, 3} {
		assert.Equal(t, v, f.Update(v, 1000))
	}
}

func TestMedianFilterPassthroughAtOrderOne(t *testing.T) {
	f := NewMedianFilter(9)
	f.SetOrder(1)
	for _, v := range []int64{5, -3, 100} {
		assert.Equal(t, v, f.Update(v, 1000))
	}
}

func TestMedianFilterRejectsIsolatedSpike(t *testing.T) {
	f := NewMedianFilter(9)
	f.SetOrder(5)
	inputs := []int64{10, 10, 10, 10, 10, 9999, 10, 10, 10, 10}
	var last int64
	for _, v := range inputs {
		last = f.Update(v, 1000)
	}
	// Window of the last 5 samples (9999,10,10,10,10) still has a median of 10.
	assert.Equal(t, int64(10), last)
}

func TestAmplitudeRejectAcceptsSteadyInput(t *testing.T) {
	f := NewAmplitudeReject(5.0)
	for i := 0; i < 50; i++ {
		v := int64(100 + i%3 - 1) // tight jitter around 100
		got := f.Update(v, 1000)
		assert.Equal(t, v, got)
	}
}

func TestAmplitudeRejectRejectsOutlier(t *testing.T) {
	f := NewAmplitudeReject(3.0)
	// Warm up with mild jitter so the running stddev is nonzero; a
	// perfectly constant feed never gives AmplitudeReject anything to
	// reject against.
	for i := 0; i < 30; i++ {
		f.Update(int64(100+i%3-1), 1000)
	}
	mean := f.Mean()
	got := f.Update(100_000_000, 1000)
	assert.NotEqual(t, int64(100_000_000), got)
	assert.Equal(t, mean, got)
}

func TestAmplitudeRejectResetClearsMean(t *testing.T) {
	f := NewAmplitudeReject(5.0)
	f.Update(12345, 1000)
	assert.NotEqual(t, int64(0), f.Mean())
	f.Reset()
	assert.Equal(t, int64(0), f.Mean())
}

func TestLinearRegressionFitsExactLine(t *testing.T) {
	// y = 5 - 10x
	x := []int64{-10, -6, -3, -1, 0}
	y := []int64{105, 65, 35, 15, 5}
	r := NewLinearRegression(x, y)

	assert.InDelta(t, 5.0, r.Alpha, 1e-6)
	assert.InDelta(t, -10.0, r.Beta, 1e-6)
	assert.Equal(t, int64(35), r.Extrapolate(-3))
	assert.Equal(t, int64(-25), r.Extrapolate(3))
}
