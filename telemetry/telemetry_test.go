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

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satcat5/satnet/polling"
)

func newTestAggregator(t *testing.T, baseMs uint32) (*TelemetryAggregator, *polling.SoftwareClock, *polling.Loop) {
	clk, err := polling.NewSoftwareClock(1000)
	require.NoError(t, err)
	loop := polling.NewLoop()
	tk := polling.NewTimekeeper(clk, loop)
	return NewTelemetryAggregator(tk, baseMs), clk, loop
}

func tick(clk *polling.SoftwareClock, loop *polling.Loop, n uint32) {
	for i := uint32(0); i < n; i++ {
		clk.Advance(1)
		loop.Poll()
	}
}

func TestAggregatorMergesAllDueTiersIntoOneFrame(t *testing.T) {
	agg, clk, loop := newTestAggregator(t, 100)

	agg.AddTier(NewTelemetryTier("fast", 100, func() map[string]interface{} {
		return map[string]interface{}{"fast.counter": int64(1)}
	}))
	agg.AddTier(NewTelemetryTier("slow", 300, func() map[string]interface{} {
		return map[string]interface{}{"slow.counter": int64(2)}
	}))

	var frames [][]byte
	agg.AddSink(SinkFunc(func(f []byte) { frames = append(frames, f) }))
	agg.Start()

	tick(clk, loop, 100)
	require.Len(t, frames, 1)
	v, err := decodeFrame(frames[0])
	require.NoError(t, err)
	require.Contains(t, v, "fast.counter")
	require.NotContains(t, v, "slow.counter")

	tick(clk, loop, 200) // now at 300ms: both tiers due
	require.Len(t, frames, 3)
	v, err = decodeFrame(frames[2])
	require.NoError(t, err)
	require.Contains(t, v, "fast.counter")
	require.Contains(t, v, "slow.counter")
}

func TestAggregatorSkipsEmptyFrame(t *testing.T) {
	agg, clk, loop := newTestAggregator(t, 50)
	var calls int
	agg.AddSink(SinkFunc(func([]byte) { calls++ }))
	agg.Start()

	tick(clk, loop, 150)
	require.Equal(t, 0, calls)
}

func TestTelemetryLoggerEmitsOneLinePerKey(t *testing.T) {
	rb := NewRingBuffer(8)
	AddHandler(rb)
	defer RemoveHandler(rb)

	enc := NewTelemetryCbor()
	enc.Put("eth.rx_frames", int64(42))
	frame := enc.Close()
	require.NotNil(t, frame)

	TelemetryLogger{}.Accept(frame)
	require.True(t, rb.Contains("eth.rx_frames"))
}
