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

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftwareClockRateBounds(t *testing.T) {
	_, err := NewSoftwareClock(999)
	require.Error(t, err)
	_, err = NewSoftwareClock(1_000_000_001)
	require.Error(t, err)
	clk, err := NewSoftwareClock(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), clk.TicksPerSecond())
}

func TestElapsedAcrossWrap(t *testing.T) {
	clk, err := NewSoftwareClock(1000) // 1 tick == 1ms
	require.NoError(t, err)
	clk.tick = math.MaxUint32 - 5
	tv := NewTimeVal(clk)
	clk.Advance(10) // wraps past zero
	assert.Equal(t, uint32(10), tv.ElapsedTick())
	assert.Equal(t, uint64(10), tv.ElapsedMsec())
}

func TestIntervalCoalescesMissedDeadlines(t *testing.T) {
	clk, err := NewSoftwareClock(1000)
	require.NoError(t, err)
	tv := NewTimeVal(clk)
	clk.AdvanceMsec(35) // 3.5 periods of 10ms late
	fired := 0
	for tv.IntervalMsec(10) {
		fired++
	}
	// exactly one fire for the whole backlog, not one per missed period
	assert.Equal(t, 1, fired)
	// deadline caught up to "now"
	assert.Equal(t, clk.Now(), tv.Tick)
}

func TestIntervalPreservesPhaseForSingleDeadline(t *testing.T) {
	clk, err := NewSoftwareClock(1000)
	require.NoError(t, err)
	tv := NewTimeVal(clk)
	clk.AdvanceMsec(10)
	require.True(t, tv.IntervalMsec(10))
	// next deadline is exactly 10ms after the first, not "now"
	assert.Equal(t, uint32(10), tv.Tick)
	assert.False(t, tv.IntervalMsec(10))
	clk.AdvanceMsec(10)
	assert.True(t, tv.IntervalMsec(10))
	assert.Equal(t, uint32(20), tv.Tick)
}

func TestCheckpointFiresOnce(t *testing.T) {
	clk, err := NewSoftwareClock(1000)
	require.NoError(t, err)
	tv := NewTimeVal(clk)
	clk.AdvanceMsec(5)
	assert.False(t, tv.CheckpointMsec(10))
	clk.AdvanceMsec(5)
	assert.True(t, tv.CheckpointMsec(10))
	assert.False(t, tv.CheckpointMsec(10))
}

func TestIncrementAdvancesByQuantumNotNow(t *testing.T) {
	clk, err := NewSoftwareClock(1000)
	require.NoError(t, err)
	tv := NewTimeVal(clk)
	clk.AdvanceMsec(25)
	require.True(t, tv.IncrementMsec(10))
	assert.Equal(t, uint32(10), tv.Tick)
}
