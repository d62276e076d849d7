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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWatcher struct {
	keys []TelemetryKey
	got  []interface{}
}

func (w *recordingWatcher) TelemetryKeys() []TelemetryKey { return w.keys }
func (w *recordingWatcher) Notify(key TelemetryKey, value interface{}) {
	w.got = append(w.got, value)
}

func TestTelemetryKeyHashIsStableAcrossFrames(t *testing.T) {
	assert.Equal(t, NewTelemetryKey("ptp.offset_ns"), NewTelemetryKey("ptp.offset_ns"))
	assert.NotEqual(t, NewTelemetryKey("ptp.offset_ns"), NewTelemetryKey("ptp.freq_ppb"))
}

func TestTelemetryRxNotifiesOnlySubscribedWatchers(t *testing.T) {
	rx := NewTelemetryRx()
	offset := &recordingWatcher{keys: []TelemetryKey{NewTelemetryKey("ptp.offset_ns")}}
	freq := &recordingWatcher{keys: []TelemetryKey{NewTelemetryKey("ptp.freq_ppb")}}
	rx.AddWatcher(offset)
	rx.AddWatcher(freq)

	enc := NewTelemetryCbor()
	enc.Put("ptp.offset_ns", int64(-120))
	frame := enc.Close()
	require.NotNil(t, frame)

	rx.Accept(frame)

	require.Len(t, offset.got, 1)
	assert.Equal(t, int64(-120), offset.got[0])
	assert.Empty(t, freq.got)
}

func TestTelemetryRxRemoveWatcherStopsNotification(t *testing.T) {
	rx := NewTelemetryRx()
	w := &recordingWatcher{keys: []TelemetryKey{NewTelemetryKey("x")}}
	rx.AddWatcher(w)
	rx.RemoveWatcher(w)

	enc := NewTelemetryCbor()
	enc.Put("x", int64(1))
	rx.Accept(enc.Close())

	assert.Empty(t, w.got)
}

func TestAggregatorToRxLoopbackDeliversTierValues(t *testing.T) {
	agg, clk, loop := newTestAggregator(t, 100)
	agg.AddTier(NewTelemetryTier("gm", 100, func() map[string]interface{} {
		return map[string]interface{}{"gm.locked": true}
	}))

	rx := NewTelemetryRx()
	w := &recordingWatcher{keys: []TelemetryKey{NewTelemetryKey("gm.locked")}}
	rx.AddWatcher(w)
	agg.AddSink(rx)
	agg.Start()

	tick(clk, loop, 100)

	require.Len(t, w.got, 1)
	assert.Equal(t, true, w.got[0])
}
