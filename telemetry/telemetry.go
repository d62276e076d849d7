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
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/framing"
	"github.com/satcat5/satnet/polling"
)

// TelemetryKey is a receiver-side handle for one named metric, derived by
// hashing its label so watchers can subscribe without needing to parse
// every frame's full label set.
type TelemetryKey uint32

// NewTelemetryKey hashes label with the same Ethernet-FCS CRC32 used
// elsewhere in the stack, so both ends of a telemetry link agree on a
// key without ever exchanging the label strings themselves.
func NewTelemetryKey(label string) TelemetryKey {
	return TelemetryKey(framing.CRC32([]byte(label)))
}

// TelemetrySource produces one tier's key/value snapshot each time it is
// polled. Values must be CBOR-marshalable (numbers, bools, strings).
type TelemetrySource func() map[string]interface{}

// TelemetryTier is one group of related metrics polled at its own
// interval, a multiple of the owning TelemetryAggregator's base interval.
type TelemetryTier struct {
	Name       string
	IntervalMs uint32
	Source     TelemetrySource

	ticks uint32
}

// NewTelemetryTier creates a tier named name, polled every intervalMs
// milliseconds (rounded down to the aggregator's base interval) by source.
func NewTelemetryTier(name string, intervalMs uint32, source TelemetrySource) *TelemetryTier {
	return &TelemetryTier{Name: name, IntervalMs: intervalMs, Source: source}
}

func (t *TelemetryTier) due(baseMs uint32) bool {
	period := t.IntervalMs / baseMs
	if period == 0 {
		period = 1
	}
	t.ticks++
	return t.ticks%period == 0
}

// TelemetrySink receives each aggregator tick's CBOR-encoded frame.
// Implementations must not block the caller.
type TelemetrySink interface {
	Accept(frame []byte)
}

// SinkFunc adapts a plain function to a TelemetrySink.
type SinkFunc func(frame []byte)

// Accept implements TelemetrySink.
func (f SinkFunc) Accept(frame []byte) { f(frame) }

// TelemetryAggregator polls its tiers on a fixed timer, merges every due
// tier's snapshot into one CBOR frame, and hands the frame to every
// registered sink. This is the transmit-side counterpart of TelemetryRx.
type TelemetryAggregator struct {
	tk      *polling.Timekeeper
	baseMs  uint32
	tiers   []*TelemetryTier
	sinks   []TelemetrySink
	started bool
}

// DefaultIntervalMs is the aggregator's base poll period when none is
// specified, matching the original's default 100ms cadence.
const DefaultIntervalMs uint32 = 100

// NewTelemetryAggregator creates an aggregator driven by tk, ticking
// every intervalMs milliseconds (DefaultIntervalMs if zero).
func NewTelemetryAggregator(tk *polling.Timekeeper, intervalMs uint32) *TelemetryAggregator {
	if intervalMs == 0 {
		intervalMs = DefaultIntervalMs
	}
	return &TelemetryAggregator{tk: tk, baseMs: intervalMs}
}

// AddTier registers a tier to be polled on every subsequent tick.
func (a *TelemetryAggregator) AddTier(t *TelemetryTier) {
	a.tiers = append(a.tiers, t)
}

// AddSink registers a sink to receive every future frame.
func (a *TelemetryAggregator) AddSink(s TelemetrySink) {
	a.sinks = append(a.sinks, s)
}

// Start arms the aggregator's recurring timer. Safe to call once.
func (a *TelemetryAggregator) Start() {
	if a.started {
		return
	}
	a.started = true
	a.tk.Every(a.baseMs, a.poll)
}

func (a *TelemetryAggregator) poll() {
	enc := NewTelemetryCbor()
	for _, t := range a.tiers {
		if !t.due(a.baseMs) {
			continue
		}
		for k, v := range t.Source() {
			enc.Put(k, v)
		}
	}
	frame := enc.Close()
	if frame == nil {
		return
	}
	for _, s := range a.sinks {
		s.Accept(frame)
	}
}

// TelemetryLogger is a TelemetrySink that decodes each frame and emits
// one Info-level Log line per key, useful for a human-readable tap on an
// otherwise binary telemetry stream.
type TelemetryLogger struct{}

// Accept implements TelemetrySink.
func (TelemetryLogger) Accept(frame []byte) {
	values, err := decodeFrame(frame)
	if err != nil {
		log.WithError(err).Debug("telemetry: logger failed to decode frame")
		return
	}
	for label, v := range values {
		New(Info, "telemetry").WriteStr(label).WriteStr("=").WriteStr(formatValue(v)).Emit()
	}
}
