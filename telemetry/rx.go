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
	"sync"

	log "github.com/sirupsen/logrus"
)

// TelemetryWatcher is notified of every value whose label hashes to one
// of its subscribed keys.
type TelemetryWatcher interface {
	TelemetryKeys() []TelemetryKey
	Notify(key TelemetryKey, value interface{})
}

// TelemetryRx decodes frames produced by a TelemetryAggregator and
// dispatches each labeled value to every watcher subscribed to its key.
// It implements TelemetrySink, so it can sit directly downstream of an
// aggregator in the same process (the original's TelemetryLoopback) or
// behind a network transport.
type TelemetryRx struct {
	mu       sync.Mutex
	watchers map[TelemetryKey][]TelemetryWatcher
}

// NewTelemetryRx creates an empty receiver.
func NewTelemetryRx() *TelemetryRx {
	return &TelemetryRx{watchers: make(map[TelemetryKey][]TelemetryWatcher)}
}

// AddWatcher subscribes w to every key it reports interest in.
func (r *TelemetryRx) AddWatcher(w TelemetryWatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range w.TelemetryKeys() {
		r.watchers[k] = append(r.watchers[k], w)
	}
}

// RemoveWatcher unsubscribes w from every key.
func (r *TelemetryRx) RemoveWatcher(w TelemetryWatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range w.TelemetryKeys() {
		list := r.watchers[k]
		for i, reg := range list {
			if reg == w {
				r.watchers[k] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Accept implements TelemetrySink: decode frame and fan out each value.
func (r *TelemetryRx) Accept(frame []byte) {
	values, err := decodeFrame(frame)
	if err != nil {
		log.WithError(err).Debug("telemetry: rx failed to decode frame")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for label, v := range values {
		key := NewTelemetryKey(label)
		for _, w := range r.watchers[key] {
			w.Notify(key, v)
		}
	}
}
