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
	"fmt"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"
)

// TelemetryCbor accumulates one tick's key/value pairs and marshals them
// to a single CBOR map on Close, the wire format every TelemetrySink and
// TelemetryRx on the other end agrees on.
type TelemetryCbor struct {
	values map[string]interface{}
}

// NewTelemetryCbor starts an empty frame.
func NewTelemetryCbor() *TelemetryCbor {
	return &TelemetryCbor{values: make(map[string]interface{})}
}

// Put adds or overwrites one labeled value.
func (c *TelemetryCbor) Put(label string, value interface{}) {
	c.values[label] = value
}

// Close marshals the accumulated values to CBOR. Returns nil (and logs)
// if encoding fails or the frame is empty.
func (c *TelemetryCbor) Close() []byte {
	if len(c.values) == 0 {
		return nil
	}
	buf, err := cbor.Marshal(c.values)
	if err != nil {
		log.WithError(err).Error("telemetry: cbor encode failed")
		return nil
	}
	return buf
}

func decodeFrame(frame []byte) (map[string]interface{}, error) {
	var values map[string]interface{}
	if err := cbor.Unmarshal(frame, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func formatValue(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
