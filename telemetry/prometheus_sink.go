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
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// PrometheusSink is a TelemetrySink that republishes each decoded frame
// as gauges on a prometheus.Registry, one gauge per distinct label seen
// so far. Callers export Registry via promhttp.HandlerFor in their own
// HTTP server.
type PrometheusSink struct {
	Registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

// NewPrometheusSink creates a sink backed by its own registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{Registry: prometheus.NewRegistry(), gauges: make(map[string]prometheus.Gauge)}
}

// Accept implements TelemetrySink.
func (s *PrometheusSink) Accept(frame []byte) {
	values, err := decodeFrame(frame)
	if err != nil {
		log.WithError(err).Debug("telemetry: prometheus sink failed to decode frame")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, v := range values {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		s.gaugeFor(label).Set(f)
	}
}

func (s *PrometheusSink) gaugeFor(label string) prometheus.Gauge {
	if g, ok := s.gauges[label]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: flattenKey(label), Help: label})
	if err := s.Registry.Register(g); err != nil {
		are := &prometheus.AlreadyRegisteredError{}
		if errors.As(err, are) {
			g = are.ExistingCollector.(prometheus.Gauge)
		} else {
			log.WithError(err).WithField("label", label).Error("telemetry: failed to register gauge")
		}
	}
	s.gauges[label] = g
	return g
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
