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

// Package telemetry is the scoped-message logging and periodic-metric
// fan-out shared by every component in the stack: a Log builder reporting
// to any number of registered EventHandlers, and a TelemetryAggregator
// that polls TelemetryTiers and CBOR-encodes the results to TelemetrySinks.
package telemetry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/satcat5/satnet/eth"
	"github.com/satcat5/satnet/ipv4"
	"github.com/satcat5/satnet/stream"
)

// Priority orders log messages from routine to fatal, matching the
// cascading severity checks every EventHandler filters against.
type Priority int8

const (
	Debug    Priority = -20
	Info     Priority = -10
	Warning  Priority = 0
	Error    Priority = 10
	Critical Priority = 20
)

// String names a Priority the way ToConsole labels it.
func (p Priority) String() string {
	switch {
	case p >= Critical:
		return "CRITICAL"
	case p >= Error:
		return "ERROR"
	case p >= Warning:
		return "WARNING"
	case p >= Info:
		return "INFO"
	default:
		return "DEBUG"
	}
}

var mu sync.Mutex
var handlers []EventHandler

// EventHandler receives each finalized Log message. Implementations must
// not block; AddHandler/RemoveHandler and Emit all hold the same lock, so
// a handler that calls back into this package will deadlock.
type EventHandler interface {
	LogEvent(priority Priority, source, msg string)
}

// AddHandler registers h to receive every future Log.Emit call.
func AddHandler(h EventHandler) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, h)
}

// RemoveHandler undoes a prior AddHandler.
func RemoveHandler(h EventHandler) {
	mu.Lock()
	defer mu.Unlock()
	for i, reg := range handlers {
		if reg == h {
			handlers = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// maxLogLen truncates an over-long message body rather than growing the
// buffer unbounded; matches the original's fixed-size LogBuffer.
const maxLogLen = 256

// Log is a scoped message builder. The original's C++ equivalent flushes
// to every EventHandler from its destructor at end of scope; Go has no
// destructors, so callers must close the builder explicitly with Emit.
// Chain the WriteX helpers, then call Emit exactly once:
//
//	telemetry.New(telemetry.Info, "eth").WriteStr("link up, mode=").WriteDec(int64(mode)).Emit()
type Log struct {
	priority Priority
	source   string
	buf      strings.Builder
}

// New starts a scoped message at the given priority, tagged with source
// (typically a short component name such as "eth" or "ptp").
func New(priority Priority, source string) *Log {
	return &Log{priority: priority, source: source}
}

func (l *Log) append(s string) *Log {
	if l.buf.Len() < maxLogLen {
		l.buf.WriteString(s)
	}
	return l
}

// WriteStr appends s verbatim.
func (l *Log) WriteStr(s string) *Log { return l.append(s) }

// WriteDec appends v in decimal.
func (l *Log) WriteDec(v int64) *Log { return l.append(fmt.Sprintf("%d", v)) }

// WriteHex appends v as zero-padded hex of the given nibble width.
func (l *Log) WriteHex(v uint64, nibbles int) *Log {
	return l.append(fmt.Sprintf("0x%0*X", nibbles, v))
}

// WriteBool appends "true" or "false".
func (l *Log) WriteBool(v bool) *Log { return l.append(fmt.Sprintf("%t", v)) }

// WriteMAC appends addr in colon-hex form.
func (l *Log) WriteMAC(addr eth.MACAddr) *Log { return l.append(addr.String()) }

// WriteIP appends addr in dotted-quad form.
func (l *Log) WriteIP(addr ipv4.Address) *Log { return l.append(addr.String()) }

// Emit finalizes the message and fans it out to every registered
// EventHandler. The builder must not be reused afterward.
func (l *Log) Emit() {
	msg := l.buf.String()
	mu.Lock()
	hs := make([]EventHandler, len(handlers))
	copy(hs, handlers)
	mu.Unlock()
	for _, h := range hs {
		h.LogEvent(l.priority, l.source, msg)
	}
}

// ToConsole is an EventHandler that writes color-coded lines through
// logrus, one severity level per Priority band.
type ToConsole struct {
	// Threshold suppresses messages below this priority. Zero (the
	// default) means Warning, matching the original's default filter.
	Threshold Priority
}

// LogEvent implements EventHandler.
func (c *ToConsole) LogEvent(priority Priority, source, msg string) {
	threshold := c.Threshold
	if threshold == 0 {
		threshold = Warning
	}
	if priority < threshold {
		return
	}
	entry := log.WithField("source", source)
	line := colorize(priority, msg)
	switch {
	case priority >= Critical:
		entry.Error(line)
	case priority >= Error:
		entry.Error(line)
	case priority >= Warning:
		entry.Warn(line)
	case priority >= Info:
		entry.Info(line)
	default:
		entry.Debug(line)
	}
}

func colorize(priority Priority, msg string) string {
	switch {
	case priority >= Critical:
		return color.RedString(msg)
	case priority >= Error:
		return color.RedString(msg)
	case priority >= Warning:
		return color.YellowString(msg)
	case priority >= Info:
		return color.GreenString(msg)
	default:
		return color.BlueString(msg)
	}
}

// ToWriteable is an EventHandler that writes each message as a single
// framed line ("PRIORITY source: msg") to a stream.Writeable, mirroring
// the original's ToWriteable sink used for serial-console logging.
type ToWriteable struct {
	Dst stream.Writeable
}

// LogEvent implements EventHandler.
func (w *ToWriteable) LogEvent(priority Priority, source, msg string) {
	line := fmt.Sprintf("%s %s: %s\n", priority, source, msg)
	stream.WriteStr(w.Dst, line)
	w.Dst.WriteFinalize()
}

// Record is one captured message, as held by a RingBuffer.
type Record struct {
	Priority Priority
	Source   string
	Message  string
}

// RingBuffer is an EventHandler that retains the last N messages; it
// exists for tests to assert on emitted log content without needing a
// real console or serial port.
type RingBuffer struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// NewRingBuffer creates a RingBuffer retaining at most max records.
func NewRingBuffer(max int) *RingBuffer {
	return &RingBuffer{max: max}
}

// LogEvent implements EventHandler.
func (r *RingBuffer) LogEvent(priority Priority, source, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Priority: priority, Source: source, Message: msg})
	if over := len(r.records) - r.max; over > 0 {
		r.records = r.records[over:]
	}
}

// Records returns a copy of the currently retained messages, oldest first.
func (r *RingBuffer) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Contains reports whether any retained message contains substr.
func (r *RingBuffer) Contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if strings.Contains(rec.Message, substr) {
			return true
		}
	}
	return false
}
