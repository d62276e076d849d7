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

package switchcore

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satcat5/satnet/eth"
)

// LogMessage is the fixed 24-byte per-frame record: a 24-bit microsecond
// timestamp, the ingress port, the parsed Ethernet header, a disposition
// reason, and either the forwarded destination mask (Reason == ReasonKeep)
// or the drop reason's detail (currently unused, reserved for future
// per-reason detail codes).
type LogMessage struct {
	TimestampUsec24 uint32 // low 24 bits of uptime in microseconds
	SrcPort         int
	Header          eth.Header
	Reason          Reason
	DstMask         PortMask

	// Skip is set on the synthetic coalescing record LogWriter emits
	// once its destination is full; KeepCount/DropCount then hold the
	// aggregate counts of events folded into this one record.
	Skip       bool
	KeepCount  uint32
	DropCount  uint32
}

// MarshalBinary encodes m into the wire's fixed 24-byte layout:
//
//	[0:3]   timestamp, low 24 bits, big-endian
//	[3]     source port
//	[4:10]  dst MAC
//	[10:16] src MAC
//	[16:18] EtherType
//	[18]    reason code
//	[19:23] dst_mask (reason==KEEP) big-endian uint32
//	[23]    VLAN priority
func (m LogMessage) MarshalBinary() []byte {
	buf := make([]byte, 24)
	buf[0] = byte(m.TimestampUsec24 >> 16)
	buf[1] = byte(m.TimestampUsec24 >> 8)
	buf[2] = byte(m.TimestampUsec24)
	buf[3] = byte(m.SrcPort)
	copy(buf[4:10], m.Header.Dst[:])
	copy(buf[10:16], m.Header.Src[:])
	buf[16] = byte(m.Header.Etype >> 8)
	buf[17] = byte(m.Header.Etype)
	buf[18] = byte(m.Reason)
	buf[19] = byte(m.DstMask >> 24)
	buf[20] = byte(m.DstMask >> 16)
	buf[21] = byte(m.DstMask >> 8)
	buf[22] = byte(m.DstMask)
	buf[23] = m.Header.Vtag.Priority
	return buf
}

// LogWriter buffers LogMessages up to a fixed capacity. Once its
// destination buffer is full, further records are coalesced into a
// single synthetic Skip record tracking aggregate keep/drop counts,
// rather than being dropped silently or blocking the caller.
type LogWriter struct {
	cap     int
	records []LogMessage
	skip    *LogMessage
}

// NewLogWriter builds a LogWriter holding up to capacity records before
// it starts coalescing into a SKIP summary.
func NewLogWriter(capacity int) *LogWriter {
	return &LogWriter{cap: capacity}
}

// Record appends msg, or folds it into the pending SKIP summary if the
// buffer is already at capacity.
func (w *LogWriter) Record(msg LogMessage) {
	if len(w.records) < w.cap {
		w.records = append(w.records, msg)
		return
	}
	if w.skip == nil {
		w.skip = &LogMessage{Skip: true}
	}
	if msg.Reason == ReasonKeep {
		w.skip.KeepCount++
	} else {
		w.skip.DropCount++
	}
}

// Drain returns and clears all buffered records, appending the pending
// SKIP summary (if any) as the final entry.
func (w *LogWriter) Drain() []LogMessage {
	out := w.records
	if w.skip != nil {
		out = append(out, *w.skip)
		w.skip = nil
	}
	w.records = nil
	return out
}

// Pending reports how many real (non-skip) records are currently buffered.
func (w *LogWriter) Pending() int { return len(w.records) }

// portCounters holds one port's raw counters before they are mirrored
// into the exported Prometheus gauges.
type portCounters struct {
	rcvd, sent, bcast       uint64
	errOvr, errPkt, errTotal uint64
}

// LogStats maintains per-port frame counters {rcvd_frames, sent_frames,
// bcast_frames, errct_ovr, errct_pkt, errct_total} and mirrors them into
// Prometheus gauge vectors labeled by port index, for scraping by the
// ambient metrics endpoint.
type LogStats struct {
	ports map[int]*portCounters

	rcvdFrames    *prometheus.GaugeVec
	sentFrames    *prometheus.GaugeVec
	bcastFrames   *prometheus.GaugeVec
	errOvrGauge   *prometheus.GaugeVec
	errPktGauge   *prometheus.GaugeVec
	errTotalGauge *prometheus.GaugeVec
}

// NewLogStats builds a LogStats with its Prometheus collectors
// registered under the "satcat5_switch" namespace. Callers register the
// returned collectors with a prometheus.Registry via Collectors().
func NewLogStats() *LogStats {
	labels := []string{"port"}
	mk := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "satcat5_switch",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &LogStats{
		ports:         make(map[int]*portCounters),
		rcvdFrames:    mk("rcvd_frames", "Frames received on this port."),
		sentFrames:    mk("sent_frames", "Frames forwarded out this port."),
		bcastFrames:   mk("bcast_frames", "Broadcast/multicast frames forwarded out this port."),
		errOvrGauge:   mk("errct_ovr", "Frames dropped due to egress buffer overflow."),
		errPktGauge:   mk("errct_pkt", "Frames dropped due to a malformed header."),
		errTotalGauge: mk("errct_total", "Total error count across all categories."),
	}
}

// Collectors returns every Prometheus collector this LogStats owns, for
// registration with a prometheus.Registerer.
func (s *LogStats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.rcvdFrames, s.sentFrames, s.bcastFrames, s.errOvrGauge, s.errPktGauge, s.errTotalGauge}
}

func (s *LogStats) ensurePort(port int) {
	if _, ok := s.ports[port]; !ok {
		s.ports[port] = &portCounters{}
	}
}

func portLabel(port int) string {
	return strconv.Itoa(port)
}

func (s *LogStats) rcvd(port int) {
	s.ensurePort(port)
	s.ports[port].rcvd++
	s.rcvdFrames.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].rcvd))
}

func (s *LogStats) sent(port int) {
	s.ensurePort(port)
	s.ports[port].sent++
	s.sentFrames.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].sent))
}

func (s *LogStats) bcast(port int) {
	s.ensurePort(port)
	s.ports[port].bcast++
	s.bcastFrames.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].bcast))
}

func (s *LogStats) errOvr(port int) {
	s.ensurePort(port)
	s.ports[port].errOvr++
	s.ports[port].errTotal++
	s.errOvrGauge.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].errOvr))
	s.errTotalGauge.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].errTotal))
}

func (s *LogStats) errPkt(port int) {
	s.ensurePort(port)
	s.ports[port].errPkt++
	s.ports[port].errTotal++
	s.errPktGauge.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].errPkt))
	s.errTotalGauge.WithLabelValues(portLabel(port)).Set(float64(s.ports[port].errTotal))
}

// Snapshot returns a copy of one port's raw counters, for tests and
// diagnostics without going through the Prometheus registry.
func (s *LogStats) Snapshot(port int) (rcvd, sent, bcast, errOvr, errPkt, errTotal uint64) {
	c, ok := s.ports[port]
	if !ok {
		return
	}
	return c.rcvd, c.sent, c.bcast, c.errOvr, c.errPkt, c.errTotal
}
