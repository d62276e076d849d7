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
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var hostStatsStart = time.Now()

// NewHostStatsTier builds a TelemetryTier reporting this process's CPU,
// memory, file-descriptor, and goroutine usage, polled every intervalMs
// milliseconds. It is the software-host analogue of a tier a bare-metal
// deployment would instead source from on-chip sensors.
func NewHostStatsTier(intervalMs uint32) *TelemetryTier {
	return NewTelemetryTier("hoststats", intervalMs, collectHostStats)
}

func collectHostStats() map[string]interface{} {
	stats := make(map[string]interface{})
	stats["process.uptime_s"] = int64(time.Since(hostStatsStart).Seconds())
	stats["runtime.goroutines"] = int64(runtime.NumGoroutine())
	stats["runtime.cgo_calls"] = int64(runtime.NumCgoCall())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats["runtime.mem.alloc"] = int64(m.Alloc)
	stats["runtime.mem.sys"] = int64(m.Sys)
	stats["runtime.mem.num_gc"] = int64(m.NumGC)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if pct, err := proc.Percent(0); err == nil {
		stats["process.cpu_pct"] = pct
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats["process.rss"] = int64(mem.RSS)
		stats["process.vms"] = int64(mem.VMS)
	}
	if n, err := proc.NumFDs(); err == nil {
		stats["process.num_fds"] = int64(n)
	}
	if n, err := proc.NumThreads(); err == nil {
		stats["process.num_threads"] = int64(n)
	}
	return stats
}
