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

package ntpsync

import (
	"time"

	"github.com/satcat5/satnet/leapsectz"
	"github.com/satcat5/satnet/ptp"
)

// DefaultUTCOffset is the current TAI-UTC leap-second offset. NTP's
// epoch is nominally 1900-01-01T00:00:00 UTC; PTP's is
// 1970-01-01T00:00:00 TAI. Folding the UTC offset into the epoch
// constant keeps the rest of the conversion integer-exact.
const DefaultUTCOffset uint8 = 37

// ntpEpochOffset is the number of seconds from the NTP epoch to the PTP
// epoch, adjusted for the current TAI-UTC offset: 2208988800 - L.
func ntpEpochOffset(utcOffset uint8) uint64 {
	return 2208988800 - uint64(utcOffset)
}

// CurrentUTCOffset reads the live TAI-UTC leap-second count out of the
// system time zone database (/usr/share/zoneinfo/right/UTC), returning
// whichever leap entry is in effect at now. Falls back to
// DefaultUTCOffset when the database can't be read, which is normal on
// hosts without a "right/" zoneinfo tree.
func CurrentUTCOffset(now time.Time) uint8 {
	leaps, err := leapsectz.Parse()
	if err != nil || len(leaps) == 0 {
		return DefaultUTCOffset
	}
	offset := DefaultUTCOffset
	for _, l := range leaps {
		if l.Time().After(now) {
			break
		}
		// Nleap counts leap seconds since 1972, when TAI-UTC was 10.
		if l.Nleap >= 0 && l.Nleap <= 245 {
			offset = uint8(10 + l.Nleap)
		}
	}
	return offset
}

// ntpRollover is the period of the 32-bit NTP seconds field, about 136
// years; eras are numbered relative to it starting in 1900.
const ntpRollover = int64(1) << 32

// ToNTP converts t to 64-bit NTP fixed-point format (32.32), lossily:
// nanoseconds are scaled to 2^-32 second units and truncated, not rounded.
func ToNTP(t ptp.Time, utcOffset uint8) uint64 {
	sec := uint64(t.Sec) + ntpEpochOffset(utcOffset)
	frac := uint64(t.Nanosec) * 18446744073 // 2^64 / 1e9, truncated
	return sec<<32 | (frac >> 32)
}

// ToPTP converts a 64-bit NTP fixed-point timestamp back to PTP time.
// Since the 32-bit NTP seconds field rolls over roughly every 136
// years, the correct era is inferred by picking whichever era places
// the result closest to ref (normally the local clock's current time).
func ToPTP(raw uint64, utcOffset uint8, ref ptp.Time) ptp.Time {
	secs := int64(raw>>32) - int64(ntpEpochOffset(utcOffset))
	nsec := uint32((raw & 0xFFFFFFFF) * 1000000000 >> 32)

	era := divRound(ref.Sec-secs, ntpRollover)
	return ptp.Time{Sec: secs + era*ntpRollover, Nanosec: nsec}
}

// divRound performs rounded integer division, matching the original's
// round-to-nearest era selection (ties round away from zero).
func divRound(num, den int64) int64 {
	if den <= 0 {
		return 0
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}
