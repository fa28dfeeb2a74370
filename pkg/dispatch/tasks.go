// Copyright 2024 The Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"strconv"
	"strings"
)

// clockTicksHz is the kernel's USER_HZ, the unit /proc/<pid>/stat's
// starttime field is expressed in on every Linux platform this daemon
// targets.
const clockTicksHz = 100

// processesIn parses a cgroup.procs listing (one PID per line) into a
// slice of ints, skipping any line that isn't a bare integer.
func processesIn(cgroupProcs string) []int {
	var pids []int
	for _, line := range strings.Split(cgroupProcs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, n)
	}
	return pids
}

// starttimeTicks extracts field 22 (starttime, in clock ticks since
// boot) from a /proc/<pid>/stat line. The comm field (field 2) is
// parenthesized and may itself contain spaces or parens, so the scan
// starts after the last ')' rather than splitting on whitespace from
// the beginning of the line.
func starttimeTicks(statLine string) (uint64, bool) {
	i := strings.LastIndexByte(statLine, ')')
	if i < 0 || i+2 > len(statLine) {
		return 0, false
	}
	fields := strings.Fields(statLine[i+2:])
	// fields[0] is state (field 3 overall); starttime is field 22
	// overall, so index 22-3 = 19 into this slice.
	const starttimeIndex = 19
	if len(fields) <= starttimeIndex {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[starttimeIndex], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// taskState extracts field 3 (state) from a /proc/<pid>/stat line.
func taskState(statLine string) (byte, bool) {
	i := strings.LastIndexByte(statLine, ')')
	if i < 0 || i+2 > len(statLine) {
		return 0, false
	}
	fields := strings.Fields(statLine[i+2:])
	if len(fields) == 0 || len(fields[0]) == 0 {
		return 0, false
	}
	return fields[0][0], true
}

// bootTimeSec extracts the "btime" line from a host /proc/stat dump.
func bootTimeSec(hostStat string) (float64, bool) {
	for _, line := range strings.Split(hostStat, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "btime" {
			n, err := strconv.ParseFloat(fields[1], 64)
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// earliestStartSec reports the earliest process start time, in wall
// seconds since the epoch, among statLines (one /proc/<pid>/stat
// content per live process in the cgroup). hasAny is false if none of
// the lines could be parsed.
func earliestStartSec(statLines []string, boot float64) (earliest float64, hasAny bool) {
	var minTicks uint64
	for _, line := range statLines {
		ticks, ok := starttimeTicks(line)
		if !ok {
			continue
		}
		if !hasAny || ticks < minTicks {
			minTicks = ticks
			hasAny = true
		}
	}
	if !hasAny {
		return 0, false
	}
	return boot + float64(minTicks)/clockTicksHz, true
}

// taskCounts reports how many of statLines are runnable or
// uninterruptible-sleep ("R" or "D", the kernel's own loadavg
// criterion), the total count, and the highest PID among pids (used as
// an approximation of "most recently created" for the last-pid field).
func taskCounts(pids []int, statLines []string) (running, total, lastPID int) {
	total = len(pids)
	for _, p := range pids {
		if p > lastPID {
			lastPID = p
		}
	}
	for _, line := range statLines {
		state, ok := taskState(line)
		if !ok {
			continue
		}
		if state == 'R' || state == 'D' {
			running++
		}
	}
	return running, total, lastPID
}
